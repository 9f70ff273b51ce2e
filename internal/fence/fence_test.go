package fence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/wellspace/internal/activity"
	"github.com/codefionn/wellspace/internal/entity"
)

// liveCtx is a mutable view context for tests.
type liveCtx struct {
	mu sync.Mutex
	c  Context
}

func (l *liveCtx) get() Context {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.c
}

func (l *liveCtx) set(e *entity.Ref, scope string, gen uint64) {
	l.mu.Lock()
	l.c = Context{Entity: e, Scope: entity.Scope{Path: scope}, ScopeGen: gen}
	l.mu.Unlock()
}

func well(id string) *entity.Ref {
	return &entity.Ref{ID: id, Name: id, Path: "/proj/" + id}
}

func TestStaleResultsDiscarded(t *testing.T) {
	live := &liveCtx{}
	f := New("logPlot_1", live.get)

	live.set(well("E1"), "/proj", 1)
	s1, err := f.Begin()
	require.NoError(t, err)
	live.set(well("E2"), "/proj", 1)
	s2, err := f.Begin()
	require.NoError(t, err)
	live.set(well("E3"), "/proj", 1)
	s3, err := f.Begin()
	require.NoError(t, err)

	var applied []string
	// E2 and E1 resolve after E3 was issued, in reverse order.
	assert.False(t, f.Complete(s2, func() { applied = append(applied, "E2") }))
	assert.False(t, f.Complete(s1, func() { applied = append(applied, "E1") }))
	assert.True(t, f.Loading(), "older discards must not clear the current loading state")

	assert.True(t, f.Complete(s3, func() { applied = append(applied, "E3") }))
	assert.Equal(t, []string{"E3"}, applied)
	assert.Equal(t, Applied, f.Phase())
	assert.False(t, f.Loading())
}

func TestSameEntityReissueStillDiscardsOlder(t *testing.T) {
	live := &liveCtx{}
	f := New("v", live.get)
	live.set(well("A"), "/proj", 1)

	s1, err := f.Begin()
	require.NoError(t, err)
	s2, err := f.Begin()
	require.NoError(t, err)

	assert.False(t, f.ShouldApply(s1))
	assert.True(t, f.ShouldApply(s2))
}

func TestContextChangeDiscardsCurrent(t *testing.T) {
	live := &liveCtx{}
	f := New("v", live.get)
	live.set(well("A"), "/proj", 1)

	s, err := f.Begin()
	require.NoError(t, err)
	live.set(well("B"), "/proj", 1)

	assert.False(t, f.Complete(s, func() { t.Fatal("must not apply") }))
	assert.Equal(t, Discarded, f.Phase())
}

func TestScopeSwitchInvalidates(t *testing.T) {
	live := &liveCtx{}
	f := New("v", live.get)
	live.set(well("A"), "/proj", 1)
	s, err := f.Begin()
	require.NoError(t, err)

	// away and back again: same path, new generation
	live.set(well("A"), "/proj", 3)
	assert.False(t, f.ShouldApply(s))
}

func TestContainmentGate(t *testing.T) {
	live := &liveCtx{}
	f := New("v", live.get)

	live.set(&entity.Ref{ID: "b", Path: "/a/b"}, "/a/c", 1)
	_, err := f.Begin()
	assert.ErrorIs(t, err, ErrOutOfScope)
	assert.Equal(t, Idle, f.Phase())

	live.set(&entity.Ref{ID: "b", Path: "/a/b"}, "/a", 1)
	_, err = f.Begin()
	assert.NoError(t, err)
	assert.True(t, f.Loading())
}

func TestNoEntity(t *testing.T) {
	live := &liveCtx{}
	f := New("v", live.get)
	_, err := f.Begin()
	assert.ErrorIs(t, err, ErrNoEntity)
}

func TestReset(t *testing.T) {
	live := &liveCtx{}
	f := New("v", live.get)
	live.set(well("A"), "/proj", 1)
	s, err := f.Begin()
	require.NoError(t, err)

	f.Reset()
	assert.Equal(t, Idle, f.Phase())
	assert.False(t, f.ShouldApply(s))
}

func TestRunScenario(t *testing.T) {
	live := &liveCtx{}
	log := activity.New(10)
	f := New("logPlot_1", live.get, WithAudit(log))
	live.set(&entity.Ref{ID: "WellA", Path: "/proj/WellA"}, "/proj", 1)

	releaseA := make(chan struct{})
	startedA := make(chan struct{})
	var mu sync.Mutex
	var visible string

	apply := func(data string, err error) {
		mu.Lock()
		visible = data
		mu.Unlock()
	}

	errA := make(chan error, 1)
	go func() {
		errA <- Run(context.Background(), f, time.Second, func(ctx context.Context, s Stamp) (string, error) {
			close(startedA)
			<-releaseA
			return "D1", nil
		}, apply)
	}()
	<-startedA

	live.set(&entity.Ref{ID: "WellB", Path: "/proj/WellB"}, "/proj", 1)
	sB, err := f.Begin()
	require.NoError(t, err)

	close(releaseA)
	assert.ErrorIs(t, <-errA, ErrStale)

	require.True(t, f.Complete(sB, func() { apply("D2", nil) }))
	mu.Lock()
	assert.Equal(t, "D2", visible)
	mu.Unlock()

	last, ok := log.Last()
	require.True(t, ok)
	assert.Contains(t, last.Message, "WellA")
}

func TestRunTimeoutFlowsThroughFence(t *testing.T) {
	live := &liveCtx{}
	f := New("v", live.get)
	live.set(well("A"), "/proj", 1)

	var gotErr error
	err := Run(context.Background(), f, 20*time.Millisecond, func(ctx context.Context, s Stamp) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}, func(_ int, err error) { gotErr = err })

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, gotErr, context.DeadlineExceeded)
	assert.Equal(t, Applied, f.Phase())
}

func TestRunTimeoutOfStaleFetchIsDiscarded(t *testing.T) {
	live := &liveCtx{}
	f := New("v", live.get)
	live.set(well("A"), "/proj", 1)

	applied := false
	err := Run(context.Background(), f, 20*time.Millisecond, func(ctx context.Context, s Stamp) (int, error) {
		live.set(well("B"), "/proj", 1)
		<-ctx.Done()
		return 0, errors.New("boom")
	}, func(int, error) { applied = true })

	assert.ErrorIs(t, err, ErrStale)
	assert.False(t, applied)
}

func TestRunSkipsOutOfScope(t *testing.T) {
	live := &liveCtx{}
	f := New("v", live.get)
	live.set(&entity.Ref{ID: "b", Path: "/a/b"}, "/a/c", 1)

	called := false
	err := Run(context.Background(), f, 0, func(context.Context, Stamp) (int, error) {
		called = true
		return 1, nil
	}, func(int, error) {})

	assert.ErrorIs(t, err, ErrOutOfScope)
	assert.False(t, called)
}
