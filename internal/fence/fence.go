// Package fence keeps asynchronous fetches from applying results to a view
// whose (entity, scope) context has moved on since the fetch was issued.
package fence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/codefionn/wellspace/internal/activity"
	"github.com/codefionn/wellspace/internal/entity"
	"github.com/codefionn/wellspace/internal/logger"
)

var (
	// ErrNoEntity means the view has nothing to fetch for.
	ErrNoEntity = errors.New("no entity selected")
	// ErrOutOfScope means the entity's path is not under the active scope.
	ErrOutOfScope = errors.New("entity does not belong to the active scope")
	// ErrStale is returned by Run when the result was discarded.
	ErrStale = errors.New("stale response discarded")
)

// Phase is the fence state. Applied and Discarded record how the latest
// fetch ended; both behave as Idle for the next Begin.
type Phase int

const (
	Idle Phase = iota
	Fetching
	Applied
	Discarded
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case Applied:
		return "applied"
	case Discarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// Context is a view's live binding. ScopeGen changes on every scope switch,
// including switching back to a scope seen before.
type Context struct {
	Entity   *entity.Ref
	Scope    entity.Scope
	ScopeGen uint64
}

// Live recomputes the view's current context. It is called on every check
// and must not cache.
type Live func() Context

// Stamp is the context captured when a fetch was issued.
type Stamp struct {
	View       string
	Seq        uint64
	EntityID   string
	EntityPath string
	ScopeKey   string
	ScopeGen   uint64
}

func stampOf(view string, seq uint64, c Context) Stamp {
	s := Stamp{View: view, Seq: seq, ScopeKey: c.Scope.Key(), ScopeGen: c.ScopeGen}
	if c.Entity != nil {
		s.EntityID = c.Entity.ID
		s.EntityPath = entity.NormalizePath(c.Entity.Path)
	}
	return s
}

func (s Stamp) matches(c Context) bool {
	if c.Entity == nil {
		return false
	}
	return s.EntityID == c.Entity.ID &&
		s.EntityPath == entity.NormalizePath(c.Entity.Path) &&
		s.ScopeKey == c.Scope.Key() &&
		s.ScopeGen == c.ScopeGen
}

// Option configures a Fence.
type Option func(*Fence)

// WithAudit records discards in the activity log.
func WithAudit(l *activity.Log) Option {
	return func(f *Fence) { f.audit = l }
}

// Fence guards the fetches of one view.
type Fence struct {
	view  string
	live  Live
	audit *activity.Log
	log   *logger.Logger

	mu    sync.Mutex
	seq   uint64
	phase Phase
}

// New creates the fence for view.
func New(view string, live Live, opts ...Option) *Fence {
	f := &Fence{
		view: view,
		live: live,
		log:  logger.Global().WithPrefix("fence"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Phase returns the current state.
func (f *Fence) Phase() Phase {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.phase
}

// Loading reports whether the latest fetch is still outstanding.
func (f *Fence) Loading() bool {
	return f.Phase() == Fetching
}

// Begin captures the view's context and marks every earlier fetch stale.
// It refuses to issue when the view has no entity or the entity is outside
// the active scope; the caller renders its empty state in that case.
func (f *Fence) Begin() (Stamp, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c := f.live()
	f.seq++
	if c.Entity == nil {
		f.phase = Idle
		return Stamp{}, ErrNoEntity
	}
	if !c.Scope.Belongs(*c.Entity) {
		f.phase = Idle
		f.log.Debug("view %s: %s is outside scope %s, not fetching", f.view, c.Entity.Path, c.Scope.Path)
		return Stamp{}, fmt.Errorf("%w: %s not under %s", ErrOutOfScope, c.Entity.Path, c.Scope.Path)
	}

	f.phase = Fetching
	return stampOf(f.view, f.seq, c), nil
}

// ShouldApply reports whether a result stamped s may still be applied.
func (f *Fence) ShouldApply(s Stamp) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.check(s)
}

// Complete applies the result through apply when s is still current and
// reports whether it did. The check and apply happen atomically with respect
// to Begin and Reset.
func (f *Fence) Complete(s Stamp, apply func()) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.check(s) {
		return false
	}
	if apply != nil {
		apply()
	}
	f.phase = Applied
	return true
}

// Reset discards everything in flight and returns to Idle.
func (f *Fence) Reset() {
	f.mu.Lock()
	f.seq++
	f.phase = Idle
	f.mu.Unlock()
}

func (f *Fence) check(s Stamp) bool {
	if s.View == f.view && s.Seq == f.seq && s.matches(f.live()) {
		return true
	}

	f.log.Debug("view %s: discarding stale response (entity %s, seq %d, latest %d)", f.view, s.EntityID, s.Seq, f.seq)
	f.audit.Info("Discarded stale response for %s (%s)", f.view, s.EntityID)

	// Only the current fetch may move the phase; an older one leaves the
	// loading indicator to whichever fetch is current.
	if s.Seq == f.seq && f.phase == Fetching {
		f.phase = Discarded
	}
	return false
}

// Run issues fetch under the fence with a timeout and hands the outcome,
// success or failure, to apply only if it is still current. A timeout is an
// ordinary outcome and goes through the same check. Run blocks until the
// fetch finishes; it returns ErrStale when the outcome was discarded.
func Run[T any](ctx context.Context, f *Fence, timeout time.Duration,
	fetch func(ctx context.Context, s Stamp) (T, error),
	apply func(result T, err error),
) error {
	s, err := f.Begin()
	if err != nil {
		return err
	}

	fctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, ferr := fetch(fctx, s)
	if ferr == nil && fctx.Err() != nil {
		ferr = fctx.Err()
	}
	if errors.Is(ferr, context.DeadlineExceeded) {
		ferr = fmt.Errorf("fetch for %s timed out after %s: %w", s.EntityID, timeout, ferr)
	}

	if !f.Complete(s, func() { apply(result, ferr) }) {
		return ErrStale
	}
	return ferr
}
