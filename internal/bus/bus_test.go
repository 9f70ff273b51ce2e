package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/wellspace/internal/entity"
)

type recorder struct {
	mu  sync.Mutex
	got []Selected
}

func (r *recorder) handle(ev Selected) {
	r.mu.Lock()
	r.got = append(r.got, ev)
	r.mu.Unlock()
}

func (r *recorder) events() []Selected {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Selected(nil), r.got...)
}

func startBus(t *testing.T, opts ...Option) *Bus {
	t.Helper()
	b := New(opts...)
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(func() { _ = b.Close(context.Background()) })
	return b
}

var (
	wellA = entity.Ref{ID: "a", Name: "WellA", Path: "/proj/a"}
	wellB = entity.Ref{ID: "b", Name: "WellB", Path: "/proj/b"}
	proj  = entity.Scope{Name: "proj", Path: "/proj"}
)

func TestPublishDeliversLocallyInOrder(t *testing.T) {
	b := startBus(t)
	rec := &recorder{}
	b.Subscribe(rec.handle)

	b.Publish(wellA, proj)
	b.Publish(wellB, proj)

	require.Eventually(t, func() bool { return len(rec.events()) == 2 }, time.Second, 5*time.Millisecond)
	evs := rec.events()
	assert.Equal(t, "a", evs[0].Entity.ID)
	assert.Equal(t, "b", evs[1].Entity.ID)
	assert.Equal(t, "/proj", evs[1].Scope.Path)
	assert.False(t, evs[0].Remote)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := startBus(t)
	rec := &recorder{}
	other := &recorder{}
	unsub := b.Subscribe(rec.handle)
	b.Subscribe(other.handle)

	unsub()
	unsub()
	b.Publish(wellA, proj)

	require.Eventually(t, func() bool { return len(other.events()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, rec.events())
}

func TestCrossWindowDelivery(t *testing.T) {
	network := NewNetwork()
	main := startBus(t, WithTransport(network.Endpoint()))
	popup := startBus(t, WithTransport(network.Endpoint()))

	mainRec, popupRec := &recorder{}, &recorder{}
	main.Subscribe(mainRec.handle)
	popup.Subscribe(popupRec.handle)

	main.Publish(wellB, proj)

	require.Eventually(t, func() bool { return len(popupRec.events()) == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, popupRec.events()[0].Remote)
	assert.Equal(t, "WellB", popupRec.events()[0].Entity.Name)

	// the publisher sees its own event once, locally
	require.Eventually(t, func() bool { return len(mainRec.events()) == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, mainRec.events()[0].Remote)
}

func TestClosedWindowNeverFiresAgain(t *testing.T) {
	network := NewNetwork()
	main := startBus(t, WithTransport(network.Endpoint()))
	popup := New(WithTransport(network.Endpoint()))
	require.NoError(t, popup.Start(context.Background()))

	rec := &recorder{}
	popup.Subscribe(rec.handle)
	require.NoError(t, popup.Close(context.Background()))

	main.Publish(wellA, proj)
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, rec.events())

	// subscribing after close is a no-op
	popup.Subscribe(rec.handle)()
}

type brokenTransport struct{}

func (brokenTransport) Send(Message) error        { return errors.New("channel disabled") }
func (brokenTransport) SetReceiver(func(Message)) {}
func (brokenTransport) Close() error              { return nil }

func TestUnavailableTransportDegradesToLocal(t *testing.T) {
	b := startBus(t, WithTransport(brokenTransport{}))
	rec := &recorder{}
	b.Subscribe(rec.handle)

	b.Publish(wellA, proj)
	require.Eventually(t, func() bool { return len(rec.events()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestFocusNotifications(t *testing.T) {
	network := NewNetwork()
	host := startBus(t, WithTransport(network.Endpoint()))
	popup := startBus(t, WithTransport(network.Endpoint()))

	var mu sync.Mutex
	var got []Focus
	host.SubscribeFocus(func(f Focus) {
		mu.Lock()
		got = append(got, f)
		mu.Unlock()
	})

	popup.NotifyFocus(Focus{WindowID: "LogPlot-1", WindowType: "LogPlot", EntityName: "WellA", Message: "LogPlot Window [LogPlot-1] focused: WellA"})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "LogPlot-1", got[0].WindowID)
	assert.True(t, got[0].Remote)
}

func TestDecodeValidates(t *testing.T) {
	_, err := Decode([]byte(`{"type":"ENTITY_SELECTED"}`))
	assert.Error(t, err)
	_, err = Decode([]byte(`{"type":"NOPE"}`))
	assert.Error(t, err)
	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)

	m, err := Decode([]byte(`{"type":"ENTITY_SELECTED","entity":{"id":"a","name":"WellA","path":"/p/a","scope":"/p"}}`))
	require.NoError(t, err)
	assert.Equal(t, "/p", m.Entity.Scope)

	data, err := Encode(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ENTITY_SELECTED","entity":{"id":"a","name":"WellA","path":"/p/a","scope":"/p"}}`, string(data))
}

func TestPublishWhileStarting(t *testing.T) {
	b := New()
	t.Cleanup(func() { _ = b.Close(context.Background()) })
	rec := &recorder{}
	b.Subscribe(rec.handle)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					b.Publish(wellA, proj)
				}
			}
		}()
	}

	require.NoError(t, b.Start(context.Background()))
	require.Eventually(t, func() bool { return len(rec.events()) > 0 }, time.Second, 5*time.Millisecond)
	close(stop)
	wg.Wait()
}

func TestStartAfterCloseFails(t *testing.T) {
	b := New()
	require.NoError(t, b.Close(context.Background()))
	assert.ErrorIs(t, b.Start(context.Background()), ErrClosed)
}
