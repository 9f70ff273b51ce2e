// Package bus is the selection bus: it carries "entity selected" and window
// focus notifications to every subscriber in this process and, when a
// Transport is attached, to the other windows of the same session.
//
// Publish never blocks. Local delivery runs on an actor mailbox, so
// subscribers are always called after Publish has returned and in publish
// order. A missing or failing transport only narrows delivery to this
// process; it is not reported as an error.
package bus

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/codefionn/wellspace/internal/actor"
	"github.com/codefionn/wellspace/internal/entity"
	"github.com/codefionn/wellspace/internal/logger"
)

// ErrClosed is returned when starting a bus that was already closed.
var ErrClosed = errors.New("bus closed")

const defaultMailboxSize = 256

// Transport moves wire messages between windows. Send must not block; it
// returns an error when the message cannot be queued.
type Transport interface {
	Send(msg Message) error
	// SetReceiver installs the callback for messages from other windows.
	SetReceiver(func(Message))
	Close() error
}

// Option configures a Bus
type Option func(*Bus)

// WithTransport attaches a cross-window transport.
func WithTransport(t Transport) Option {
	return func(b *Bus) { b.transport = t }
}

// WithMailboxSize overrides the local delivery queue length.
func WithMailboxSize(n int) Option {
	return func(b *Bus) { b.mailboxSize = n }
}

// WithLogger sets the component logger.
func WithLogger(l *logger.Logger) Option {
	return func(b *Bus) { b.log = l }
}

// Bus is one window's endpoint of the selection bus.
type Bus struct {
	id          string
	mailboxSize int
	transport   Transport
	log         *logger.Logger

	mu         sync.RWMutex
	ref        *actor.ActorRef
	nextID     uint64
	selectSubs map[uint64]func(Selected)
	focusSubs  map[uint64]func(Focus)
	closed     bool
}

// New creates a bus. Call Start before publishing.
func New(opts ...Option) *Bus {
	b := &Bus{
		id:          uuid.NewString(),
		mailboxSize: defaultMailboxSize,
		selectSubs:  make(map[uint64]func(Selected)),
		focusSubs:   make(map[uint64]func(Focus)),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		b.log = logger.Global().WithPrefix("bus")
	}
	return b
}

// ID is the origin tag stamped on outgoing wire messages.
func (b *Bus) ID() string {
	return b.id
}

// Start spins up local delivery and hooks the transport receiver.
func (b *Bus) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.mu.Unlock()

	ref := actor.NewActorRef("bus-"+b.id, &dispatcher{bus: b}, b.mailboxSize)
	if err := ref.Start(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = ref.Stop(ctx)
		return ErrClosed
	}
	b.ref = ref
	b.mu.Unlock()

	if b.transport != nil {
		b.transport.SetReceiver(b.receiveRemote)
	}
	return nil
}

// Publish announces that ref was selected in scope.
func (b *Bus) Publish(ref entity.Ref, scope entity.Scope) {
	msg := selectedMessage(ref, scope)
	msg.Origin = b.id
	b.enqueue(msg, false)
	b.broadcast(msg)
}

// NotifyFocus reports that a window gained focus.
func (b *Bus) NotifyFocus(f Focus) {
	msg := Message{
		Type:       TypeWindowFocus,
		WindowID:   f.WindowID,
		WindowType: f.WindowType,
		EntityName: f.EntityName,
		Message:    f.Message,
		Origin:     b.id,
	}
	b.enqueue(msg, false)
	b.broadcast(msg)
}

// Subscribe registers h for selection events. The returned function removes
// it; calling it more than once, or after Close, is harmless.
func (b *Bus) Subscribe(h func(Selected)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}
	b.nextID++
	id := b.nextID
	b.selectSubs[id] = h
	return func() {
		b.mu.Lock()
		delete(b.selectSubs, id)
		b.mu.Unlock()
	}
}

// SubscribeFocus registers h for focus notifications.
func (b *Bus) SubscribeFocus(h func(Focus)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}
	b.nextID++
	id := b.nextID
	b.focusSubs[id] = h
	return func() {
		b.mu.Lock()
		delete(b.focusSubs, id)
		b.mu.Unlock()
	}
}

// Close stops delivery and drops every subscriber. Handlers never fire again.
func (b *Bus) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.selectSubs = make(map[uint64]func(Selected))
	b.focusSubs = make(map[uint64]func(Focus))
	ref := b.ref
	b.mu.Unlock()

	var errs []error
	if ref != nil {
		errs = append(errs, ref.Stop(ctx))
		b.log.Debug("bus %s closed: %d deliveries, %d dropped", b.id, ref.Processed(), ref.Dropped())
	}
	if b.transport != nil {
		errs = append(errs, b.transport.Close())
	}
	return errors.Join(errs...)
}

func (b *Bus) receiveRemote(msg Message) {
	if msg.Origin == b.id {
		return
	}
	b.enqueue(msg, true)
}

func (b *Bus) enqueue(msg Message, remote bool) {
	b.mu.RLock()
	ref := b.ref
	b.mu.RUnlock()
	if ref == nil {
		b.log.Warn("bus not started, dropping %s", msg.Type)
		return
	}
	if err := ref.Send(delivery{msg: msg, remote: remote}); err != nil {
		b.log.Warn("local delivery of %s dropped: %v", msg.Type, err)
	}
}

func (b *Bus) broadcast(msg Message) {
	if b.transport == nil {
		return
	}
	if err := b.transport.Send(msg); err != nil {
		b.log.Debug("cross-window broadcast of %s unavailable: %v", msg.Type, err)
	}
}

func (b *Bus) handlers() ([]func(Selected), []func(Focus)) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	sel := make([]func(Selected), 0, len(b.selectSubs))
	for _, h := range b.selectSubs {
		sel = append(sel, h)
	}
	foc := make([]func(Focus), 0, len(b.focusSubs))
	for _, h := range b.focusSubs {
		foc = append(foc, h)
	}
	return sel, foc
}

type delivery struct {
	msg    Message
	remote bool
}

func (delivery) Type() string { return "bus.delivery" }

// dispatcher fans a delivery out to the current subscribers.
type dispatcher struct {
	bus *Bus
}

func (d *dispatcher) ID() string                  { return "bus-dispatcher" }
func (d *dispatcher) Start(context.Context) error { return nil }
func (d *dispatcher) Stop(context.Context) error  { return nil }

func (d *dispatcher) Receive(_ context.Context, m actor.Message) error {
	del, ok := m.(delivery)
	if !ok {
		return nil
	}
	sel, foc := d.bus.handlers()
	switch del.msg.Type {
	case TypeEntitySelected:
		ev := del.msg.selected(del.remote)
		for _, h := range sel {
			h(ev)
		}
	case TypeWindowFocus:
		ev := del.msg.focus(del.remote)
		for _, h := range foc {
			h(ev)
		}
	}
	return nil
}
