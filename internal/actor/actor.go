package actor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/codefionn/wellspace/internal/logger"
)

// ErrMailboxFull is returned by Send when the mailbox cannot take another
// message without blocking the sender.
var ErrMailboxFull = errors.New("mailbox full")

// ErrStopped is returned by Send after the actor has been stopped.
var ErrStopped = errors.New("actor stopped")

// Message represents a message sent between actors
type Message interface {
	Type() string
}

// Actor represents an actor in the actor model
type Actor interface {
	// Receive processes incoming messages
	Receive(ctx context.Context, msg Message) error
	// Start starts the actor
	Start(ctx context.Context) error
	// Stop stops the actor gracefully
	Stop(ctx context.Context) error
	// ID returns the actor's unique identifier
	ID() string
}

// ActorRef is a reference to an actor for sending messages
type ActorRef struct {
	id        string
	mailbox   chan Message
	actor     Actor
	wg        sync.WaitGroup
	cancel    context.CancelFunc
	mu        sync.RWMutex
	stopped   bool
	dropped   atomic.Int64
	processed atomic.Int64
}

// NewActorRef creates a new actor reference with the given ID, actor
// implementation and mailbox size.
func NewActorRef(id string, actor Actor, mailboxSize int) *ActorRef {
	if mailboxSize <= 0 {
		mailboxSize = 1
	}
	ref := &ActorRef{
		id:      id,
		actor:   actor,
		mailbox: make(chan Message, mailboxSize),
	}
	return ref
}

// ID returns the actor's ID
func (ref *ActorRef) ID() string {
	return ref.id
}

// Send delivers msg to the actor's mailbox without blocking. A full mailbox
// drops the message and returns ErrMailboxFull.
func (ref *ActorRef) Send(msg Message) error {
	ref.mu.RLock()
	if ref.stopped {
		ref.mu.RUnlock()
		return fmt.Errorf("actor %s: %w", ref.id, ErrStopped)
	}
	ref.mu.RUnlock()

	select {
	case ref.mailbox <- msg:
		return nil
	default:
		ref.dropped.Add(1)
		return fmt.Errorf("actor %s: %w", ref.id, ErrMailboxFull)
	}
}

// Dropped returns the number of messages rejected because the mailbox was full.
func (ref *ActorRef) Dropped() int64 {
	return ref.dropped.Load()
}

// Processed returns the number of messages handed to Receive.
func (ref *ActorRef) Processed() int64 {
	return ref.processed.Load()
}

// Start starts the actor's message processing loop
func (ref *ActorRef) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	if err := ref.actor.Start(ctx); err != nil {
		cancel()
		return err
	}

	ref.mu.Lock()
	ref.cancel = cancel
	ref.mu.Unlock()

	ref.wg.Add(1)
	go ref.run(ctx)
	return nil
}

// Stop stops the actor gracefully. Messages still queued are dropped.
func (ref *ActorRef) Stop(ctx context.Context) error {
	ref.mu.Lock()
	if ref.stopped {
		ref.mu.Unlock()
		return nil
	}
	ref.stopped = true
	cancel := ref.cancel
	ref.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		ref.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return ref.actor.Stop(ctx)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (ref *ActorRef) deliver(ctx context.Context, msg Message) {
	ref.processed.Add(1)
	if err := ref.actor.Receive(ctx, msg); err != nil {
		logger.Error("Actor %s error processing %s: %v", ref.id, msg.Type(), err)
	}
}

// run is the actor's main message processing loop
func (ref *ActorRef) run(ctx context.Context) {
	defer ref.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-ref.mailbox:
			ref.deliver(ctx, msg)
		}
	}
}
