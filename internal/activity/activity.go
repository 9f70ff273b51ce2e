// Package activity is the user-visible, append-only log of workspace events
// (link toggles, stale discards, layout saves and loads, window focus).
package activity

import (
	"fmt"
	"sync"
	"time"
)

// Kind classifies an entry for display.
type Kind string

const (
	KindInfo    Kind = "info"
	KindSuccess Kind = "success"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
)

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 500

// Entry is one line of the activity log
type Entry struct {
	Seq     uint64
	Time    time.Time
	Kind    Kind
	Message string
}

func (e Entry) String() string {
	return fmt.Sprintf("[%s] %s", e.Time.Format("15:04:05"), e.Message)
}

// Log keeps the most recent entries up to its capacity. Writers never block
// on readers, and nothing in the workspace depends on an entry being kept.
type Log struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
	seq      uint64
	now      func() time.Time
	watchers map[int]chan<- Entry
	nextW    int
}

// New creates a log holding at most capacity entries.
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		capacity: capacity,
		now:      time.Now,
		watchers: make(map[int]chan<- Entry),
	}
}

// Add appends a message. A nil log discards it.
func (l *Log) Add(kind Kind, format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.seq++
	e := Entry{Seq: l.seq, Time: l.now(), Kind: kind, Message: fmt.Sprintf(format, args...)}
	l.entries = append(l.entries, e)
	if over := len(l.entries) - l.capacity; over > 0 {
		l.entries = append(l.entries[:0:0], l.entries[over:]...)
	}
	watchers := make([]chan<- Entry, 0, len(l.watchers))
	for _, w := range l.watchers {
		watchers = append(watchers, w)
	}
	l.mu.Unlock()

	for _, w := range watchers {
		select {
		case w <- e:
		default:
		}
	}
}

func (l *Log) Info(format string, args ...interface{}) { l.Add(KindInfo, format, args...) }

func (l *Log) Success(format string, args ...interface{}) { l.Add(KindSuccess, format, args...) }

func (l *Log) Warning(format string, args ...interface{}) { l.Add(KindWarning, format, args...) }

func (l *Log) Error(format string, args ...interface{}) { l.Add(KindError, format, args...) }

// Entries returns a copy of the retained entries, oldest first.
func (l *Log) Entries() []Entry {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Last returns the newest entry.
func (l *Log) Last() (Entry, bool) {
	if l == nil {
		return Entry{}, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return Entry{}, false
	}
	return l.entries[len(l.entries)-1], true
}

// Watch forwards new entries to ch until the returned cancel is called.
// Entries are dropped when ch is not ready.
func (l *Log) Watch(ch chan<- Entry) (cancel func()) {
	l.mu.Lock()
	id := l.nextW
	l.nextW++
	l.watchers[id] = ch
	l.mu.Unlock()
	return func() {
		l.mu.Lock()
		delete(l.watchers, id)
		l.mu.Unlock()
	}
}
