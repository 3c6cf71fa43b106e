package sink

import (
	"log/slog"
	"sync"

	"github.com/NicolasHaas/linechat/pkg/model"
)

// Async decouples the router from a possibly slow sink with a bounded
// buffer and a single drain goroutine. When the buffer is full the event is
// dropped and counted rather than blocking the caller.
type Async struct {
	next   Sink
	buf    chan model.Event
	done   chan struct{}
	onDrop func()

	mu     sync.RWMutex
	closed bool
}

// NewAsync wraps next with a buffer of the given size. onDrop, if non-nil,
// is invoked once per dropped event (typically a metrics counter).
func NewAsync(next Sink, size int, onDrop func()) *Async {
	if size <= 0 {
		size = 256
	}
	a := &Async{
		next:   next,
		buf:    make(chan model.Event, size),
		done:   make(chan struct{}),
		onDrop: onDrop,
	}
	go a.drain()
	return a
}

func (a *Async) drain() {
	defer close(a.done)
	for ev := range a.buf {
		a.next.Append(ev)
	}
}

// Append enqueues ev without blocking. A full buffer, or a sink already
// closed (a straggler during shutdown), drops the event.
func (a *Async) Append(ev model.Event) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.drop(ev)
		return
	}
	select {
	case a.buf <- ev:
	default:
		a.drop(ev)
	}
}

func (a *Async) drop(ev model.Event) {
	slog.Warn("event log dropped an event", "kind", ev.Kind)
	if a.onDrop != nil {
		a.onDrop()
	}
}

// Close stops accepting events, waits for the buffer to drain, and closes
// the wrapped sink. Idempotent.
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	close(a.buf)
	<-a.done
	return a.next.Close()
}
