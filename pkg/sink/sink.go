// Package sink provides append-only consumers for the chat event log.
//
// The router hands every connect/disconnect/message/error event to a Sink.
// Appending must never block message routing for long and must never fail
// routing: implementations report persistence problems through the logger
// and carry on.
package sink

import "github.com/NicolasHaas/linechat/pkg/model"

// Sink receives chat log events, one at a time, in the order the router
// produced them.
type Sink interface {
	// Append records one event. Implementations must not return routing
	// errors to the caller; failures are reported out-of-band.
	Append(ev model.Event)

	// Close flushes and releases the sink. No Append may follow Close.
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Append(model.Event) {}
func (Nop) Close() error       { return nil }

// Multi fans every event out to each of its sinks in order.
type Multi []Sink

// Append forwards ev to every sink.
func (m Multi) Append(ev model.Event) {
	for _, s := range m {
		s.Append(ev)
	}
}

// Close closes all sinks, returning the first error encountered.
func (m Multi) Close() error {
	var first error
	for _, s := range m {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
