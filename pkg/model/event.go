package model

import (
	"fmt"
	"time"
)

// EventKind identifies the type of a chat log event.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventBroadcast
	EventPrivate
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connect"
	case EventDisconnected:
		return "disconnect"
	case EventBroadcast:
		return "broadcast"
	case EventPrivate:
		return "private"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseEventKind converts a string to an EventKind.
// Unrecognized values map to EventError.
func ParseEventKind(s string) EventKind {
	switch s {
	case "connect":
		return EventConnected
	case "disconnect":
		return EventDisconnected
	case "broadcast":
		return EventBroadcast
	case "private":
		return EventPrivate
	default:
		return EventError
	}
}

// Event is one append-only entry of the chat event log.
// Events are write-once: never mutated after creation.
type Event struct {
	ID   int64     `json:"id,omitempty"` // assigned by the store, 0 before persistence
	Time time.Time `json:"time"`
	Kind EventKind `json:"kind"`
	From string    `json:"from,omitempty"` // sender username, or error context for EventError
	To   string    `json:"to,omitempty"`   // private target, empty otherwise
	Text string    `json:"text,omitempty"` // message body or error detail
}

// Connected builds a connect event for username.
func Connected(username string) Event {
	return Event{Time: time.Now().UTC(), Kind: EventConnected, From: username}
}

// Disconnected builds a disconnect event for username.
func Disconnected(username string) Event {
	return Event{Time: time.Now().UTC(), Kind: EventDisconnected, From: username}
}

// Broadcast builds a broadcast message event.
func Broadcast(from, text string) Event {
	return Event{Time: time.Now().UTC(), Kind: EventBroadcast, From: from, Text: text}
}

// Private builds a private message event.
func Private(from, to, text string) Event {
	return Event{Time: time.Now().UTC(), Kind: EventPrivate, From: from, To: to, Text: text}
}

// Error builds an error event. Context names the failing component
// ("parse", "sink", ...), detail carries the specifics.
func Error(context, detail string) Event {
	return Event{Time: time.Now().UTC(), Kind: EventError, From: context, Text: detail}
}

// String renders the event as a single log line, without the timestamp.
// The file sink prepends its own timestamp column.
func (e Event) String() string {
	switch e.Kind {
	case EventConnected:
		return fmt.Sprintf("[CONNECT] %s", e.From)
	case EventDisconnected:
		return fmt.Sprintf("[DISCONNECT] %s", e.From)
	case EventBroadcast:
		return fmt.Sprintf("[BROADCAST] %s: %s", e.From, e.Text)
	case EventPrivate:
		return fmt.Sprintf("[PRIVATE] %s to %s: %s", e.From, e.To, e.Text)
	case EventError:
		return fmt.Sprintf("[ERROR] %s: %s", e.From, e.Text)
	default:
		return fmt.Sprintf("[UNKNOWN] %s: %s", e.From, e.Text)
	}
}
