package sink

import (
	"log/slog"

	"github.com/NicolasHaas/linechat/pkg/model"
	"github.com/NicolasHaas/linechat/pkg/store"
)

// StoreSink persists events to the database's events table.
// It does not own the store: Close is a no-op so the server can keep using
// the store after the sink is shut down.
type StoreSink struct {
	st store.DataStore
}

// NewStore wraps st as an event sink.
func NewStore(st store.DataStore) *StoreSink {
	return &StoreSink{st: st}
}

// Append persists ev. Store failures are logged and swallowed.
func (s *StoreSink) Append(ev model.Event) {
	if _, err := s.st.AppendEvent(ev); err != nil {
		slog.Error("event store write failed", "kind", ev.Kind, "err", err)
	}
}

// Close is a no-op; the store's owner closes it.
func (s *StoreSink) Close() error {
	return nil
}
