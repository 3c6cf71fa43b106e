package sink

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/NicolasHaas/linechat/pkg/model"
)

const fileTimeLayout = "2006-01-02 15:04:05"

// FileSink appends one formatted line per event to a log file, in the manner
// of a classic chat_log.txt.
type FileSink struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// NewFile opens (or creates) the log file at path in append mode.
func NewFile(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600) //nolint:gosec // path from server config
	if err != nil {
		return nil, fmt.Errorf("sink: open log file: %w", err)
	}
	return &FileSink{f: f, path: path}, nil
}

// Append writes "<timestamp> <event line>\n". Write failures are logged and
// swallowed: losing a log line must never disturb message routing.
func (s *FileSink) Append(ev model.Event) {
	line := ev.Time.UTC().Format(fileTimeLayout) + " " + ev.String() + "\n"

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return
	}
	if _, err := s.f.WriteString(line); err != nil {
		slog.Error("event log write failed", "path", s.path, "err", err)
	}
}

// Close closes the underlying file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
