package server

import (
	"bufio"
	"net"
	"sync"
	"time"
)

// Session wraps one connected, authenticated client. The username is fixed
// for the session's life; the connection is exclusively owned by the session
// and closed exactly once, by the writer goroutine on its way out.
//
// All cross-session delivery goes through the outbound queue: the router
// enqueues, the session's single writer drains to the transport in FIFO
// order. Nothing else ever writes to the connection while a session is
// active, which is what makes concurrent fan-out safe.
type Session struct {
	username    string
	conn        net.Conn
	connectedAt time.Time

	writeTimeout time.Duration

	mu       sync.Mutex
	closed   bool
	outbound chan string

	closeOnce  sync.Once
	writerDone chan struct{}
}

// NewSession wraps conn for username with a bounded outbound queue.
// Call Start to begin draining the queue.
func NewSession(username string, conn net.Conn, queueSize int, writeTimeout time.Duration) *Session {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Session{
		username:     username,
		conn:         conn,
		connectedAt:  time.Now().UTC(),
		writeTimeout: writeTimeout,
		outbound:     make(chan string, queueSize),
		writerDone:   make(chan struct{}),
	}
}

// Username returns the session's username.
func (s *Session) Username() string {
	return s.username
}

// ConnectedAt returns when the session was established.
func (s *Session) ConnectedAt() time.Time {
	return s.connectedAt
}

// Alive reports whether the session still accepts outbound messages.
func (s *Session) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Send enqueues one line for delivery to the client. It never blocks: once
// the session is closed it is a silent no-op, and when the queue is full the
// line is dropped. Reports whether the line was queued.
func (s *Session) Send(line string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.outbound <- line:
		return true
	default:
		return false
	}
}

// Close marks the session dead and wakes the writer, which flushes the
// remaining queue best-effort and then closes the connection. Idempotent and
// safe to call concurrently with Send.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		// Senders check closed under the same mutex, so nobody can be
		// mid-send on the channel once we get here.
		close(s.outbound)
	})
}

// WriterDone returns a channel closed once the writer has exited and the
// connection is closed.
func (s *Session) WriterDone() <-chan struct{} {
	return s.writerDone
}

// Start launches the session's writer goroutine.
func (s *Session) Start() {
	go s.writeLoop()
}

// writeLoop is the session's single writer path: it drains the outbound
// queue to the transport in enqueue order. On a write failure it closes the
// session and discards whatever is still queued.
func (s *Session) writeLoop() {
	defer func() {
		_ = s.conn.Close()
		close(s.writerDone)
	}()

	w := bufio.NewWriter(s.conn)
	failed := false
	for line := range s.outbound {
		if failed {
			continue // draining after a transport error
		}
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
		if err := s.writeLine(w, line); err != nil {
			failed = true
			s.Close() // ends the range once the queue drains
		}
	}
}

func (s *Session) writeLine(w *bufio.Writer, line string) error {
	if _, err := w.WriteString(line); err != nil {
		return err
	}
	if err := w.WriteByte('\n'); err != nil {
		return err
	}
	return w.Flush()
}
