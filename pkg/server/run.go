package server

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NicolasHaas/linechat/pkg/model"
	"github.com/NicolasHaas/linechat/pkg/protocol"
)

// Start binds the listen address and begins accepting connections.
// It returns once the listener is up; connection handling runs in the
// background until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", s.cfg.Addr, err)
	}
	s.listener = ln
	slog.Info("server listening", "addr", ln.Addr().String())

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || s.ctx.Err() != nil {
				return
			}
			slog.Error("accept failed", "err", err)
			continue
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// handleConn owns one client connection from accept to teardown.
func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()

	remote := conn.RemoteAddr().String()
	s.metrics.TotalConnections.Add(1)
	s.metrics.ActiveConnections.Add(1)
	defer s.metrics.ActiveConnections.Add(-1)
	slog.Debug("connection accepted", "remote", remote)

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), protocol.MaxLineBytes)

	sess, user, err := s.handshake(conn, scanner)
	if err != nil {
		if !errors.Is(err, errAuthExhausted) {
			slog.Debug("handshake aborted", "remote", remote, "err", err)
		}
		s.metrics.TotalDisconnects.Add(1)
		conn.Close()
		return
	}

	s.metrics.SuccessfulAuths.Add(1)
	slog.Info("user joined", "user", user.Username, "remote", remote)

	// From here the session writer owns the connection writes; the
	// deferred teardown also closes the connection via sess.Close.
	sess.Start()
	s.events.Append(model.Connected(user.Username))
	s.router.Announce(user.Username+" has joined the chat.", sess)
	sess.Send("[server] you are connected as " + user.Username + ". type /help for commands.")

	var quit bool
	defer func() { s.teardown(sess, quit) }()

	for scanner.Scan() {
		cmd, ok := protocol.Parse(scanner.Text())
		if !ok {
			continue
		}
		if s.router.Dispatch(sess, cmd) {
			quit = true
			return
		}
		if s.ctx.Err() != nil {
			return
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		if errors.Is(err, bufio.ErrTooLong) {
			sess.Send("[server] line too long, closing.")
		}
		slog.Debug("read loop ended", "user", user.Username, "err", err)
	}
}

// teardown unwinds one session: remove it from the registry, record the
// departure, and stop the writer. Safe to call when shutdown already
// closed the session; the registry removal is what keeps the departure
// announcement from firing twice.
func (s *Server) teardown(sess *Session, explicit bool) {
	if s.registry.Unregister(sess) {
		s.events.Append(model.Disconnected(sess.Username()))
		s.router.Announce(sess.Username()+" has left the chat.", sess)
		if explicit {
			sess.Send("[server] goodbye.")
		}
	}
	sess.Close()
	s.metrics.TotalDisconnects.Add(1)

	select {
	case <-sess.WriterDone():
	case <-time.After(s.cfg.WriteTimeout):
		slog.Warn("session writer did not drain in time", "user", sess.Username())
	}
	slog.Info("user left", "user", sess.Username())
}

// Run starts the server and blocks until SIGINT or SIGTERM, then performs
// a graceful shutdown.
func (s *Server) Run() error {
	if err := s.Start(); err != nil {
		return err
	}
	s.StartMetricsHTTP()
	s.metrics.StartPeriodicLog(60*time.Second, s.ctx.Done())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutdown signal received", "signal", sig.String())

	return s.Shutdown()
}

// Shutdown stops accepting connections, notifies and closes every live
// session, and waits up to ShutdownTimeout for handlers to unwind before
// releasing the event sink and the store.
func (s *Server) Shutdown() error {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}

	for _, sess := range s.registry.Sessions() {
		sess.Send("[server] shutting down.")
		sess.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.cfg.ShutdownTimeout):
		slog.Warn("shutdown timeout expired with sessions still draining",
			"remaining", s.registry.Count())
	}

	s.metrics.LogSummary()

	var errs []error
	if err := s.events.Close(); err != nil {
		errs = append(errs, fmt.Errorf("server: close event sink: %w", err))
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("server: close store: %w", err))
		}
	}
	return errors.Join(errs...)
}
