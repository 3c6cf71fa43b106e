package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// StartMetricsHTTP starts a lightweight HTTP server that exposes /metrics
// in Prometheus text exposition format. It runs in the background and
// shuts down when the server context is cancelled.
func (s *Server) StartMetricsHTTP() {
	addr := s.cfg.MetricsAddr
	if addr == "" {
		return // metrics endpoint disabled
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("metrics HTTP listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics HTTP error", "err", err)
		}
	}()

	go func() {
		<-s.ctx.Done()
		_ = srv.Close()
	}()
}

// handleMetrics writes all metrics in Prometheus text exposition format.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	m := s.metrics
	uptime := time.Since(m.startTime).Seconds()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	// Helper for gauge/counter lines.
	// Write errors to http.ResponseWriter are non-actionable; suppress errcheck.
	write := func(name, help, mtype string, value int64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %d\n", name, value)
	}

	_, _ = fmt.Fprintf(w, "# HELP linechat_uptime_seconds Server uptime in seconds.\n")
	_, _ = fmt.Fprintf(w, "# TYPE linechat_uptime_seconds gauge\n")
	_, _ = fmt.Fprintf(w, "linechat_uptime_seconds %f\n", uptime)

	write("linechat_sessions_active", "Current active sessions.", "gauge",
		int64(s.registry.Count()))
	write("linechat_connections_active", "Current open connections.", "gauge",
		m.ActiveConnections.Load())
	write("linechat_connections_total", "Lifetime TCP connections accepted.", "counter",
		m.TotalConnections.Load())
	write("linechat_disconnects_total", "Total client disconnects.", "counter",
		m.TotalDisconnects.Load())

	write("linechat_auth_success_total", "Successful authentication handshakes.", "counter",
		m.SuccessfulAuths.Load())
	write("linechat_auth_failed_total", "Failed authentication attempts.", "counter",
		m.FailedAuths.Load())

	write("linechat_messages_total", "Total chat messages routed (broadcast + private).", "counter",
		m.MessagesSent.Load())
	write("linechat_broadcasts_total", "Total broadcast messages routed.", "counter",
		m.BroadcastsSent.Load())
	write("linechat_privates_total", "Total private messages routed.", "counter",
		m.PrivatesSent.Load())

	write("linechat_events_dropped_total", "Event log entries dropped by the async sink.", "counter",
		m.EventsDropped.Load())
}
