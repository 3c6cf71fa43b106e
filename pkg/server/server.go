// Package server implements the LineChat server: connection lifecycle,
// session registry, and message routing.
package server

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/NicolasHaas/linechat/pkg/sink"
	"github.com/NicolasHaas/linechat/pkg/store"
)

// Config holds server configuration. Immutable for the process lifetime.
// The YAML form lives in config.go, where durations read as "60s" strings.
type Config struct {
	Addr        string // TCP bind address (e.g. ":12345")
	DBPath      string // SQLite database path
	ChatLogPath string // chat event log file (empty = disabled)
	MetricsAddr string // HTTP bind address for /metrics (empty = disabled)

	// EchoBroadcast controls whether a broadcast is delivered back to its
	// sender. Both behaviors shipped historically; the default matches the
	// original server, which excluded the sender.
	EchoBroadcast bool

	QueueSize       int // per-session outbound queue capacity
	MaxAuthAttempts int
	AuthTimeout     time.Duration // per-line deadline during the handshake
	WriteTimeout    time.Duration // per-line transport write deadline
	ShutdownTimeout time.Duration // bound on waiting for session teardown
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:            ":12345",
		DBPath:          "linechat.db",
		ChatLogPath:     "chat_log.txt",
		MetricsAddr:     ":12346",
		EchoBroadcast:   false,
		QueueSize:       64,
		MaxAuthAttempts: 3,
		AuthTimeout:     60 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// Dependencies holds external dependencies for the server.
// Server assumes ownership of Store and Events and closes them on shutdown.
type Dependencies struct {
	Store  store.DataStore
	Events sink.Sink
}

// Server is the main LineChat server.
type Server struct {
	cfg      Config
	registry *Registry
	router   *Router
	metrics  *Metrics
	store    store.DataStore
	events   sink.Sink
	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup // one entry per live connection handler
}

// New creates a new Server instance.
func New(cfg Config, deps Dependencies) *Server {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.MaxAuthAttempts <= 0 {
		cfg.MaxAuthAttempts = DefaultConfig().MaxAuthAttempts
	}
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = DefaultConfig().AuthTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}

	events := deps.Events
	if events == nil {
		events = sink.Nop{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	metrics := NewMetrics()
	registry := NewRegistry()
	return &Server{
		cfg:      cfg,
		registry: registry,
		router:   NewRouter(registry, metrics, events, cfg.EchoBroadcast),
		metrics:  metrics,
		store:    deps.Store,
		events:   events,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Registry returns the session registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Router returns the message router.
func (s *Server) Router() *Router {
	return s.router
}

// Metrics returns the server metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}
