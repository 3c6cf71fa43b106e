package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/NicolasHaas/linechat/pkg/logging"
	"github.com/NicolasHaas/linechat/pkg/server"
	"github.com/NicolasHaas/linechat/pkg/sink"
	"github.com/NicolasHaas/linechat/pkg/store"
	"github.com/NicolasHaas/linechat/pkg/version"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (flags override its values)")
	writeConfig := flag.Bool("write-config", false, "Write the default config to -config and exit")
	showVersion := flag.Bool("version", false, "Print version and exit")

	cfg := server.DefaultConfig()
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "TCP bind address")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database file path")
	flag.StringVar(&cfg.ChatLogPath, "chat-log", cfg.ChatLogPath, "Chat event log file (empty to disable)")
	flag.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "HTTP bind address for /metrics (empty to disable)")
	flag.BoolVar(&cfg.EchoBroadcast, "echo", cfg.EchoBroadcast, "Deliver broadcasts back to their sender")

	logLevel := flag.String("log-level", "info", "Log level: "+logging.LevelNames())
	logFormat := flag.String("log-format", "text", "Log format: text or json")
	flag.Parse()

	if *showVersion {
		fmt.Println("linechat server", version.Full())
		return
	}

	// Configure structured logging
	if err := logging.Setup(logging.Options{
		Level:  *logLevel,
		Format: *logFormat,
		Output: os.Stdout,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}

	if *writeConfig {
		if *configPath == "" {
			fmt.Fprintln(os.Stderr, "-write-config requires -config")
			os.Exit(1)
		}
		if err := server.WriteDefaultConfig(*configPath); err != nil {
			slog.Error("write config", "err", err)
			os.Exit(1)
		}
		return
	}

	if *configPath != "" {
		loaded, err := server.LoadConfig(*configPath)
		if err != nil {
			slog.Error("load config", "path", *configPath, "err", err)
			os.Exit(1)
		}
		cfg = loaded
		// Re-apply any flags given on the command line over the file.
		flag.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "addr":
				cfg.Addr = f.Value.String()
			case "db":
				cfg.DBPath = f.Value.String()
			case "chat-log":
				cfg.ChatLogPath = f.Value.String()
			case "metrics":
				cfg.MetricsAddr = f.Value.String()
			case "echo":
				cfg.EchoBroadcast = f.Value.String() == "true"
			}
		})
	}

	st, err := store.New(cfg.DBPath)
	if err != nil {
		slog.Error("open database", "err", err)
		os.Exit(1)
	}

	// The drop callback fires only once the server is running, so it may
	// safely capture srv before New assigns it.
	var srv *server.Server
	events, err := buildEventSink(cfg, st, func() {
		srv.Metrics().EventsDropped.Add(1)
	})
	if err != nil {
		slog.Error("open event sink", "err", err)
		os.Exit(1)
	}

	srv = server.New(cfg, server.Dependencies{Store: st, Events: events})
	if err := srv.Run(); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}

// buildEventSink assembles the chat event pipeline: every event is appended
// to the database and, when configured, to the plain-text chat log. The
// whole pipeline sits behind an async stage so slow disks never stall the
// router.
func buildEventSink(cfg server.Config, st store.DataStore, onDrop func()) (sink.Sink, error) {
	sinks := sink.Multi{sink.NewStore(st)}
	if cfg.ChatLogPath != "" {
		fs, err := sink.NewFile(cfg.ChatLogPath)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, fs)
	}
	return sink.NewAsync(sinks, 256, onDrop), nil
}
