// skyshardd is the sky catalog query daemon.
//
// It serves pixel-sharded source catalogs from a dataset directory
// tree over HTTP, periodically re-discovering catalogs as ingestion
// lands new shards.
package main

import (
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kaelis/skyshard/internal/catalog"
	"github.com/kaelis/skyshard/internal/config"
	"github.com/kaelis/skyshard/internal/inspect"
	"github.com/kaelis/skyshard/internal/logging"
	"github.com/kaelis/skyshard/internal/server"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfgPath := flag.String("config", "config.yaml", "config file path")
	dataDir := flag.String("data", "", "dataset root (overrides config)")
	listen := flag.String("listen", "", "listen address (overrides config)")
	catalogs := flag.String("catalogs", "", "catalog allow-list, comma-separated or * (overrides config)")
	enableSQL := flag.Bool("sql", false, "enable the SQL inspection endpoint")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	jsonLogs := flag.Bool("json-logs", false, "emit JSON logs")
	flag.Parse()

	logging.Init(parseLevel(*logLevel), *jsonLogs)
	logMain := logging.Component("main")
	logMain.Info("skyshardd starting", "version", Version)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logMain.Info("no config file found, using defaults")
			cfg = config.DefaultConfig()
		} else {
			log.Fatalf("Load config: %v", err)
		}
	}

	// CLI overrides
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *listen != "" {
		cfg.Server.Listen = *listen
	}
	if *catalogs != "" {
		cfg.Catalogs = *catalogs
	}
	if *enableSQL {
		cfg.Server.EnableSQL = true
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("Ensure directories: %v", err)
	}

	store := catalog.New(cfg)

	var inspector *inspect.Inspector
	if cfg.Server.EnableSQL {
		inspector, err = inspect.New(cfg.DataDir)
		if err != nil {
			log.Fatalf("Open inspector: %v", err)
		}
		defer inspector.Close()
	}

	// The cone-search provider is an external collaborator; without
	// one the /cone endpoint reports itself unavailable and explicit
	// pixel-set queries remain fully functional.
	srv := server.New(cfg, store, nil, inspector)
	if err := srv.Start(); err != nil {
		log.Fatalf("Start server: %v", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	logMain.Info("shutting down")
	if err := srv.Stop(); err != nil {
		logMain.Error("shutdown failed", "error", err)
	}
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
