package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/auto-tuner-laser/tuning-core/internal/session"
	"github.com/auto-tuner-laser/tuning-core/internal/sink"
	"github.com/auto-tuner-laser/tuning-core/internal/tunerd"
	"github.com/auto-tuner-laser/tuning-core/pkg/config"
	"github.com/auto-tuner-laser/tuning-core/pkg/logger"
)

func main() {
	var configPath string
	var httpAddr string
	var logLevel string

	flag.StringVar(&configPath, "config", "", "path to daemon config yaml")
	flag.StringVar(&httpAddr, "http-addr", "", "HTTP listen address (overrides config)")
	flag.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error; overrides config)")
	flag.Parse()

	cfg := config.DefaultConfig()
	if configPath != "" {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			logger.Error("failed to load config", "path", configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if httpAddr != "" {
		cfg.HTTPAddr = httpAddr
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	log := logger.NewText(cfg.LogLevel, os.Stdout)
	logger.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	results, err := sink.FromConfig(cfg.Sink)
	if err != nil {
		logger.Error("failed to open result sink", "error", err)
		stop()
		os.Exit(1)
	}
	defer func() {
		if err := results.Close(); err != nil {
			logger.Error("result sink close error", "error", err)
		}
	}()

	store := session.NewStore()

	// The autonomous run loop needs both rig endpoints; without them the
	// daemon still serves the proposal/trial API for external orchestrators
	var runner *session.Runner
	if cfg.Trial != nil && cfg.Trial.MachineURL != "" && cfg.Trial.CameraURL != "" {
		runner = session.NewRunner(
			tunerd.NewMachineClient(cfg.Trial.MachineURL),
			tunerd.NewCameraClient(cfg.Trial.CameraURL),
			results,
			cfg.Trial,
			log,
		)
		logger.Info("trial rig attached", "machine_url", cfg.Trial.MachineURL, "camera_url", cfg.Trial.CameraURL)
	} else {
		logger.Info("no trial rig configured, running in orchestrator mode")
	}

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           tunerd.NewHTTPServer(ctx, store, runner, results, log).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown requested")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", "error", err)
	}

	// Abort any session still mid-loop so its history is terminal-stamped
	if active, ok := store.Active(); ok {
		if err := active.Abort("daemon shutdown"); err == nil {
			logger.Info("active session aborted on shutdown", "session_id", active.ID())
		}
	}
}
