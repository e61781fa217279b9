// Package main provides a keyword-spotting benchmark service: it evaluates
// exported detection models against annotated audio corpora and drives the
// Python training pipeline that produces them.
//
// Usage:
//
//	kwsbench [-config path/to/config.json]
//
// If -config is not specified, the server looks for config.json in the same
// directory as the binary.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/voicepage/kwsbench/internal/config"
	"github.com/voicepage/kwsbench/internal/events"
	"github.com/voicepage/kwsbench/internal/jobs"
	"github.com/voicepage/kwsbench/internal/model"
	"github.com/voicepage/kwsbench/internal/notify"
	"github.com/voicepage/kwsbench/internal/util"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: config.json next to binary)")
	showVersion := flag.Bool("version", false, "Print version information and exit")
	flag.Parse()

	if *showVersion {
		slog.Info("version info", "version", Version, "commit", Commit, "build_time", BuildTime)
		return
	}

	if *configPath == "" {
		execPath, err := os.Executable()
		if err != nil {
			slog.Error("failed to get executable path", "error", err)
			os.Exit(1)
		}
		*configPath = filepath.Join(filepath.Dir(execPath), "config.json")
	}

	slog.Info("using config file", "path", *configPath)

	cfg := config.New(*configPath)
	if err := cfg.Load(); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	snap := cfg.Snapshot()

	// Load the acoustic models. A missing model directory is not fatal:
	// training and workspace endpoints still work, evaluation reports the
	// models as not ready until a reload succeeds.
	rt := model.NewRuntime(snap.ModelsDir)
	if err := rt.Load(); err != nil {
		slog.Warn("acoustic models not loaded - evaluation unavailable",
			"dir", snap.ModelsDir, "error", err)
	} else {
		slog.Info("acoustic models loaded", "keywords", rt.AvailableKeywords())
	}

	evlog, err := events.NewLogger(filepath.Join(snap.ToolsDir, config.DefaultEventLogFile))
	if err != nil {
		slog.Error("failed to open event log", "error", err)
		os.Exit(1)
	}

	notifier := notify.NewBenchNotifier(cfg)

	mgr := jobs.NewManager(filepath.Join(snap.ToolsDir, config.DefaultJobHistoryFile))
	mgr.Notifier = notifier
	mgr.Events = evlog
	if err := mgr.Load(); err != nil {
		slog.Error("failed to load job history", "error", err)
		os.Exit(1)
	}

	srv := NewServer(cfg, rt, mgr, notifier, evlog)
	mgr.OnUpdate = srv.BroadcastJob

	httpServer := srv.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, util.ShutdownSignals()...)
	<-sigChan

	slog.Info("shutting down")

	// Stop version checker goroutine
	srv.version.Stop()

	// Shut down HTTP server.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	mgr.Close()
	if err := evlog.Close(); err != nil {
		slog.Error("error closing event log", "error", err)
	}
	rt.Close()

	slog.Info("shutdown complete")
}
