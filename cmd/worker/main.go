package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"squeeze-worker/internal/client"
	"squeeze-worker/internal/config"
	"squeeze-worker/internal/hardware"
	"squeeze-worker/internal/heartbeat"
	"squeeze-worker/internal/logging"
	"squeeze-worker/internal/monitor"
	"squeeze-worker/internal/scheduler"
	"squeeze-worker/internal/server"
	"squeeze-worker/internal/transcoder"
	"squeeze-worker/pkg/models"
)

func main() {
	var configPath string
	cmd := &cobra.Command{
		Use:           "squeeze-worker",
		Short:         "Compression worker daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yml", "Path to the YAML config file")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// 1. Load Configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	log := logging.Component(logger, "worker")
	log.WithField("worker_id", cfg.WorkerID).Info("Starting squeeze worker")

	// 2. One worker per temp dir
	if err := os.MkdirAll(cfg.TempDir, 0o755); err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	lock := flock.New(filepath.Join(cfg.TempDir, "squeeze-worker.lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another squeeze worker instance is already running")
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.WithError(err).Warn("Failed to release worker lock")
		}
	}()

	// We catch SIGINT (Ctrl+C) and SIGTERM (OS shutdown).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Detect hardware and build the engine
	registry := hardware.NewRegistry(hardware.Options{
		FFmpegPath:    cfg.FFmpegPath,
		EnableHWAccel: cfg.EnableHWAccel,
		ProbeTimeout:  time.Duration(cfg.ProbeTimeoutSec) * time.Second,
	}, logger)
	caps := registry.Capabilities(ctx)

	engine, err := transcoder.NewEngine(caps, transcoder.Options{
		FFmpegPath:  cfg.FFmpegPath,
		FFprobePath: cfg.FFprobePath,
		TempDir:     cfg.TempDir,
		MaxAttempts: cfg.MaxAttempts,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize transcoder engine: %w", err)
	}

	// 4. Optional orchestrator
	var reporter scheduler.Reporter
	orch := client.NewOrchestratorClient(cfg, logger)
	if orch.Enabled() {
		reporter = orch
	}

	mon := monitor.NewSystemMonitor()
	sched := scheduler.New(engine, reporter, cfg.DefaultSettings(), cfg.JobQueueSize, logger)
	sched.SetReadiness(mon, 3, 10*time.Second)
	go sched.Run(ctx)

	if orch.Enabled() {
		register := func(ctx context.Context) error {
			return orch.Register(ctx, advertisedURL(cfg.ListenAddr), models.NewWorkerCapabilities(caps))
		}
		if err := register(ctx); err != nil {
			log.WithError(err).Warn("Initial registration failed, heartbeat will retry")
		}
		hb := heartbeat.New(time.Duration(cfg.HeartbeatSec)*time.Second, orch, mon, sched, register, logger)
		hb.Start(ctx)
	} else {
		log.Info("No orchestrator configured, running standalone")
	}

	// 5. Serve until shutdown
	srv := server.NewJobServer(cfg.ListenAddr, sched, engine.Capabilities, logger)
	err = srv.Start(ctx)
	log.Info("Shutting down worker")
	return err
}

// advertisedURL turns a listen address like ":8089" into a URL the
// orchestrator can reach.
func advertisedURL(listenAddr string) string {
	host, port, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return ""
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		if name, err := os.Hostname(); err == nil {
			host = name
		}
	}
	return "http://" + net.JoinHostPort(host, port)
}
