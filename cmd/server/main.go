// Package main provides the entry point for the remedyd server, a
// self-healing remediation controller driven by monitoring alerts.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lvonguyen/remedyd/internal/api"
	"github.com/lvonguyen/remedyd/internal/audit"
	"github.com/lvonguyen/remedyd/internal/config"
	"github.com/lvonguyen/remedyd/internal/cooldown"
	"github.com/lvonguyen/remedyd/internal/observability"
	"github.com/lvonguyen/remedyd/internal/remediation"
	"github.com/lvonguyen/remedyd/internal/rules"
	"github.com/lvonguyen/remedyd/internal/runner"
)

// Version information (injected at build time via ldflags)
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("remedyd %s (commit: %s, built: %s)\n", Version, GitCommit, BuildTime)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging, Version)
	if err != nil {
		log.Fatalf("Logger error: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting remedyd",
		zap.String("version", Version),
		zap.String("config", *configPath),
	)

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics()
	}

	registry := rules.NewRegistry(logger)
	if err := registry.LoadPath(cfg.Rules.Path); err != nil {
		logger.Fatal("Failed to load rules", zap.Error(err))
	}
	logger.Info("Rules loaded", zap.Int("count", registry.Count()))

	var tracker cooldown.Tracker
	switch cfg.Cooldown.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Cooldown.Redis.Addr,
			Password: os.Getenv(cfg.Cooldown.Redis.PasswordEnv),
			DB:       cfg.Cooldown.Redis.DB,
		})
		tracker = cooldown.NewRedisTracker(client, cfg.Cooldown.Redis.KeyPrefix, logger)
		logger.Info("Using redis cooldown tracker", zap.String("addr", cfg.Cooldown.Redis.Addr))
	default:
		tracker = cooldown.NewMemoryTracker()
	}

	actionRunner := runner.New(cfg.Execution.RunnerBin, cfg.Execution.WorkDir, logger)
	store := remediation.NewStore()

	var exporter remediation.Exporter
	auditExporter := audit.New(cfg.Audit, metrics, logger)
	if auditExporter != nil {
		auditExporter.Start()
		exporter = auditExporter
		logger.Info("Audit export enabled", zap.String("url", cfg.Audit.URL))
	}

	orch := remediation.NewOrchestrator(
		registry, tracker, actionRunner, store, exporter, metrics, logger,
		cfg.Execution.MaxConcurrent,
	)

	apiServer := api.NewServer(orch, registry, metrics, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      apiServer.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("Server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	sig := <-sigChan
	logger.Info("Shutting down", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Shutdown error", zap.Error(err))
	}

	// Let in-flight remediations finish; they are bounded by their
	// action timeouts.
	orch.Wait()
	if auditExporter != nil {
		auditExporter.Close()
	}

	logger.Info("Server stopped")
}
