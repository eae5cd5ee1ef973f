package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fentz26/warble/internal/cache"
	"github.com/fentz26/warble/internal/config"
	"github.com/fentz26/warble/internal/controlplane"
	"github.com/fentz26/warble/internal/executor"
	"github.com/fentz26/warble/internal/metrics"
	"github.com/fentz26/warble/internal/planner"
	"github.com/fentz26/warble/internal/scheduler"
	"github.com/fentz26/warble/internal/store"
	"github.com/fentz26/warble/internal/twitter"
	"github.com/fentz26/warble/internal/workflow"
)

var (
	listenAddr string
	configPath string
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the agent daemon",
	Long:  `Starts the daemon that owns the task store, workflow registry, scheduler and executor, and serves the HTTP API.`,
	RunE:  runDaemon,
}

func init() {
	daemonCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address for the API server (overrides config)")
	daemonCmd.Flags().StringVar(&configPath, "config", "", "Path to config file")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.API.Listen = listenAddr
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("starting warble daemon",
		zap.String("version", version),
		zap.String("listen", cfg.API.Listen))

	s := store.New()

	reg := workflow.NewRegistry()
	if err := workflow.RegisterBuiltins(reg); err != nil {
		return err
	}
	if cfg.Workflows.Dir != "" {
		n, err := workflow.LoadDir(reg, cfg.Workflows.Dir)
		if err != nil {
			return fmt.Errorf("loading workflows: %w", err)
		}
		logger.Info("workflow definitions loaded",
			zap.Int("count", n),
			zap.String("dir", cfg.Workflows.Dir))

		if cfg.Workflows.Watch {
			watcher, err := workflow.NewWatcher(reg, cfg.Workflows.Dir, logger)
			if err != nil {
				return fmt.Errorf("watching workflows: %w", err)
			}
			defer watcher.Close()
		}
	}

	var taskCache cache.Cache = cache.NewNoop()
	if cfg.Cache.RedisURL != "" {
		redisCache, err := cache.NewRedis(cache.Config{URL: cfg.Cache.RedisURL, TTL: cfg.Cache.TTL}, logger)
		if err != nil {
			return fmt.Errorf("connecting cache: %w", err)
		}
		taskCache = redisCache
	}
	defer taskCache.Close()

	collector := metrics.NewCollector("warble")
	client := buildTwitterClient(cfg, collector, logger)

	exec := executor.New(s, reg, client, taskCache, collector, &executor.Config{
		MaxRetries:          cfg.Executor.MaxRetries,
		RetryDelay:          cfg.Executor.RetryDelay,
		WatchdogTimeout:     cfg.Agent.WatchdogTimeout,
		MaxConcurrent:       int64(cfg.Agent.MaxConcurrentTasks),
		MaxTweetsPerRequest: cfg.Twitter.MaxResults,
	}, logger)

	sched := scheduler.New(s, reg, exec, collector, &scheduler.Config{
		TickInterval: cfg.Scheduler.TickInterval,
	}, logger)

	plan := planner.New(planner.Config{
		APIKey: cfg.Anthropic.APIKey,
		Model:  cfg.Anthropic.Model,
	}, logger)

	service := controlplane.NewService(controlplane.Deps{
		Store:                   s,
		Registry:                reg,
		Scheduler:               sched,
		Executor:                exec,
		Planner:                 plan,
		Version:                 version,
		DefaultScheduleInterval: cfg.Scheduler.DefaultInterval,
	})
	if cfg.Agent.AutoStart {
		service.StartAgent()
	}

	server := controlplane.NewServer(service, collector, cfg.API.Listen, logger)

	// Set up signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		err := server.Start()
		if err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			logger.Error("server failed", zap.Error(err))
			return err
		}
	}

	// Stop accepting requests, then drain scheduler and running tasks.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	service.StopAgent()
	exec.Stop()

	logger.Info("shutdown complete")
	return nil
}

// buildTwitterClient wires the collaborator: direct API only, or the action
// gateway with per-call fallback to direct when a gateway key is configured.
func buildTwitterClient(cfg *config.Config, m *metrics.Collector, logger *zap.Logger) twitter.Client {
	direct := twitter.NewDirect(twitter.DirectConfig{
		BaseURL:     cfg.Twitter.BaseURL,
		BearerToken: cfg.Twitter.BearerToken,
		UserID:      cfg.Twitter.UserID,
		MinInterval: cfg.Twitter.RateLimitDelay,
	})
	if cfg.Composio.APIKey == "" {
		logger.Info("twitter client ready", zap.String("mode", direct.Name()))
		return direct
	}

	enhanced := twitter.NewEnhanced(twitter.EnhancedConfig{
		BaseURL:     cfg.Composio.BaseURL,
		APIKey:      cfg.Composio.APIKey,
		MinInterval: cfg.Twitter.RateLimitDelay,
	})
	hybrid := twitter.NewHybrid(enhanced, direct, m, logger)
	logger.Info("twitter client ready", zap.String("mode", hybrid.Name()))
	return hybrid
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapCfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         cfg.Format,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapCfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
