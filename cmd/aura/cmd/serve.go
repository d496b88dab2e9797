package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aura-studio/aura/internal/cleanup"
	"github.com/aura-studio/aura/internal/composer"
	"github.com/aura-studio/aura/internal/database"
	"github.com/aura-studio/aura/internal/events"
	"github.com/aura-studio/aura/internal/hardware"
	internalhttp "github.com/aura-studio/aura/internal/http"
	"github.com/aura-studio/aura/internal/http/handlers"
	"github.com/aura-studio/aura/internal/jobstore"
	"github.com/aura-studio/aura/internal/maintenance"
	"github.com/aura-studio/aura/internal/models"
	"github.com/aura-studio/aura/internal/pipeline"
	"github.com/aura-studio/aura/internal/providers"
	"github.com/aura-studio/aura/internal/providers/builtin"
	"github.com/aura-studio/aura/internal/repository"
	"github.com/aura-studio/aura/internal/retry"
	"github.com/aura-studio/aura/internal/service"
	"github.com/aura-studio/aura/internal/shutdown"
	"github.com/aura-studio/aura/internal/supervisor"
	"github.com/aura-studio/aura/internal/validate"
	"github.com/aura-studio/aura/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the aura server",
	Long: `Start the aura HTTP server and job engine.

The server provides:
- REST API for submitting and managing video generation jobs
- Live progress streaming per job over SSE
- Health, liveness, and readiness endpoints
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "Host to bind to")
	serveCmd.Flags().Int("port", 0, "Port to listen on")
	serveCmd.Flags().String("data-dir", "", "Base directory for work, output, and log files")
	serveCmd.Flags().Int("max-jobs", 0, "Maximum concurrent pipeline runs")
	serveCmd.Flags().Bool("offline", false, "Force offline-only mode for all jobs")
}

// applyServeFlags overrides loaded config with explicitly set CLI flags.
func applyServeFlags(cmd *cobra.Command) {
	if cmd.Flags().Changed("host") {
		appConfig.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		appConfig.Server.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("data-dir") {
		appConfig.Storage.BaseDir, _ = cmd.Flags().GetString("data-dir")
	}
	if cmd.Flags().Changed("max-jobs") {
		appConfig.Engine.MaxConcurrentJobs, _ = cmd.Flags().GetInt("max-jobs")
	}
	if cmd.Flags().Changed("offline") {
		appConfig.Engine.OfflineOnly, _ = cmd.Flags().GetBool("offline")
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	applyServeFlags(cmd)
	cfg := appConfig
	logger := slog.Default()

	for _, dir := range []string{cfg.Storage.WorkPath(), cfg.Storage.OutputPath(), cfg.Storage.LogPath()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating storage directory %s: %w", dir, err)
		}
	}

	// Remove temp directories left behind by a previous run.
	if removed, err := cleanup.SweepOrphanedTempDirs(logger, cfg.Storage.WorkPath(), cfg.Storage.TempRetention.Duration()); err != nil {
		logger.Warn("startup temp sweep failed", slog.String("error", err.Error()))
	} else if removed > 0 {
		logger.Info("removed orphaned temp directories on startup", slog.Int("removed", removed))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	profile := hardware.Detect(ctx)
	logger.Info("hardware detected",
		slog.Int("logical_cores", profile.LogicalCores),
		slog.Int("ram_gib", profile.RAMGiB),
		slog.String("tier", string(profile.Tier)),
	)

	db, err := database.New(cfg.Database, logger, nil)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	records := repository.NewJobRecordRepository(db)

	bus := events.NewBus(events.Options{
		BufferSize:        cfg.Events.BufferSize,
		SubscriberBacklog: cfg.Events.SubscriberBacklog,
		HeartbeatInterval: cfg.Events.HeartbeatInterval,
	}, logger)
	bus.Start()

	store := jobstore.New(logger, bus, func(ctx context.Context, record *models.JobRecord) error {
		return records.Create(ctx, record)
	})

	sup := supervisor.New(logger)

	if cfg.Encoder.BinaryPath != "" {
		if err := os.Setenv("AURA_FFMPEG_BINARY", cfg.Encoder.BinaryPath); err != nil {
			return fmt.Errorf("setting encoder binary path: %w", err)
		}
	}
	detector := composer.NewBinaryDetector()

	registry := providers.NewRegistry()
	registry.RegisterLLM(builtin.NewRuleBasedLLM())
	registry.RegisterTTS(builtin.NewNullTTS())
	registry.RegisterImage(builtin.NewPlaceholderImage())
	registry.RegisterEncoder(composer.New(detector, sup, cfg.Storage.LogPath(), logger))
	registry.Freeze()

	breakers := retry.NewBreakerRegistry(retry.BreakerConfig{
		FailureThreshold: cfg.Engine.BreakerThreshold,
		Timeout:          cfg.Engine.BreakerTimeout,
	})
	invoker := retry.NewInvoker(breakers, logger)

	runner := pipeline.NewRunner(pipeline.Config{
		WorkDir:        cfg.Storage.WorkPath(),
		OutputDir:      cfg.Storage.OutputPath(),
		AutoFallback:   cfg.Engine.AutoFallback,
		RetryAttempts:  cfg.Engine.RetryAttempts,
		RetryBaseDelay: cfg.Engine.RetryBaseDelay,
	}, store, registry, invoker, logger)

	probe := func(ctx context.Context) error {
		_, err := detector.Detect(ctx)
		return err
	}
	validator := validate.New(registry, probe, cfg.Storage.WorkPath(), logger)

	jobService := service.NewJobService(service.Config{
		MaxConcurrentJobs: cfg.Engine.MaxConcurrentJobs,
		QueueCapacity:     cfg.Engine.QueueCapacity,
	}, store, validator, runner, profile, logger)
	jobService.Start(ctx)

	var sweeper *maintenance.Sweeper
	if cfg.Sweep.Enabled {
		sweeper = maintenance.New(maintenance.Options{
			Schedule:        cfg.Sweep.Cron,
			WorkDir:         cfg.Storage.WorkPath(),
			TempRetention:   cfg.Storage.TempRetention.Duration(),
			RecordRetention: cfg.Sweep.RecordRetention.Duration(),
		}, store, bus, records, logger)
		if err := sweeper.Start(); err != nil {
			return fmt.Errorf("starting maintenance sweeper: %w", err)
		}
	}

	// WriteTimeout stays unset: SSE event streams outlive any fixed write
	// window.
	server := internalhttp.NewServer(internalhttp.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		CORSOrigins:     cfg.Server.CORSOrigins,
	}, logger, version.Version)

	jobHandler := handlers.NewJobHandler(jobService, records).
		WithEngineDefaults(cfg.Engine.OfflineOnly, providers.RequestedTier(cfg.Engine.Tier))
	jobHandler.Register(server.API())

	eventsHandler := handlers.NewEventsHandler(jobService, bus, logger)
	eventsHandler.RegisterSSE(server.Router())

	healthHandler := handlers.NewHealthHandler(version.Version).
		WithJobService(jobService).
		WithBreakers(breakers).
		WithSupervisor(sup).
		WithDB(db).
		WithProfile(profile)
	healthHandler.Register(server.API())

	errChan := make(chan error, 1)
	go func() {
		logger.Info("starting aura server",
			slog.String("host", cfg.Server.Host),
			slog.Int("port", cfg.Server.Port),
			slog.String("version", version.Version),
		)
		errChan <- server.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
	}

	coord := shutdown.New(logger)
	coord.Add("http", cfg.Server.ShutdownTimeout, server.Shutdown)
	coord.Add("jobs", cfg.Engine.GracefulJobTimeout, jobService.Drain)
	if sweeper != nil {
		coord.Add("maintenance", 0, func(context.Context) error {
			sweeper.Stop()
			return nil
		})
	}
	coord.Add("encoders", 15*time.Second, func(context.Context) error {
		sup.TerminateAll(10 * time.Second)
		return nil
	})
	coord.Add("events", 0, func(context.Context) error {
		bus.Stop()
		return nil
	})
	coord.Add("database", 0, func(context.Context) error {
		return db.Close()
	})
	return coord.Run(context.Background())
}
