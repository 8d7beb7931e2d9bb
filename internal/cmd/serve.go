package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"gocloud.dev/server/health"

	"github.com/f4biogr/rollout/internal/application"
	"github.com/f4biogr/rollout/internal/config"
	"github.com/f4biogr/rollout/internal/domain"
	"github.com/f4biogr/rollout/internal/httpapi"
	"github.com/f4biogr/rollout/internal/infrastructure/httpprobe"
	"github.com/f4biogr/rollout/internal/infrastructure/pkgenv"
	"github.com/f4biogr/rollout/internal/infrastructure/remote"
	"github.com/f4biogr/rollout/internal/infrastructure/sqlite"
	"github.com/f4biogr/rollout/internal/infrastructure/supervisor"
	"github.com/f4biogr/rollout/internal/logging"
	"github.com/f4biogr/rollout/internal/metrics"
)

func newServeCmd() *cobra.Command {
	var (
		engine    string
		fleetFile string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the rollout API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if engine != "" {
				cfg.Engine = engine
			}
			if fleetFile != "" {
				cfg.FleetFile = fleetFile
			}
			return runServe(cfg)
		},
	}
	addEngineFlag(cmd.Flags(), &engine)
	cmd.Flags().StringVar(&fleetFile, "fleet-file", "", "yaml fleet inventory to register at startup")
	return cmd
}

func runServe(cfg config.Config) error {
	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	db, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()

	fleetRepo := &sqlite.FleetRepo{DB: db}
	releaseRepo := &sqlite.ReleaseRepo{DB: db}
	attemptRepo := &sqlite.AttemptRepo{DB: db}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metricSet := metrics.New(registry)

	ssh := &remote.SSHRunner{
		User:           cfg.SSH.User,
		KeyFile:        cfg.SSH.KeyFile,
		KeyDir:         cfg.SSH.KeyDir,
		Port:           cfg.SSH.Port,
		KnownHostsFile: cfg.SSH.KnownHostsFile,
	}
	wf := &domain.RolloutWorkflow{
		Releases: releaseRepo,
		Fleets:   fleetRepo,
		Attempts: attemptRepo,
		Processes: &supervisor.Controller{
			Runner:  ssh,
			Bin:     cfg.Supervisor.Bin,
			Timeout: cfg.SSH.CommandTimeout,
		},
		Packages: &pkgenv.Manager{
			Runner:         ssh,
			Pip:            cfg.Pip.Bin,
			BackupDir:      cfg.Backup.Dir,
			InstallTimeout: cfg.Pip.InstallTimeout,
			CommandTimeout: cfg.SSH.CommandTimeout,
		},
		Prober:             &httpprobe.Prober{Metrics: metricSet},
		MaxConcurrentHosts: cfg.MaxConcurrentHosts,
	}

	runner, stopEngine, err := buildEngine(cfg, wf)
	if err != nil {
		return err
	}
	defer stopEngine()

	fleetSvc := &application.FleetService{Fleets: fleetRepo}
	releaseSvc := &application.ReleaseService{
		Releases:      releaseRepo,
		Fleets:        fleetRepo,
		Attempts:      attemptRepo,
		Orchestration: &application.OrchestrationService{Workflow: runner},
		Logger:        logger,
		Metrics:       metricSet,
	}

	if cfg.FleetFile != "" {
		if err := seedFleets(context.Background(), fleetSvc, cfg.FleetFile, logger); err != nil {
			return err
		}
	}

	ready := &httpapi.HealthCheck{}
	handler := &httpapi.Handler{Fleets: fleetSvc, Releases: releaseSvc, Logger: logger}
	srv := &httpapi.Server{
		Addr:     cfg.Listen,
		Handler:  handler.Routes(),
		Health:   []health.Checker{ready},
		Gatherer: registry,
		Logger:   logger,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var g run.Group
	g.Add(func() error {
		return srv.ListenAndServe()
	}, func(error) {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http server shutdown", "error", err)
		}
	})
	g.Add(func() error {
		exit := make(chan os.Signal, 1)
		signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-exit:
			logger.Info("shutting down", "signal", sig.String())
			return nil
		case <-ctx.Done():
			return nil
		}
	}, func(error) {
		cancel()
	})

	ready.SetHealthy(true)
	logger.Info("rolloutd serving", "engine", cfg.Engine, "db", cfg.DBPath)
	return g.Run()
}

// seedFleets registers the fleets declared in the fleet file. Fleets that
// already exist are left untouched, so the file can stay in place across
// restarts.
func seedFleets(ctx context.Context, svc *application.FleetService, path string, logger *slog.Logger) error {
	fleets, err := config.LoadFleets(path)
	if err != nil {
		return err
	}
	for _, fleet := range fleets {
		err := svc.Register(ctx, fleet)
		switch {
		case errors.Is(err, domain.ErrAlreadyExists):
			logger.Debug("fleet already registered", "fleet", fleet.ID)
		case err != nil:
			return fmt.Errorf("register fleet %s: %w", fleet.ID, err)
		default:
			logger.Info("fleet registered", "fleet", fleet.ID, "hosts", len(fleet.Hosts))
		}
	}
	return nil
}
