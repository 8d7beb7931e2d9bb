package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/f4biogr/rollout/internal/application"
	"github.com/f4biogr/rollout/internal/config"
	"github.com/f4biogr/rollout/internal/domain"
	"github.com/f4biogr/rollout/internal/infrastructure/dryrun"
	"github.com/f4biogr/rollout/internal/infrastructure/httpprobe"
	"github.com/f4biogr/rollout/internal/infrastructure/pkgenv"
	"github.com/f4biogr/rollout/internal/infrastructure/remote"
	"github.com/f4biogr/rollout/internal/infrastructure/sqlite"
	"github.com/f4biogr/rollout/internal/infrastructure/supervisor"
	"github.com/f4biogr/rollout/internal/logging"
)

type releaseOptions struct {
	fleetID     string
	environment string
	pkg         string
	version     string
	retries     int
	delay       time.Duration
	timeout     time.Duration
	path        string
	noBackup    bool
	dryRun      bool
	engine      string
}

func newReleaseCmd() *cobra.Command {
	opts := &releaseOptions{}
	cmd := &cobra.Command{
		Use:   "release",
		Short: "Roll a package version out to a fleet and wait for the verdict",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if opts.engine != "" {
				cfg.Engine = opts.engine
			}
			return runRelease(cmd, cfg, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.fleetID, "fleet", "", "fleet ID to target")
	f.StringVar(&opts.environment, "environment", "", "environment to target; must match exactly one fleet")
	f.StringVar(&opts.pkg, "package", "", "package to install")
	f.StringVar(&opts.version, "version", domain.VersionLatest, "version to install")
	f.IntVar(&opts.retries, "retries", 0, "probe retries per worker after the first attempt")
	f.DurationVar(&opts.delay, "delay", 0, "pause between probe attempts")
	f.DurationVar(&opts.timeout, "timeout", 0, "per-attempt probe timeout")
	f.StringVar(&opts.path, "path", "", "probe endpoint path")
	f.BoolVar(&opts.noBackup, "no-backup", false, "skip the pre-install backup")
	f.BoolVar(&opts.dryRun, "dry-run", false, "rehearse against simulated hosts; no machine is touched")
	addEngineFlag(f, &opts.engine)
	_ = cmd.MarkFlagRequired("package")

	cmd.AddCommand(newReleaseListCmd())
	return cmd
}

func newReleaseListCmd() *cobra.Command {
	var fleetID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List past and in-flight releases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			db, err := sqlite.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open state database: %w", err)
			}
			defer db.Close()

			svc := &application.ReleaseService{Releases: &sqlite.ReleaseRepo{DB: db}}
			var releases []domain.Release
			if fleetID != "" {
				releases, err = svc.ListByFleet(cmd.Context(), domain.FleetID(fleetID))
			} else {
				releases, err = svc.List(cmd.Context())
			}
			if err != nil {
				return err
			}
			renderReleases(releases)
			return nil
		},
	}
	cmd.Flags().StringVar(&fleetID, "fleet", "", "only show releases for this fleet")
	return cmd
}

func runRelease(cmd *cobra.Command, cfg config.Config, opts *releaseOptions) error {
	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	if opts.fleetID == "" && opts.environment == "" {
		return fmt.Errorf("%w: --fleet or --environment is required", domain.ErrInvalidArgument)
	}

	db, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()

	fleetRepo := &sqlite.FleetRepo{DB: db}
	releaseRepo := &sqlite.ReleaseRepo{DB: db}
	attemptRepo := &sqlite.AttemptRepo{DB: db}

	var (
		processes domain.ProcessController
		packages  domain.Installer
		prober    domain.HealthProber
	)
	if opts.dryRun {
		sim := &dryrun.Fleet{Version: "0.0.0"}
		processes, packages, prober = sim, sim, sim
	} else {
		ssh := &remote.SSHRunner{
			User:           cfg.SSH.User,
			KeyFile:        cfg.SSH.KeyFile,
			KeyDir:         cfg.SSH.KeyDir,
			Port:           cfg.SSH.Port,
			KnownHostsFile: cfg.SSH.KnownHostsFile,
		}
		processes = &supervisor.Controller{
			Runner:  ssh,
			Bin:     cfg.Supervisor.Bin,
			Timeout: cfg.SSH.CommandTimeout,
		}
		packages = &pkgenv.Manager{
			Runner:         ssh,
			Pip:            cfg.Pip.Bin,
			BackupDir:      cfg.Backup.Dir,
			InstallTimeout: cfg.Pip.InstallTimeout,
			CommandTimeout: cfg.SSH.CommandTimeout,
		}
		prober = &httpprobe.Prober{}
	}

	wf := &domain.RolloutWorkflow{
		Releases:           releaseRepo,
		Fleets:             fleetRepo,
		Attempts:           attemptRepo,
		Processes:          processes,
		Packages:           packages,
		Prober:             prober,
		MaxConcurrentHosts: cfg.MaxConcurrentHosts,
	}

	runner, stopEngine, err := buildEngine(cfg, wf)
	if err != nil {
		return err
	}
	defer stopEngine()

	ctx := cmd.Context()
	fleetSvc := &application.FleetService{Fleets: fleetRepo}
	if cfg.FleetFile != "" {
		if err := seedFleets(ctx, fleetSvc, cfg.FleetFile, logger); err != nil {
			return err
		}
	}

	fleetID := domain.FleetID(opts.fleetID)
	if fleetID == "" {
		fleet, err := fleetSvc.ResolveEnvironment(ctx, opts.environment)
		if err != nil {
			return err
		}
		fleetID = fleet.ID
	}

	policy := cfg.Probe.Policy()
	flags := cmd.Flags()
	if flags.Changed("timeout") {
		policy.Timeout = opts.timeout
	}
	if flags.Changed("retries") {
		policy.MaxRetries = opts.retries
	}
	if flags.Changed("delay") {
		policy.RetryDelay = opts.delay
	}
	if flags.Changed("path") {
		policy.Path = opts.path
	}

	releaseSvc := &application.ReleaseService{
		Releases:      releaseRepo,
		Fleets:        fleetRepo,
		Attempts:      attemptRepo,
		Orchestration: &application.OrchestrationService{Workflow: runner},
		Logger:        logger,
	}

	rel, err := releaseSvc.Create(ctx, application.CreateReleaseInput{
		FleetID:       fleetID,
		Package:       opts.pkg,
		Version:       opts.version,
		Probe:         policy,
		DisableBackup: opts.noBackup,
	})
	if err != nil {
		return err
	}

	report, err := releaseSvc.Report(ctx, rel.ID)
	if err != nil {
		return err
	}

	renderReport(report)

	if report.State != domain.AttemptCommitted {
		return fmt.Errorf("release %s %s", rel.ID, report.State)
	}
	return nil
}
