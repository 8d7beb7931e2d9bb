package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/f4biogr/rollout/internal/application"
	"github.com/f4biogr/rollout/internal/config"
	"github.com/f4biogr/rollout/internal/domain"
	"github.com/f4biogr/rollout/internal/infrastructure/sqlite"
)

func newReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report <release-id>",
		Short: "Show the newest attempt report of a release",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runReport(cmd, cfg, domain.ReleaseID(args[0]))
		},
	}
}

func runReport(cmd *cobra.Command, cfg config.Config, id domain.ReleaseID) error {
	db, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()

	svc := &application.ReleaseService{
		Releases: &sqlite.ReleaseRepo{DB: db},
		Attempts: &sqlite.AttemptRepo{DB: db},
	}
	report, err := svc.Report(cmd.Context(), id)
	if err != nil {
		return err
	}
	renderReport(report)
	return nil
}
