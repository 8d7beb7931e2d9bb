package cmd

import (
	"errors"
	"fmt"

	"github.com/cheynewallace/tabby"
	"github.com/spf13/cobra"

	"github.com/f4biogr/rollout/internal/application"
	"github.com/f4biogr/rollout/internal/config"
	"github.com/f4biogr/rollout/internal/domain"
	"github.com/f4biogr/rollout/internal/infrastructure/sqlite"
)

func newFleetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fleet",
		Short: "Manage registered fleets",
	}
	cmd.AddCommand(newFleetAddCmd())
	cmd.AddCommand(newFleetListCmd())
	return cmd
}

func newFleetAddCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register the fleets declared in a YAML file",
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

			fleets, err := config.LoadFleets(file)
			if err != nil {
				return err
			}
			svc := &application.FleetService{Fleets: &sqlite.FleetRepo{DB: db}}
			for _, fleet := range fleets {
				err := svc.Register(cmd.Context(), fleet)
				switch {
				case errors.Is(err, domain.ErrAlreadyExists):
					fmt.Printf("fleet %s already registered\n", fleet.ID)
				case err != nil:
					return fmt.Errorf("register fleet %s: %w", fleet.ID, err)
				default:
					fmt.Printf("fleet %s registered (%d hosts)\n", fleet.ID, len(fleet.Hosts))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "fleet file to load")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newFleetListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered fleets",
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

			svc := &application.FleetService{Fleets: &sqlite.FleetRepo{DB: db}}
			fleets, err := svc.List(cmd.Context())
			if err != nil {
				return err
			}
			renderFleets(fleets)
			return nil
		},
	}
}

func renderFleets(fleets []domain.Fleet) {
	table := tabby.New()
	table.AddHeader("ID", "NAME", "ENVIRONMENT", "HOSTS", "WORKERS")
	for _, fleet := range fleets {
		workers := 0
		for _, h := range fleet.Hosts {
			workers += h.WorkerCount
		}
		table.AddLine(string(fleet.ID), fleet.Name, fleet.Environment, len(fleet.Hosts), workers)
	}
	table.Print()
}
