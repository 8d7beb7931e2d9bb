package cmd

import (
	"context"
	"fmt"
	"time"

	wfsqlite "github.com/cschleiden/go-workflows/backend/sqlite"
	"github.com/cschleiden/go-workflows/client"
	"github.com/cschleiden/go-workflows/worker"
	"github.com/dbos-inc/dbos-transact-golang/dbos"
	"github.com/spf13/pflag"

	"github.com/f4biogr/rollout/internal/config"
	"github.com/f4biogr/rollout/internal/domain"
	"github.com/f4biogr/rollout/internal/infrastructure/dbosworkflows"
	"github.com/f4biogr/rollout/internal/infrastructure/goworkflows"
	"github.com/f4biogr/rollout/internal/infrastructure/syncworkflow"
)

// buildEngine constructs the configured workflow engine and hands back its
// rollout runner plus a stop function releasing engine resources. The sync
// engine runs rollouts in process; goworkflows journals them to a local
// sqlite backend; dbos checkpoints them to Postgres.
func buildEngine(cfg config.Config, wf *domain.RolloutWorkflow) (domain.RolloutRunner, func(), error) {
	switch cfg.Engine {
	case config.EngineSync, "":
		engine := &syncworkflow.Engine{}
		runner, err := engine.RolloutRunner(wf)
		if err != nil {
			return nil, nil, err
		}
		return runner, func() {}, nil

	case config.EngineGoWorkflows:
		b := wfsqlite.NewSqliteBackend(cfg.WorkflowDBPath)
		w := worker.New(b, nil)
		engine := &goworkflows.Engine{Worker: w, Client: client.New(b)}
		runner, err := engine.RolloutRunner(wf)
		if err != nil {
			return nil, nil, err
		}
		ctx, cancel := context.WithCancel(context.Background())
		if err := w.Start(ctx); err != nil {
			cancel()
			return nil, nil, fmt.Errorf("start workflow worker: %w", err)
		}
		stop := func() {
			cancel()
			_ = w.WaitForCompletion()
		}
		return runner, stop, nil

	case config.EngineDBOS:
		if cfg.DBOSDatabaseURL == "" {
			return nil, nil, fmt.Errorf("%w: engine %q needs dbos_database_url", domain.ErrInvalidArgument, cfg.Engine)
		}
		dbosCtx, err := dbos.NewDBOSContext(context.Background(), dbos.Config{
			AppName:     "rolloutd",
			DatabaseURL: cfg.DBOSDatabaseURL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create dbos context: %w", err)
		}
		engine := &dbosworkflows.Engine{DBOSCtx: dbosCtx}
		// Runners register workflows and steps, which DBOS requires
		// before Launch.
		runner, err := engine.RolloutRunner(wf)
		if err != nil {
			return nil, nil, err
		}
		if err := dbos.Launch(dbosCtx); err != nil {
			return nil, nil, fmt.Errorf("launch dbos: %w", err)
		}
		stop := func() { dbos.Shutdown(dbosCtx, 5*time.Second) }
		return runner, stop, nil

	default:
		return nil, nil, fmt.Errorf("%w: unknown workflow engine %q", domain.ErrInvalidArgument, cfg.Engine)
	}
}

// addEngineFlag lets a command override the configured workflow engine.
func addEngineFlag(flags *pflag.FlagSet, engine *string) {
	flags.Var(&engineValue{engine: engine}, "engine",
		fmt.Sprintf("workflow engine overriding the configuration (%s, %s, %s)",
			config.EngineSync, config.EngineGoWorkflows, config.EngineDBOS))
}

// engineValue validates --engine at parse time.
type engineValue struct {
	engine *string
}

func (v *engineValue) String() string { return *v.engine }
func (v *engineValue) Type() string   { return "engine" }

func (v *engineValue) Set(s string) error {
	switch s {
	case config.EngineSync, config.EngineGoWorkflows, config.EngineDBOS:
		*v.engine = s
		return nil
	}
	return fmt.Errorf("must be one of %s, %s, %s",
		config.EngineSync, config.EngineGoWorkflows, config.EngineDBOS)
}
