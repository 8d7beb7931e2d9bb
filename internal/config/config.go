// Package config loads the explicit runtime configuration. It is read once
// at startup and passed down as a struct; nothing consults viper at use
// sites.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/f4biogr/rollout/internal/domain"
)

// Engine names accepted by the engine setting.
const (
	EngineSync        = "sync"
	EngineGoWorkflows = "goworkflows"
	EngineDBOS        = "dbos"
)

type Config struct {
	Listen   string `mapstructure:"listen"`
	DBPath   string `mapstructure:"db_path"`
	LogLevel string `mapstructure:"log_level"`

	// Engine picks the workflow backend: sync runs attempts in process,
	// goworkflows adds durable history in its own sqlite file, dbos
	// checkpoints steps in Postgres.
	Engine          string `mapstructure:"engine"`
	WorkflowDBPath  string `mapstructure:"workflow_db_path"`
	DBOSDatabaseURL string `mapstructure:"dbos_database_url"`

	MaxConcurrentHosts int    `mapstructure:"max_concurrent_hosts"`
	FleetFile          string `mapstructure:"fleet_file"`

	Probe      ProbeConfig      `mapstructure:"probe"`
	SSH        SSHConfig        `mapstructure:"ssh"`
	Backup     BackupConfig     `mapstructure:"backup"`
	Supervisor SupervisorConfig `mapstructure:"supervisor"`
	Pip        PipConfig        `mapstructure:"pip"`
}

type ProbeConfig struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	Path       string        `mapstructure:"path"`
}

// Policy converts the configured probe bounds into a domain policy.
func (p ProbeConfig) Policy() domain.ProbePolicy {
	return domain.ProbePolicy{
		Timeout:    p.Timeout,
		MaxRetries: p.MaxRetries,
		RetryDelay: p.RetryDelay,
		Path:       p.Path,
	}
}

type SSHConfig struct {
	User           string        `mapstructure:"user"`
	KeyFile        string        `mapstructure:"key_file"`
	KeyDir         string        `mapstructure:"key_dir"`
	KnownHostsFile string        `mapstructure:"known_hosts_file"`
	Port           int           `mapstructure:"port"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
}

type BackupConfig struct {
	Dir string `mapstructure:"dir"`
}

type SupervisorConfig struct {
	Bin string `mapstructure:"bin"`
}

type PipConfig struct {
	Bin            string        `mapstructure:"bin"`
	InstallTimeout time.Duration `mapstructure:"install_timeout"`
}

// Load reads configuration from the given file, or from rollout.yaml in the
// working directory when path is empty, layered under ROLLOUT_* environment
// overrides. A missing default file is not an error.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ROLLOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("rollout")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":8080")
	v.SetDefault("db_path", "rollout.db")
	v.SetDefault("log_level", "info")
	v.SetDefault("engine", EngineSync)
	v.SetDefault("workflow_db_path", "workflows.db")
	v.SetDefault("dbos_database_url", "")
	v.SetDefault("max_concurrent_hosts", 4)
	v.SetDefault("fleet_file", "")

	v.SetDefault("probe.timeout", 5*time.Second)
	v.SetDefault("probe.max_retries", 5)
	v.SetDefault("probe.retry_delay", 10*time.Second)
	v.SetDefault("probe.path", domain.DefaultHealthPath)

	v.SetDefault("ssh.user", "deploy")
	v.SetDefault("ssh.key_file", "")
	v.SetDefault("ssh.key_dir", "")
	v.SetDefault("ssh.known_hosts_file", "")
	v.SetDefault("ssh.port", 22)
	v.SetDefault("ssh.command_timeout", time.Minute)

	v.SetDefault("backup.dir", "/var/backups/rollout")

	v.SetDefault("supervisor.bin", "supervisorctl")

	v.SetDefault("pip.bin", "pip")
	v.SetDefault("pip.install_timeout", 5*time.Minute)
}
