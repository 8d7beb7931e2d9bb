package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/f4biogr/rollout/internal/domain"
)

// fleetFile is the on-disk fleet inventory shape.
type fleetFile struct {
	Fleets []fleetSpec `yaml:"fleets"`
}

type fleetSpec struct {
	ID          string     `yaml:"id"`
	Name        string     `yaml:"name"`
	Environment string     `yaml:"environment"`
	Hosts       []hostSpec `yaml:"hosts"`
}

type hostSpec struct {
	Address          string `yaml:"address"`
	CredentialsRef   string `yaml:"credentials_ref"`
	SupervisionGroup string `yaml:"supervision_group"`
	WorkerCount      int    `yaml:"worker_count"`
	BasePort         int    `yaml:"base_port"`
}

// LoadFleets reads a declarative fleet inventory. Every fleet is validated,
// so a bad inventory fails before anything is registered.
func LoadFleets(path string) ([]domain.Fleet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fleet file: %w", err)
	}

	var file fleetFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse fleet file %s: %w", path, err)
	}

	fleets := make([]domain.Fleet, 0, len(file.Fleets))
	for _, spec := range file.Fleets {
		fleet := domain.Fleet{
			ID:          domain.FleetID(spec.ID),
			Name:        spec.Name,
			Environment: spec.Environment,
		}
		for _, h := range spec.Hosts {
			fleet.Hosts = append(fleet.Hosts, domain.Host{
				Address:          h.Address,
				CredentialsRef:   h.CredentialsRef,
				SupervisionGroup: h.SupervisionGroup,
				WorkerCount:      h.WorkerCount,
				BasePort:         h.BasePort,
			})
		}
		if err := fleet.Validate(); err != nil {
			return nil, fmt.Errorf("fleet %s in %s: %w", spec.ID, path, err)
		}
		fleets = append(fleets, fleet)
	}
	return fleets, nil
}
