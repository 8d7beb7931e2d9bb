package httpapi

import (
	"fmt"
	"time"

	"github.com/f4biogr/rollout/internal/application"
	"github.com/f4biogr/rollout/internal/domain"
)

// Wire types. Domain structs stay free of serialization tags, so the JSON
// contract lives here.

type fleetPayload struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Environment string        `json:"environment,omitempty"`
	Hosts       []hostPayload `json:"hosts"`
}

type hostPayload struct {
	Address          string `json:"address"`
	CredentialsRef   string `json:"credentials_ref,omitempty"`
	SupervisionGroup string `json:"supervision_group"`
	WorkerCount      int    `json:"worker_count"`
	BasePort         int    `json:"base_port"`
}

func (p fleetPayload) toDomain() domain.Fleet {
	fleet := domain.Fleet{
		ID:          domain.FleetID(p.ID),
		Name:        p.Name,
		Environment: p.Environment,
	}
	for _, h := range p.Hosts {
		fleet.Hosts = append(fleet.Hosts, domain.Host{
			Address:          h.Address,
			CredentialsRef:   h.CredentialsRef,
			SupervisionGroup: h.SupervisionGroup,
			WorkerCount:      h.WorkerCount,
			BasePort:         h.BasePort,
		})
	}
	return fleet
}

func fleetFrom(fleet domain.Fleet) fleetPayload {
	p := fleetPayload{
		ID:          string(fleet.ID),
		Name:        fleet.Name,
		Environment: fleet.Environment,
	}
	for _, h := range fleet.Hosts {
		p.Hosts = append(p.Hosts, hostPayload{
			Address:          h.Address,
			CredentialsRef:   h.CredentialsRef,
			SupervisionGroup: h.SupervisionGroup,
			WorkerCount:      h.WorkerCount,
			BasePort:         h.BasePort,
		})
	}
	return p
}

type probeSpec struct {
	Timeout    string `json:"timeout,omitempty"`
	MaxRetries *int   `json:"max_retries,omitempty"`
	RetryDelay string `json:"retry_delay,omitempty"`
	Path       string `json:"path,omitempty"`
}

// policy layers the request's probe fields over the default policy. Absent
// fields keep their defaults, so a caller can set just max_retries.
func (s *probeSpec) policy() (domain.ProbePolicy, error) {
	policy := application.DefaultProbe
	if s == nil {
		return policy, nil
	}
	if s.Timeout != "" {
		d, err := time.ParseDuration(s.Timeout)
		if err != nil {
			return policy, fmt.Errorf("%w: probe timeout: %v", domain.ErrInvalidArgument, err)
		}
		policy.Timeout = d
	}
	if s.MaxRetries != nil {
		policy.MaxRetries = *s.MaxRetries
	}
	if s.RetryDelay != "" {
		d, err := time.ParseDuration(s.RetryDelay)
		if err != nil {
			return policy, fmt.Errorf("%w: probe retry delay: %v", domain.ErrInvalidArgument, err)
		}
		policy.RetryDelay = d
	}
	policy.Path = s.Path
	return policy, nil
}

type createReleaseRequest struct {
	FleetID       string     `json:"fleet_id"`
	Environment   string     `json:"environment,omitempty"`
	Package       string     `json:"package"`
	Version       string     `json:"version"`
	Probe         *probeSpec `json:"probe,omitempty"`
	DisableBackup bool       `json:"disable_backup,omitempty"`
}

type releasePayload struct {
	ID            string    `json:"id"`
	FleetID       string    `json:"fleet_id"`
	Package       string    `json:"package"`
	Version       string    `json:"version"`
	ProbeTimeout  string    `json:"probe_timeout"`
	ProbeRetries  int       `json:"probe_max_retries"`
	ProbeDelay    string    `json:"probe_retry_delay"`
	ProbePath     string    `json:"probe_path"`
	BackupEnabled bool      `json:"backup_enabled"`
	State         string    `json:"state"`
	CreatedAt     time.Time `json:"created_at"`
}

func releaseFrom(rel domain.Release) releasePayload {
	return releasePayload{
		ID:            string(rel.ID),
		FleetID:       string(rel.FleetID),
		Package:       rel.Package,
		Version:       rel.Version,
		ProbeTimeout:  rel.Probe.Timeout.String(),
		ProbeRetries:  rel.Probe.MaxRetries,
		ProbeDelay:    rel.Probe.RetryDelay.String(),
		ProbePath:     rel.Probe.EndpointPath(),
		BackupEnabled: rel.BackupEnabled,
		State:         string(rel.State),
		CreatedAt:     rel.CreatedAt,
	}
}

type createReleaseResponse struct {
	Release releasePayload `json:"release"`
	Report  *reportPayload `json:"report,omitempty"`
}

type reportPayload struct {
	AttemptID       string           `json:"attempt_id"`
	ReleaseID       string           `json:"release_id"`
	FleetID         string           `json:"fleet_id"`
	Package         string           `json:"package"`
	TargetVersion   string           `json:"target_version"`
	PreviousVersion string           `json:"previous_version"`
	Direction       string           `json:"direction"`
	State           string           `json:"state"`
	Canceled        bool             `json:"canceled,omitempty"`
	Forward         []outcomePayload `json:"forward"`
	Rollback        []outcomePayload `json:"rollback,omitempty"`
	StartedAt       time.Time        `json:"started_at"`
	FinishedAt      time.Time        `json:"finished_at"`
}

type outcomePayload struct {
	Host         string          `json:"host"`
	Skipped      bool            `json:"skipped,omitempty"`
	Mutated      bool            `json:"mutated"`
	Backup       backupPayload   `json:"backup"`
	Failure      *failurePayload `json:"failure,omitempty"`
	Probes       []probePayload  `json:"probes,omitempty"`
	FinalVersion string          `json:"final_version,omitempty"`
}

type backupPayload struct {
	Requested bool   `json:"requested"`
	Skipped   bool   `json:"skipped,omitempty"`
	Path      string `json:"path,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

type failurePayload struct {
	Step    string `json:"step"`
	Message string `json:"message"`
}

type probePayload struct {
	WorkerIndex int    `json:"worker_index"`
	Port        int    `json:"port"`
	State       string `json:"state"`
	Attempts    int    `json:"attempts"`
	ElapsedMS   int64  `json:"elapsed_ms"`
	LastStatus  int    `json:"last_status,omitempty"`
	LastError   string `json:"last_error,omitempty"`
	BodySnippet string `json:"body_snippet,omitempty"`
}

func reportFrom(report domain.AttemptReport) *reportPayload {
	return &reportPayload{
		AttemptID:       report.AttemptID,
		ReleaseID:       string(report.ReleaseID),
		FleetID:         string(report.FleetID),
		Package:         report.Package,
		TargetVersion:   report.TargetVersion,
		PreviousVersion: report.PreviousVersion,
		Direction:       string(report.Direction),
		State:           string(report.State),
		Canceled:        report.Canceled,
		Forward:         outcomesFrom(report.Forward),
		Rollback:        outcomesFrom(report.Rollback),
		StartedAt:       report.StartedAt,
		FinishedAt:      report.FinishedAt,
	}
}

func outcomesFrom(outcomes []domain.HostOutcome) []outcomePayload {
	if outcomes == nil {
		return nil
	}
	payloads := make([]outcomePayload, 0, len(outcomes))
	for _, out := range outcomes {
		p := outcomePayload{
			Host:    out.Host,
			Skipped: out.Skipped,
			Mutated: out.Mutated,
			Backup: backupPayload{
				Requested: out.Backup.Requested,
				Skipped:   out.Backup.Skipped,
				Path:      out.Backup.Path,
				Reason:    out.Backup.Reason,
			},
			FinalVersion: out.FinalVersion,
		}
		if out.Failure != nil {
			p.Failure = &failurePayload{
				Step:    string(out.Failure.Step),
				Message: out.Failure.Message,
			}
		}
		for _, probe := range out.Probes {
			p.Probes = append(p.Probes, probePayload{
				WorkerIndex: probe.WorkerIndex,
				Port:        probe.Port,
				State:       string(probe.State),
				Attempts:    probe.Attempts,
				ElapsedMS:   probe.Elapsed.Milliseconds(),
				LastStatus:  probe.LastStatus,
				LastError:   probe.LastError,
				BodySnippet: probe.BodySnippet,
			})
		}
		payloads = append(payloads, p)
	}
	return payloads
}
