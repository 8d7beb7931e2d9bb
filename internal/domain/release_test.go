package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/f4biogr/rollout/internal/domain"
)

func validRelease() domain.Release {
	return domain.Release{
		ID:      "r1",
		FleetID: "f1",
		Package: "acme-search",
		Version: "2.4.0",
		Probe: domain.ProbePolicy{
			Timeout:    5 * time.Second,
			MaxRetries: 5,
			RetryDelay: 10 * time.Second,
		},
		BackupEnabled: true,
	}
}

func TestProbePolicy_AttemptsIsRetriesPlusOne(t *testing.T) {
	p := domain.ProbePolicy{MaxRetries: 5}
	if got := p.Attempts(); got != 6 {
		t.Errorf("Attempts = %d, want 6", got)
	}
	p.MaxRetries = 0
	if got := p.Attempts(); got != 1 {
		t.Errorf("Attempts with zero retries = %d, want 1", got)
	}
}

func TestProbePolicy_EndpointPathDefaults(t *testing.T) {
	p := domain.ProbePolicy{}
	if got := p.EndpointPath(); got != "/health" {
		t.Errorf("EndpointPath = %q, want /health", got)
	}
	p.Path = "/livez"
	if got := p.EndpointPath(); got != "/livez" {
		t.Errorf("EndpointPath = %q, want /livez", got)
	}
}

func TestProbePolicy_Validate(t *testing.T) {
	p := domain.ProbePolicy{Timeout: time.Second, MaxRetries: 0, RetryDelay: 0}
	if err := p.Validate(); err != nil {
		t.Errorf("zero retries and zero delay are legal: %v", err)
	}
	p.Timeout = 0
	if err := p.Validate(); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("Validate with zero timeout = %v, want ErrInvalidArgument", err)
	}
	p = domain.ProbePolicy{Timeout: time.Second, MaxRetries: -1}
	if err := p.Validate(); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("Validate with negative retries = %v, want ErrInvalidArgument", err)
	}
}

func TestReleaseValidate(t *testing.T) {
	if err := validRelease().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*domain.Release)
	}{
		{"no id", func(r *domain.Release) { r.ID = "" }},
		{"no fleet", func(r *domain.Release) { r.FleetID = "" }},
		{"no package", func(r *domain.Release) { r.Package = "" }},
		{"no version", func(r *domain.Release) { r.Version = "" }},
		{"bad probe", func(r *domain.Release) { r.Probe.Timeout = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			release := validRelease()
			tc.mutate(&release)
			if err := release.Validate(); !errors.Is(err, domain.ErrInvalidArgument) {
				t.Errorf("Validate = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestReleaseValidate_LatestSentinelIsLegal(t *testing.T) {
	release := validRelease()
	release.Version = domain.VersionLatest
	if err := release.Validate(); err != nil {
		t.Errorf("Validate with latest sentinel = %v, want nil", err)
	}
}

func TestClassifyVersionChange(t *testing.T) {
	cases := []struct {
		from, to string
		want     domain.VersionDirection
	}{
		{"1.2.3", "1.3.0", domain.DirectionUpgrade},
		{"2.0.0", "1.9.9", domain.DirectionDowngrade},
		{"1.2.3", "1.2.3", domain.DirectionUnchanged},
		{"", "1.2.3", domain.DirectionUnknown},
		{"1.2.3", "latest", domain.DirectionUnknown},
		{"not-semver", "1.2.3", domain.DirectionUnknown},
		{"1.2.3", "also.not", domain.DirectionUnknown},
	}
	for _, tc := range cases {
		if got := domain.ClassifyVersionChange(tc.from, tc.to); got != tc.want {
			t.Errorf("ClassifyVersionChange(%q, %q) = %s, want %s", tc.from, tc.to, got, tc.want)
		}
	}
}
