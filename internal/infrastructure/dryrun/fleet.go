// Package dryrun simulates fleet hosts in memory. Every supervisor, package
// and probe action succeeds and is recorded, so a release can be rehearsed
// end to end without touching a single machine.
package dryrun

import (
	"context"
	"fmt"
	"sync"

	"github.com/f4biogr/rollout/internal/domain"
)

// Fleet implements [domain.ProcessController], [domain.Installer] and
// [domain.HealthProber] against simulated hosts.
type Fleet struct {
	// Version seeds the installed version reported by every host before
	// the first simulated install.
	Version string

	// LatestVersion is what the latest sentinel resolves to. Defaults to
	// Version, matching a fleet that is already up to date.
	LatestVersion string

	mu       sync.Mutex
	actions  []string
	versions map[string]string
}

// Actions returns a copy of every simulated host action, in order.
func (f *Fleet) Actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.actions))
	copy(out, f.actions)
	return out
}

func (f *Fleet) StopGroup(ctx context.Context, host domain.Host) error {
	f.record("stop %s %s", host.Address, host.SupervisionGroup)
	return nil
}

func (f *Fleet) StartGroup(ctx context.Context, host domain.Host) error {
	f.record("start %s %s", host.Address, host.SupervisionGroup)
	return nil
}

func (f *Fleet) Reload(ctx context.Context, host domain.Host) error {
	f.record("reload %s", host.Address)
	return nil
}

func (f *Fleet) Install(ctx context.Context, host domain.Host, pkg, version string) error {
	f.record("install %s %s %s", host.Address, pkg, version)

	resolved := version
	if version == domain.VersionLatest {
		resolved = f.latestVersion()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.versions == nil {
		f.versions = make(map[string]string)
	}
	f.versions[host.Address+"/"+pkg] = resolved
	return nil
}

func (f *Fleet) InstalledVersion(ctx context.Context, host domain.Host, pkg string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.versions[host.Address+"/"+pkg]; ok {
		return v, nil
	}
	return f.Version, nil
}

func (f *Fleet) Snapshot(ctx context.Context, host domain.Host, pkg string) (string, error) {
	f.record("backup %s %s", host.Address, pkg)
	return fmt.Sprintf("dryrun://%s/%s.tar.gz", host.Address, pkg), nil
}

func (f *Fleet) Probe(ctx context.Context, host domain.Host, workerIndex int, policy domain.ProbePolicy) (domain.ProbeResult, error) {
	f.record("probe %s %d", host.Address, workerIndex)
	return domain.ProbeResult{
		WorkerIndex: workerIndex,
		Port:        host.WorkerPort(workerIndex),
		State:       domain.ProbeHealthy,
		Attempts:    1,
		LastStatus:  200,
	}, nil
}

func (f *Fleet) latestVersion() string {
	if f.LatestVersion != "" {
		return f.LatestVersion
	}
	return f.Version
}

func (f *Fleet) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, fmt.Sprintf(format, args...))
}
