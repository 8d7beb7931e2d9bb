// Package pkgenv manages the application package inside each host's Python
// environment using pip.
package pkgenv

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/f4biogr/rollout/internal/domain"
	"github.com/f4biogr/rollout/internal/infrastructure/remote"
)

// Manager implements [domain.Installer] with pip commands run through a
// [remote.Runner].
type Manager struct {
	Runner remote.Runner
	// Pip overrides the pip binary, e.g. a virtualenv's pip.
	Pip string
	// BackupDir is where Snapshot archives land on the host.
	BackupDir string
	// InstallTimeout bounds installs and snapshots, which move real bytes.
	// CommandTimeout bounds quick queries like pip show. Zero leaves the
	// caller's context in charge.
	InstallTimeout time.Duration
	CommandTimeout time.Duration
}

func (m *Manager) run(ctx context.Context, timeout time.Duration, host domain.Host, args ...string) (remote.Result, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return m.Runner.Run(ctx, host, args...)
}

func (m *Manager) pip() string {
	if m.Pip != "" {
		return m.Pip
	}
	return "pip"
}

func (m *Manager) backupDir() string {
	if m.BackupDir != "" {
		return m.BackupDir
	}
	return "/var/backups/rollout"
}

// Install puts the requested version in place. The latest sentinel lets
// pip pick the newest published version.
func (m *Manager) Install(ctx context.Context, host domain.Host, pkg, version string) error {
	spec := pkg
	if version != domain.VersionLatest {
		spec = pkg + "==" + version
	}
	res, err := m.run(ctx, m.InstallTimeout, host, m.pip(), "install", "--upgrade", spec)
	if err != nil {
		return &domain.InstallError{Host: host.Address, Cause: err}
	}
	if res.ExitCode != 0 {
		return &domain.InstallError{
			Host:  host.Address,
			Cause: fmt.Errorf("pip install %s: exit %d: %s", spec, res.ExitCode, lastLine(res.Stderr)),
		}
	}
	return nil
}

// InstalledVersion reports the version pip has on the host, or "" when the
// package is not installed. pip exits non-zero for unknown packages; that
// is an answer, not a failure.
func (m *Manager) InstalledVersion(ctx context.Context, host domain.Host, pkg string) (string, error) {
	res, err := m.run(ctx, m.CommandTimeout, host, m.pip(), "show", pkg)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", nil
	}
	version, _ := parseShow(res.Stdout)
	if version == "" {
		return "", fmt.Errorf("pip show %s: no Version field in output", pkg)
	}
	return version, nil
}

// Snapshot archives the package's installed tree under the backup
// directory and returns the archive path.
func (m *Manager) Snapshot(ctx context.Context, host domain.Host, pkg string) (string, error) {
	res, err := m.run(ctx, m.CommandTimeout, host, m.pip(), "show", pkg)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("nothing to back up: %s is not installed", pkg)
	}
	version, location := parseShow(res.Stdout)
	if version == "" || location == "" {
		return "", fmt.Errorf("pip show %s: missing Version or Location", pkg)
	}

	if res, err = m.run(ctx, m.CommandTimeout, host, "mkdir", "-p", m.backupDir()); err != nil {
		return "", err
	} else if res.ExitCode != 0 {
		return "", fmt.Errorf("create %s: exit %d: %s", m.backupDir(), res.ExitCode, lastLine(res.Stderr))
	}

	archive := path.Join(m.backupDir(), fmt.Sprintf("%s-%s.tar.gz", pkg, version))
	// Import directories replace dashes with underscores.
	tree := strings.ReplaceAll(pkg, "-", "_")
	if res, err = m.run(ctx, m.InstallTimeout, host, "tar", "czf", archive, "-C", location, tree); err != nil {
		return "", err
	} else if res.ExitCode != 0 {
		return "", fmt.Errorf("archive %s: exit %d: %s", tree, res.ExitCode, lastLine(res.Stderr))
	}
	return archive, nil
}

// parseShow extracts the Version and Location fields from pip show output.
func parseShow(out string) (version, location string) {
	for _, line := range strings.Split(out, "\n") {
		if v, ok := strings.CutPrefix(line, "Version:"); ok {
			version = strings.TrimSpace(v)
		}
		if l, ok := strings.CutPrefix(line, "Location:"); ok {
			location = strings.TrimSpace(l)
		}
	}
	return version, location
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}
