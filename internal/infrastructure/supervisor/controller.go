// Package supervisor drives supervisord process groups on fleet hosts via
// supervisorctl.
package supervisor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/f4biogr/rollout/internal/domain"
	"github.com/f4biogr/rollout/internal/infrastructure/remote"
)

// Controller implements [domain.ProcessController] with supervisorctl
// commands run through a [remote.Runner]. Workers are supervisord numprocs
// members, so group:* addresses all of them at once.
type Controller struct {
	Runner remote.Runner
	// Bin overrides the supervisorctl binary name; useful when it lives
	// outside the remote user's PATH.
	Bin string
	// Timeout bounds each supervisorctl invocation. Zero leaves the
	// caller's context in charge.
	Timeout time.Duration
}

func (c *Controller) run(ctx context.Context, host domain.Host, args ...string) (remote.Result, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	return c.Runner.Run(ctx, host, args...)
}

func (c *Controller) bin() string {
	if c.Bin != "" {
		return c.Bin
	}
	return "supervisorctl"
}

func (c *Controller) StopGroup(ctx context.Context, host domain.Host) error {
	res, err := c.run(ctx, host, c.bin(), "stop", host.SupervisionGroup+":*")
	if err != nil {
		return c.wrap(host, "stop", err)
	}
	// supervisorctl reports each already stopped process as an error line;
	// a group that was fully down is stopped all the same.
	if res.ExitCode != 0 && !onlyNotRunning(res) {
		return c.wrap(host, "stop", exitFailure(res))
	}
	return nil
}

func (c *Controller) StartGroup(ctx context.Context, host domain.Host) error {
	res, err := c.run(ctx, host, c.bin(), "start", host.SupervisionGroup+":*")
	if err != nil {
		return c.wrap(host, "start", err)
	}
	if res.ExitCode != 0 && !onlyAlreadyStarted(res) {
		return c.wrap(host, "start", exitFailure(res))
	}
	return nil
}

// Reload makes supervisord pick up configuration changes without bouncing
// unrelated groups: reread loads new definitions, update applies them.
func (c *Controller) Reload(ctx context.Context, host domain.Host) error {
	for _, sub := range []string{"reread", "update"} {
		res, err := c.run(ctx, host, c.bin(), sub)
		if err != nil {
			return c.wrap(host, "reload", err)
		}
		if res.ExitCode != 0 {
			return c.wrap(host, "reload", fmt.Errorf("%s: %w", sub, exitFailure(res)))
		}
	}
	return nil
}

func (c *Controller) wrap(host domain.Host, op string, cause error) error {
	return &domain.SupervisionError{
		Host:  host.Address,
		Group: host.SupervisionGroup,
		Op:    op,
		Cause: cause,
	}
}

func exitFailure(res remote.Result) error {
	detail := strings.TrimSpace(res.Stderr)
	if detail == "" {
		detail = strings.TrimSpace(res.Stdout)
	}
	return fmt.Errorf("exit %d: %s", res.ExitCode, firstLine(detail))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// onlyNotRunning reports whether every error line is a "not running"
// complaint, meaning the group was already stopped.
func onlyNotRunning(res remote.Result) bool {
	return onlyTolerated(res, "not running")
}

// onlyAlreadyStarted reports whether every error line is an "already
// started" complaint, meaning the group was already up.
func onlyAlreadyStarted(res remote.Result) bool {
	return onlyTolerated(res, "already started")
}

func onlyTolerated(res remote.Result, tolerated string) bool {
	out := res.Stdout + "\n" + res.Stderr
	sawTolerated := false
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, "ERROR") {
			continue
		}
		if !strings.Contains(line, tolerated) {
			return false
		}
		sawTolerated = true
	}
	return sawTolerated
}
