// Package httpprobe checks worker health over plain HTTP.
package httpprobe

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/f4biogr/rollout/internal/domain"
	"github.com/f4biogr/rollout/internal/metrics"
)

// bodySnippetLimit bounds how much of a response body ends up in the report.
const bodySnippetLimit = 512

// Prober implements [domain.HealthProber] against per-worker HTTP endpoints.
// A worker is healthy when its endpoint answers 200 within the policy timeout.
type Prober struct {
	// Client issues the requests. Falls back to http.DefaultClient.
	// Per-attempt timeouts come from the probe policy, not the client.
	Client *http.Client

	// Scheme defaults to plain http. Workers sit behind the loopback or a
	// private network, TLS between the orchestrator and a worker is unusual.
	Scheme string

	// Metrics, when set, records attempt counts and probe durations.
	Metrics *metrics.Metrics
}

// Probe polls one worker until it answers 200 or the retry budget runs out.
// Outcomes, including unhealthy and unreachable workers, are reported in the
// result. The error return is reserved for an unusable policy.
func (p *Prober) Probe(ctx context.Context, host domain.Host, workerIndex int, policy domain.ProbePolicy) (domain.ProbeResult, error) {
	if err := policy.Validate(); err != nil {
		return domain.ProbeResult{}, err
	}

	port := host.WorkerPort(workerIndex)
	url := fmt.Sprintf("%s://%s%s",
		p.scheme(),
		net.JoinHostPort(host.Address, strconv.Itoa(port)),
		policy.EndpointPath(),
	)

	result := domain.ProbeResult{
		WorkerIndex: workerIndex,
		Port:        port,
	}

	sawResponse := false
	start := time.Now()

	err := retry.Do(
		func() error {
			result.Attempts++

			attemptCtx, cancel := context.WithTimeout(ctx, policy.Timeout)
			defer cancel()

			req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
			if err != nil {
				result.LastError = err.Error()
				return err
			}

			resp, err := p.client().Do(req)
			if err != nil {
				result.LastError = err.Error()
				return err
			}
			defer resp.Body.Close()

			sawResponse = true
			result.LastStatus = resp.StatusCode
			result.BodySnippet = readSnippet(resp.Body)

			if resp.StatusCode != http.StatusOK {
				result.LastError = fmt.Sprintf("status %d", resp.StatusCode)
				return fmt.Errorf("probe %s: status %d", url, resp.StatusCode)
			}
			result.LastError = ""
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(policy.Attempts())),
		retry.Delay(policy.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)

	result.Elapsed = time.Since(start)

	switch {
	case err == nil:
		result.State = domain.ProbeHealthy
	case sawResponse:
		result.State = domain.ProbeUnhealthy
	default:
		result.State = domain.ProbeErrored
	}
	p.Metrics.ObserveProbe(result)
	return result, nil
}

func (p *Prober) client() *http.Client {
	if p.Client != nil {
		return p.Client
	}
	return http.DefaultClient
}

func (p *Prober) scheme() string {
	if p.Scheme != "" {
		return p.Scheme
	}
	return "http"
}

func readSnippet(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, bodySnippetLimit))
	if err != nil {
		return ""
	}
	return string(b)
}
