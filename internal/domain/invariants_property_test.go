//go:build property
// +build property

// Property-based tests for the aggregation and versioning invariants the
// rollout verdict rests on.
package domain_test

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/f4biogr/rollout/internal/domain"
)

// TestForwardHealthyRequiresEveryHost verifies the consensus rule: a forward
// pass aggregates healthy only when every single host is healthy, whatever
// the mix of failure modes.
func TestForwardHealthyRequiresEveryHost(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("healthy verdict means every host healthy", prop.ForAll(
		func(healthy []bool) bool {
			outcomes := make([]domain.HostOutcome, len(healthy))
			want := len(healthy) > 0
			for i, ok := range healthy {
				outcomes[i] = outcomeFor(i, ok)
				want = want && ok
			}
			return domain.ForwardHealthy(outcomes) == want
		},
		gen.SliceOf(gen.Bool()),
	))

	properties.Property("empty fleet never aggregates healthy", prop.ForAll(
		func(n int) bool {
			return !domain.ForwardHealthy(make([]domain.HostOutcome, 0, n))
		},
		gen.IntRange(0, 8),
	))

	properties.TestingRun(t)
}

// TestMutatedHostsMatchesFlags verifies rollback targeting: exactly the
// hosts flagged mutated are selected, in fleet order.
func TestMutatedHostsMatchesFlags(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("mutated selection is exact and ordered", prop.ForAll(
		func(mutated []bool) bool {
			outcomes := make([]domain.HostOutcome, len(mutated))
			var want []string
			for i, m := range mutated {
				addr := fmt.Sprintf("10.0.0.%d", i+1)
				outcomes[i] = domain.HostOutcome{Host: addr, Mutated: m}
				if m {
					want = append(want, addr)
				}
			}
			got := domain.MutatedHosts(outcomes)
			if len(got) != len(want) {
				return false
			}
			for i := range got {
				if got[i] != want[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}

// TestVersionDirectionAntisymmetry verifies that swapping the endpoints of
// a version change flips upgrade and downgrade and preserves unchanged.
func TestVersionDirectionAntisymmetry(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("swapping endpoints flips the direction", prop.ForAll(
		func(maj1, min1, pat1, maj2, min2, pat2 int) bool {
			from := fmt.Sprintf("%d.%d.%d", maj1, min1, pat1)
			to := fmt.Sprintf("%d.%d.%d", maj2, min2, pat2)
			forward := domain.ClassifyVersionChange(from, to)
			backward := domain.ClassifyVersionChange(to, from)
			switch forward {
			case domain.DirectionUnchanged:
				return backward == domain.DirectionUnchanged
			case domain.DirectionUpgrade:
				return backward == domain.DirectionDowngrade
			case domain.DirectionDowngrade:
				return backward == domain.DirectionUpgrade
			default:
				return false
			}
		},
		gen.IntRange(0, 40),
		gen.IntRange(0, 40),
		gen.IntRange(0, 40),
		gen.IntRange(0, 40),
		gen.IntRange(0, 40),
		gen.IntRange(0, 40),
	))

	properties.TestingRun(t)
}

// TestWorkerPortsAreContiguousAndDistinct verifies the port layout every
// probe depends on: worker i listens on base+i and no two workers collide.
func TestWorkerPortsAreContiguousAndDistinct(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("worker i listens on base+i", prop.ForAll(
		func(base, count int) bool {
			host := domain.Host{
				Address:          "10.0.0.1",
				SupervisionGroup: "app",
				WorkerCount:      count,
				BasePort:         base,
			}
			seen := make(map[int]bool, count)
			for i := 0; i < count; i++ {
				port := host.WorkerPort(i)
				if port != base+i || seen[port] {
					return false
				}
				seen[port] = true
			}
			return len(host.WorkerPorts()) == count
		},
		gen.IntRange(1024, 60000),
		gen.IntRange(1, 64),
	))

	properties.TestingRun(t)
}

// outcomeFor builds a host outcome for the aggregation property. Unhealthy
// hosts rotate through the distinct failure modes so the property covers
// skips, step failures, and probe verdicts alike.
func outcomeFor(i int, healthy bool) domain.HostOutcome {
	addr := fmt.Sprintf("10.0.0.%d", i+1)
	if healthy {
		return domain.HostOutcome{
			Host:    addr,
			Mutated: true,
			Probes: []domain.ProbeResult{
				{WorkerIndex: 0, Port: 9000, State: domain.ProbeHealthy, Attempts: 1, LastStatus: 200},
			},
			FinalVersion: "1.2.3",
		}
	}
	switch i % 3 {
	case 0:
		return domain.HostOutcome{Host: addr, Skipped: true}
	case 1:
		return domain.HostOutcome{
			Host:    addr,
			Mutated: true,
			Failure: &domain.HostFailure{Step: domain.StepInstall, Message: "exit 1"},
		}
	default:
		return domain.HostOutcome{
			Host:    addr,
			Mutated: true,
			Probes: []domain.ProbeResult{
				{WorkerIndex: 0, Port: 9000, State: domain.ProbeUnhealthy, Attempts: 3, LastStatus: 503},
			},
		}
	}
}
