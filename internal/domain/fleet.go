package domain

import "fmt"

// FleetID uniquely identifies a fleet.
type FleetID string

// Fleet is the set of hosts targeted by one deployment. Hosts are
// independent failure domains: they share no state and may be rolled out
// concurrently, but commit requires every one of them healthy.
type Fleet struct {
	ID          FleetID
	Name        string
	Environment string
	Hosts       []Host
}

// Host describes one machine in a fleet: where to reach it, how its
// credentials are referenced (opaquely; the core never reads secret
// material), and the shape of its supervised worker group. WorkerCount and
// BasePort are immutable for the duration of one attempt.
type Host struct {
	Address          string
	CredentialsRef   string
	SupervisionGroup string
	WorkerCount      int
	BasePort         int
}

// WorkerPort returns the listen port for worker i. Workers are 1-indexed:
// the first worker listens on BasePort+1.
func (h Host) WorkerPort(i int) int {
	return h.BasePort + i
}

// WorkerName returns the display name for worker i, zero-padded the way the
// supervisor names numbered processes (group_01, group_02, ...). Only the
// name pads; ports are plain addition.
func (h Host) WorkerName(i int) string {
	return fmt.Sprintf("%s_%02d", h.SupervisionGroup, i)
}

// WorkerPorts returns every worker port on the host in worker order.
func (h Host) WorkerPorts() []int {
	ports := make([]int, h.WorkerCount)
	for i := 1; i <= h.WorkerCount; i++ {
		ports[i-1] = h.WorkerPort(i)
	}
	return ports
}

// Validate checks that the fleet can be deployed to. Every violation is
// reported as [ErrInvalidTopology]; a deployment attempt fails fast on the
// first one, before anything on any host is touched.
func (f Fleet) Validate() error {
	if len(f.Hosts) == 0 {
		return fmt.Errorf("%w: fleet %q has no hosts", ErrInvalidTopology, f.ID)
	}
	seen := make(map[string]bool, len(f.Hosts))
	for _, h := range f.Hosts {
		if h.Address == "" {
			return fmt.Errorf("%w: fleet %q has a host with no address", ErrInvalidTopology, f.ID)
		}
		if seen[h.Address] {
			return fmt.Errorf("%w: duplicate host %q in fleet %q", ErrInvalidTopology, h.Address, f.ID)
		}
		seen[h.Address] = true
		if h.SupervisionGroup == "" {
			return fmt.Errorf("%w: host %q has no supervision group", ErrInvalidTopology, h.Address)
		}
		if h.WorkerCount < 1 {
			return fmt.Errorf("%w: host %q worker count %d", ErrInvalidTopology, h.Address, h.WorkerCount)
		}
		if h.BasePort < 0 {
			return fmt.Errorf("%w: host %q base port %d", ErrInvalidTopology, h.Address, h.BasePort)
		}
		if h.BasePort+h.WorkerCount > 65535 {
			return fmt.Errorf("%w: host %q worker ports exceed 65535", ErrInvalidTopology, h.Address)
		}
	}
	return nil
}

// HostByAddress looks a host up by address. The bool reports whether the
// host is part of the fleet.
func (f Fleet) HostByAddress(addr string) (Host, bool) {
	for _, h := range f.Hosts {
		if h.Address == addr {
			return h, true
		}
	}
	return Host{}, false
}
