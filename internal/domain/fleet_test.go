package domain_test

import (
	"errors"
	"testing"

	"github.com/f4biogr/rollout/internal/domain"
)

func validFleet() domain.Fleet {
	return domain.Fleet{
		ID:          "f1",
		Name:        "search",
		Environment: "prod",
		Hosts: []domain.Host{
			{Address: "10.0.0.1", SupervisionGroup: "app", WorkerCount: 4, BasePort: 9000},
			{Address: "10.0.0.2", SupervisionGroup: "app", WorkerCount: 4, BasePort: 9000},
		},
	}
}

func TestWorkerPort_OneIndexedFromBase(t *testing.T) {
	h := domain.Host{BasePort: 9000, WorkerCount: 4}
	if got := h.WorkerPort(1); got != 9001 {
		t.Errorf("WorkerPort(1) = %d, want 9001", got)
	}
	if got := h.WorkerPort(4); got != 9004 {
		t.Errorf("WorkerPort(4) = %d, want 9004", got)
	}
}

func TestWorkerPort_NotZeroPadded(t *testing.T) {
	// The supervisor pads process names to two digits; ports must stay
	// plain arithmetic and never inherit the padding.
	h := domain.Host{SupervisionGroup: "app", BasePort: 8000, WorkerCount: 12}
	if got := h.WorkerPort(7); got != 8007 {
		t.Errorf("WorkerPort(7) = %d, want 8007", got)
	}
	if got := h.WorkerName(7); got != "app_07" {
		t.Errorf("WorkerName(7) = %q, want app_07", got)
	}
	if got := h.WorkerPort(12); got != 8012 {
		t.Errorf("WorkerPort(12) = %d, want 8012", got)
	}
}

func TestWorkerPorts_CoversEveryWorkerInOrder(t *testing.T) {
	h := domain.Host{BasePort: 9000, WorkerCount: 3}
	got := h.WorkerPorts()
	want := []int{9001, 9002, 9003}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ports[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestFleetValidate_AcceptsWellFormedFleet(t *testing.T) {
	if err := validFleet().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestFleetValidate_RejectsBadTopologies(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*domain.Fleet)
	}{
		{"no hosts", func(f *domain.Fleet) { f.Hosts = nil }},
		{"empty address", func(f *domain.Fleet) { f.Hosts[0].Address = "" }},
		{"duplicate address", func(f *domain.Fleet) { f.Hosts[1].Address = f.Hosts[0].Address }},
		{"no supervision group", func(f *domain.Fleet) { f.Hosts[0].SupervisionGroup = "" }},
		{"zero workers", func(f *domain.Fleet) { f.Hosts[0].WorkerCount = 0 }},
		{"negative workers", func(f *domain.Fleet) { f.Hosts[0].WorkerCount = -2 }},
		{"negative base port", func(f *domain.Fleet) { f.Hosts[0].BasePort = -1 }},
		{"port overflow", func(f *domain.Fleet) { f.Hosts[0].BasePort = 65534; f.Hosts[0].WorkerCount = 2 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fleet := validFleet()
			tc.mutate(&fleet)
			err := fleet.Validate()
			if !errors.Is(err, domain.ErrInvalidTopology) {
				t.Errorf("Validate = %v, want ErrInvalidTopology", err)
			}
		})
	}
}

func TestFleetValidate_AllowsPortsUpToLimit(t *testing.T) {
	fleet := validFleet()
	fleet.Hosts[0].BasePort = 65533
	fleet.Hosts[0].WorkerCount = 2 // workers on 65534, 65535
	if err := fleet.Validate(); err != nil {
		t.Errorf("Validate = %v, want nil for ports ending exactly at 65535", err)
	}
}

func TestHostByAddress(t *testing.T) {
	fleet := validFleet()
	host, ok := fleet.HostByAddress("10.0.0.2")
	if !ok {
		t.Fatal("HostByAddress(10.0.0.2) not found")
	}
	if host.Address != "10.0.0.2" {
		t.Errorf("Address = %q, want 10.0.0.2", host.Address)
	}
	if _, ok := fleet.HostByAddress("10.9.9.9"); ok {
		t.Error("HostByAddress(10.9.9.9) = found, want missing")
	}
}
