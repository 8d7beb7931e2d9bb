package httpprobe_test

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/f4biogr/rollout/internal/domain"
	"github.com/f4biogr/rollout/internal/infrastructure/httpprobe"
)

// hostFor builds a host whose first worker port lands on the test server.
func hostFor(t *testing.T, srv *httptest.Server) domain.Host {
	t.Helper()
	addr, ok := srv.Listener.Addr().(*net.TCPAddr)
	if !ok {
		t.Fatalf("unexpected listener address %T", srv.Listener.Addr())
	}
	return domain.Host{
		Address:          "127.0.0.1",
		SupervisionGroup: "app",
		WorkerCount:      1,
		BasePort:         addr.Port - 1,
	}
}

func fastPolicy(maxRetries int) domain.ProbePolicy {
	return domain.ProbePolicy{
		Timeout:    time.Second,
		MaxRetries: maxRetries,
		RetryDelay: 0,
	}
}

func TestProbe_HealthyAfterRetries(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	p := &httpprobe.Prober{}
	result, err := p.Probe(context.Background(), hostFor(t, srv), 1, fastPolicy(4))
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}

	if result.State != domain.ProbeHealthy {
		t.Fatalf("state = %s, want healthy", result.State)
	}
	if result.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", result.Attempts)
	}
	if result.LastStatus != http.StatusOK {
		t.Errorf("last status = %d, want 200", result.LastStatus)
	}
	if result.LastError != "" {
		t.Errorf("last error = %q, want empty", result.LastError)
	}
	if result.BodySnippet != "ok" {
		t.Errorf("body snippet = %q, want %q", result.BodySnippet, "ok")
	}
	if result.WorkerIndex != 1 {
		t.Errorf("worker index = %d, want 1", result.WorkerIndex)
	}
}

func TestProbe_UnhealthyAfterBudgetExhausted(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("worker booting"))
	}))
	defer srv.Close()

	p := &httpprobe.Prober{}
	result, err := p.Probe(context.Background(), hostFor(t, srv), 1, fastPolicy(2))
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}

	if result.State != domain.ProbeUnhealthy {
		t.Fatalf("state = %s, want unhealthy", result.State)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server saw %d requests, want 3", got)
	}
	if result.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", result.Attempts)
	}
	if result.LastStatus != http.StatusServiceUnavailable {
		t.Errorf("last status = %d, want 503", result.LastStatus)
	}
	if result.LastError == "" {
		t.Error("expected last error to describe the bad status")
	}
	if result.BodySnippet != "worker booting" {
		t.Errorf("body snippet = %q", result.BodySnippet)
	}
}

func TestProbe_NonOKSuccessCodeIsUnhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p := &httpprobe.Prober{}
	result, err := p.Probe(context.Background(), hostFor(t, srv), 1, fastPolicy(0))
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}

	if result.State != domain.ProbeUnhealthy {
		t.Fatalf("state = %s, want unhealthy for 204", result.State)
	}
	if result.LastStatus != http.StatusNoContent {
		t.Errorf("last status = %d, want 204", result.LastStatus)
	}
}

func TestProbe_ErroredWhenWorkerUnreachable(t *testing.T) {
	// Grab a port that nothing listens on.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	host := domain.Host{
		Address:          "127.0.0.1",
		SupervisionGroup: "app",
		WorkerCount:      1,
		BasePort:         port - 1,
	}

	p := &httpprobe.Prober{}
	result, err := p.Probe(context.Background(), host, 1, fastPolicy(2))
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}

	if result.State != domain.ProbeErrored {
		t.Fatalf("state = %s, want errored", result.State)
	}
	if result.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", result.Attempts)
	}
	if result.LastStatus != 0 {
		t.Errorf("last status = %d, want 0", result.LastStatus)
	}
	if result.LastError == "" {
		t.Error("expected a transport error message")
	}
	if result.BodySnippet != "" {
		t.Errorf("body snippet = %q, want empty", result.BodySnippet)
	}
}

func TestProbe_BodySnippetIsBounded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(strings.Repeat("x", 4096)))
	}))
	defer srv.Close()

	p := &httpprobe.Prober{}
	result, err := p.Probe(context.Background(), hostFor(t, srv), 1, fastPolicy(0))
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}

	if len(result.BodySnippet) != 512 {
		t.Errorf("snippet length = %d, want 512", len(result.BodySnippet))
	}
}

func TestProbe_UsesConfiguredPath(t *testing.T) {
	var gotPath atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.Path)
	}))
	defer srv.Close()

	policy := fastPolicy(0)
	policy.Path = "/status/live"

	p := &httpprobe.Prober{}
	if _, err := p.Probe(context.Background(), hostFor(t, srv), 1, policy); err != nil {
		t.Fatalf("Probe: %v", err)
	}

	if got := gotPath.Load(); got != "/status/live" {
		t.Errorf("probed path = %v, want /status/live", got)
	}
}

func TestProbe_DefaultsToHealthPath(t *testing.T) {
	var gotPath atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.Path)
	}))
	defer srv.Close()

	p := &httpprobe.Prober{}
	if _, err := p.Probe(context.Background(), hostFor(t, srv), 1, fastPolicy(0)); err != nil {
		t.Fatalf("Probe: %v", err)
	}

	if got := gotPath.Load(); got != domain.DefaultHealthPath {
		t.Errorf("probed path = %v, want %s", got, domain.DefaultHealthPath)
	}
}

func TestProbe_RejectsInvalidPolicy(t *testing.T) {
	p := &httpprobe.Prober{}
	host := domain.Host{Address: "127.0.0.1", SupervisionGroup: "app", WorkerCount: 1, BasePort: 9000}

	_, err := p.Probe(context.Background(), host, 1, domain.ProbePolicy{Timeout: 0})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}
