package httpapi_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/f4biogr/rollout/internal/application"
	"github.com/f4biogr/rollout/internal/domain"
	"github.com/f4biogr/rollout/internal/httpapi"
	"github.com/f4biogr/rollout/internal/infrastructure/dryrun"
	"github.com/f4biogr/rollout/internal/infrastructure/sqlite"
	"github.com/f4biogr/rollout/internal/infrastructure/syncworkflow"
)

func setup(t *testing.T) *http.ServeMux {
	t.Helper()
	db := sqlite.OpenTestDB(t)

	fleetRepo := &sqlite.FleetRepo{DB: db}
	releaseRepo := &sqlite.ReleaseRepo{DB: db}
	attemptRepo := &sqlite.AttemptRepo{DB: db}

	hosts := &dryrun.Fleet{Version: "2.3.9", LatestVersion: "2.5.0"}

	wf := &domain.RolloutWorkflow{
		Releases:           releaseRepo,
		Fleets:             fleetRepo,
		Attempts:           attemptRepo,
		Processes:          hosts,
		Packages:           hosts,
		Prober:             hosts,
		MaxConcurrentHosts: 2,
	}

	engine := &syncworkflow.Engine{}
	runner, err := engine.RolloutRunner(wf)
	if err != nil {
		t.Fatalf("RolloutRunner: %v", err)
	}

	handler := &httpapi.Handler{
		Fleets: &application.FleetService{Fleets: fleetRepo},
		Releases: &application.ReleaseService{
			Releases:      releaseRepo,
			Fleets:        fleetRepo,
			Attempts:      attemptRepo,
			Orchestration: &application.OrchestrationService{Workflow: runner},
		},
	}
	return handler.Routes()
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func fleetBody(id, environment string) map[string]any {
	return map[string]any{
		"id":          id,
		"name":        id,
		"environment": environment,
		"hosts": []map[string]any{
			{"address": "10.8.0.1", "supervision_group": "app", "worker_count": 2, "base_port": 9000},
			{"address": "10.8.0.2", "supervision_group": "app", "worker_count": 2, "base_port": 9000},
		},
	}
}

type releaseBody struct {
	ID           string `json:"id"`
	FleetID      string `json:"fleet_id"`
	State        string `json:"state"`
	ProbeTimeout string `json:"probe_timeout"`
	ProbeRetries int    `json:"probe_max_retries"`
	ProbeDelay   string `json:"probe_retry_delay"`
	ProbePath    string `json:"probe_path"`
}

type reportBody struct {
	State   string `json:"state"`
	Forward []struct {
		Host         string `json:"host"`
		FinalVersion string `json:"final_version"`
		Probes       []struct {
			State string `json:"state"`
		} `json:"probes"`
	} `json:"forward"`
}

type createReleaseBody struct {
	Release releaseBody `json:"release"`
	Report  *reportBody `json:"report"`
}

func TestCreateFleet(t *testing.T) {
	mux := setup(t)

	rec := doJSON(t, mux, http.MethodPost, "/v1/fleets", fleetBody("web", "prod"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, mux, http.MethodGet, "/v1/fleets/web", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", rec.Code)
	}
	var fleet struct {
		ID          string `json:"id"`
		Environment string `json:"environment"`
		Hosts       []struct {
			Address     string `json:"address"`
			WorkerCount int    `json:"worker_count"`
			BasePort    int    `json:"base_port"`
		} `json:"hosts"`
	}
	decodeInto(t, rec, &fleet)
	if fleet.ID != "web" || fleet.Environment != "prod" {
		t.Fatalf("fleet = %+v", fleet)
	}
	if len(fleet.Hosts) != 2 || fleet.Hosts[0].WorkerCount != 2 || fleet.Hosts[0].BasePort != 9000 {
		t.Fatalf("hosts = %+v", fleet.Hosts)
	}

	rec = doJSON(t, mux, http.MethodGet, "/v1/fleets", nil)
	var fleets []json.RawMessage
	decodeInto(t, rec, &fleets)
	if len(fleets) != 1 {
		t.Fatalf("len(fleets) = %d, want 1", len(fleets))
	}
}

func TestCreateFleet_Duplicate(t *testing.T) {
	mux := setup(t)

	doJSON(t, mux, http.MethodPost, "/v1/fleets", fleetBody("web", "prod"))
	rec := doJSON(t, mux, http.MethodPost, "/v1/fleets", fleetBody("web", "prod"))
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestCreateFleet_BadTopology(t *testing.T) {
	mux := setup(t)

	body := fleetBody("web", "prod")
	body["hosts"] = []map[string]any{
		{"address": "10.8.0.1", "supervision_group": "app", "worker_count": 0, "base_port": 9000},
	}
	rec := doJSON(t, mux, http.MethodPost, "/v1/fleets", body)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422: %s", rec.Code, rec.Body)
	}
}

func TestGetFleet_NotFound(t *testing.T) {
	mux := setup(t)

	rec := doJSON(t, mux, http.MethodGet, "/v1/fleets/ghost", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestCreateRelease_RespondsWithReport(t *testing.T) {
	mux := setup(t)
	doJSON(t, mux, http.MethodPost, "/v1/fleets", fleetBody("web", "prod"))

	rec := doJSON(t, mux, http.MethodPost, "/v1/releases", map[string]any{
		"fleet_id": "web",
		"package":  "billing-api",
		"version":  "2.4.0",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body)
	}
	var resp createReleaseBody
	decodeInto(t, rec, &resp)

	if resp.Release.State != string(domain.ReleaseStateCommitted) {
		t.Fatalf("release state = %q, want committed", resp.Release.State)
	}
	if resp.Report == nil {
		t.Fatal("report missing from response")
	}
	if resp.Report.State != string(domain.AttemptCommitted) {
		t.Fatalf("report state = %q, want committed", resp.Report.State)
	}
	if len(resp.Report.Forward) != 2 {
		t.Fatalf("forward outcomes = %d, want 2", len(resp.Report.Forward))
	}
	for _, out := range resp.Report.Forward {
		if out.FinalVersion != "2.4.0" {
			t.Fatalf("host %s final version = %q, want 2.4.0", out.Host, out.FinalVersion)
		}
		for _, probe := range out.Probes {
			if probe.State != string(domain.ProbeHealthy) {
				t.Fatalf("host %s probe state = %q", out.Host, probe.State)
			}
		}
	}
}

func TestCreateRelease_ResolvesEnvironment(t *testing.T) {
	mux := setup(t)
	doJSON(t, mux, http.MethodPost, "/v1/fleets", fleetBody("search", "staging"))

	rec := doJSON(t, mux, http.MethodPost, "/v1/releases", map[string]any{
		"environment": "staging",
		"package":     "billing-api",
		"version":     "2.4.0",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body)
	}
	var resp createReleaseBody
	decodeInto(t, rec, &resp)
	if resp.Release.FleetID != "search" {
		t.Fatalf("fleet id = %q, want search", resp.Release.FleetID)
	}
}

func TestCreateRelease_RequiresTarget(t *testing.T) {
	mux := setup(t)

	rec := doJSON(t, mux, http.MethodPost, "/v1/releases", map[string]any{
		"package": "billing-api",
		"version": "2.4.0",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422: %s", rec.Code, rec.Body)
	}
}

func TestCreateRelease_UnknownEnvironment(t *testing.T) {
	mux := setup(t)

	rec := doJSON(t, mux, http.MethodPost, "/v1/releases", map[string]any{
		"environment": "qa",
		"package":     "billing-api",
		"version":     "2.4.0",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404: %s", rec.Code, rec.Body)
	}
}

func TestCreateRelease_BadJSON(t *testing.T) {
	mux := setup(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/releases", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

// A partial probe spec keeps the defaults for whatever it leaves unset, and
// an explicit zero max_retries means a single attempt rather than "use the
// default".
func TestCreateRelease_ProbeOverrides(t *testing.T) {
	mux := setup(t)
	doJSON(t, mux, http.MethodPost, "/v1/fleets", fleetBody("web", "prod"))

	rec := doJSON(t, mux, http.MethodPost, "/v1/releases", map[string]any{
		"fleet_id": "web",
		"package":  "billing-api",
		"version":  "2.4.0",
		"probe":    map[string]any{"timeout": "2s", "max_retries": 0},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body)
	}
	var resp createReleaseBody
	decodeInto(t, rec, &resp)

	rel := resp.Release
	if rel.ProbeTimeout != "2s" {
		t.Fatalf("probe timeout = %q, want 2s", rel.ProbeTimeout)
	}
	if rel.ProbeRetries != 0 {
		t.Fatalf("probe max retries = %d, want 0", rel.ProbeRetries)
	}
	if rel.ProbeDelay != "10s" {
		t.Fatalf("probe retry delay = %q, want default 10s", rel.ProbeDelay)
	}
	if rel.ProbePath != domain.DefaultHealthPath {
		t.Fatalf("probe path = %q, want %q", rel.ProbePath, domain.DefaultHealthPath)
	}
}

func TestCreateRelease_BadProbeDuration(t *testing.T) {
	mux := setup(t)
	doJSON(t, mux, http.MethodPost, "/v1/fleets", fleetBody("web", "prod"))

	rec := doJSON(t, mux, http.MethodPost, "/v1/releases", map[string]any{
		"fleet_id": "web",
		"package":  "billing-api",
		"version":  "2.4.0",
		"probe":    map[string]any{"timeout": "soon"},
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422: %s", rec.Code, rec.Body)
	}
}

func TestReleaseEndpoints_ListGetReport(t *testing.T) {
	mux := setup(t)
	doJSON(t, mux, http.MethodPost, "/v1/fleets", fleetBody("web", "prod"))
	doJSON(t, mux, http.MethodPost, "/v1/fleets", fleetBody("search", "staging"))

	rec := doJSON(t, mux, http.MethodPost, "/v1/releases", map[string]any{
		"fleet_id": "web",
		"package":  "billing-api",
		"version":  "2.4.0",
	})
	var created createReleaseBody
	decodeInto(t, rec, &created)
	id := created.Release.ID

	rec = doJSON(t, mux, http.MethodGet, "/v1/releases", nil)
	var releases []releaseBody
	decodeInto(t, rec, &releases)
	if len(releases) != 1 {
		t.Fatalf("len(releases) = %d, want 1", len(releases))
	}

	rec = doJSON(t, mux, http.MethodGet, "/v1/releases?fleet=search", nil)
	var filtered []releaseBody
	decodeInto(t, rec, &filtered)
	if len(filtered) != 0 {
		t.Fatalf("len(filtered) = %d, want 0", len(filtered))
	}

	rec = doJSON(t, mux, http.MethodGet, "/v1/releases/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get release status = %d, want 200", rec.Code)
	}
	var got releaseBody
	decodeInto(t, rec, &got)
	if got.ID != id || got.State != string(domain.ReleaseStateCommitted) {
		t.Fatalf("release = %+v", got)
	}

	rec = doJSON(t, mux, http.MethodGet, "/v1/releases/"+id+"/report", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get report status = %d, want 200", rec.Code)
	}
	var report reportBody
	decodeInto(t, rec, &report)
	if report.State != string(domain.AttemptCommitted) {
		t.Fatalf("report state = %q, want committed", report.State)
	}

	rec = doJSON(t, mux, http.MethodGet, "/v1/releases/ghost/report", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing report status = %d, want 404", rec.Code)
	}
}
