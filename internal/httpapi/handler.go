// Package httpapi exposes fleet registration and release orchestration over
// a JSON HTTP surface.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/f4biogr/rollout/internal/application"
	"github.com/f4biogr/rollout/internal/domain"
)

// Handler serves the v1 API. All fields must be set.
type Handler struct {
	Fleets   *application.FleetService
	Releases *application.ReleaseService
	Logger   *slog.Logger
}

// Routes builds the route table.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/fleets", h.createFleet)
	mux.HandleFunc("GET /v1/fleets", h.listFleets)
	mux.HandleFunc("GET /v1/fleets/{id}", h.getFleet)
	mux.HandleFunc("POST /v1/releases", h.createRelease)
	mux.HandleFunc("GET /v1/releases", h.listReleases)
	mux.HandleFunc("GET /v1/releases/{id}", h.getRelease)
	mux.HandleFunc("GET /v1/releases/{id}/report", h.getReport)
	return mux
}

func (h *Handler) createFleet(w http.ResponseWriter, r *http.Request) {
	var payload fleetPayload
	if err := decode(r, &payload); err != nil {
		h.respondError(w, r, err)
		return
	}
	fleet := payload.toDomain()
	if err := h.Fleets.Register(r.Context(), fleet); err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, fleetFrom(fleet))
}

func (h *Handler) listFleets(w http.ResponseWriter, r *http.Request) {
	fleets, err := h.Fleets.List(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	payloads := make([]fleetPayload, 0, len(fleets))
	for _, fleet := range fleets {
		payloads = append(payloads, fleetFrom(fleet))
	}
	respondJSON(w, http.StatusOK, payloads)
}

func (h *Handler) getFleet(w http.ResponseWriter, r *http.Request) {
	fleet, err := h.Fleets.Get(r.Context(), domain.FleetID(r.PathValue("id")))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, fleetFrom(fleet))
}

// createRelease runs the rollout synchronously and answers with the final
// report, so a plain curl sees the verdict without polling.
func (h *Handler) createRelease(w http.ResponseWriter, r *http.Request) {
	var req createReleaseRequest
	if err := decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	fleetID, err := h.resolveFleet(r, req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	policy, err := req.Probe.policy()
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	rel, err := h.Releases.Create(r.Context(), application.CreateReleaseInput{
		FleetID:       fleetID,
		Package:       req.Package,
		Version:       req.Version,
		Probe:         policy,
		DisableBackup: req.DisableBackup,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	resp := createReleaseResponse{Release: releaseFrom(rel)}
	report, err := h.Releases.Report(r.Context(), rel.ID)
	if err != nil {
		h.logger().Warn("release created but report lookup failed", "release", rel.ID, "error", err)
	} else {
		resp.Report = reportFrom(report)
	}
	respondJSON(w, http.StatusCreated, resp)
}

func (h *Handler) resolveFleet(r *http.Request, req createReleaseRequest) (domain.FleetID, error) {
	if req.FleetID != "" {
		return domain.FleetID(req.FleetID), nil
	}
	if req.Environment == "" {
		return "", fmt.Errorf("%w: fleet_id or environment is required", domain.ErrInvalidArgument)
	}
	fleet, err := h.Fleets.ResolveEnvironment(r.Context(), req.Environment)
	if err != nil {
		return "", err
	}
	return fleet.ID, nil
}

func (h *Handler) listReleases(w http.ResponseWriter, r *http.Request) {
	var (
		releases []domain.Release
		err      error
	)
	if fleetID := r.URL.Query().Get("fleet"); fleetID != "" {
		releases, err = h.Releases.ListByFleet(r.Context(), domain.FleetID(fleetID))
	} else {
		releases, err = h.Releases.List(r.Context())
	}
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	payloads := make([]releasePayload, 0, len(releases))
	for _, rel := range releases {
		payloads = append(payloads, releaseFrom(rel))
	}
	respondJSON(w, http.StatusOK, payloads)
}

func (h *Handler) getRelease(w http.ResponseWriter, r *http.Request) {
	rel, err := h.Releases.Get(r.Context(), domain.ReleaseID(r.PathValue("id")))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, releaseFrom(rel))
}

func (h *Handler) getReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.Releases.Report(r.Context(), domain.ReleaseID(r.PathValue("id")))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, reportFrom(report))
}

type errorPayload struct {
	Error string `json:"error"`
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrAttemptInProgress),
		errors.Is(err, domain.ErrInconsistentFleetVersion):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrInvalidTopology):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		h.logger().Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	respondJSON(w, status, errorPayload{Error: err.Error()})
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

var errBadRequest = errors.New("bad request")

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: decode body: %v", errBadRequest, err)
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
