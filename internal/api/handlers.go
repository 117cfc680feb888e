package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/decisionstack/decision-engine/internal/dispatch"
	"github.com/decisionstack/decision-engine/internal/models"
	"github.com/decisionstack/decision-engine/internal/registry"
	"github.com/decisionstack/decision-engine/internal/services"
)

// decisionResponse is the wire view of a job. While the job is still
// processing, Result carries the {"status":"processing"} placeholder so
// pollers always see a non-null result object.
type decisionResponse struct {
	ID          string            `json:"id"`
	State       models.JobState   `json:"state"`
	CreatedAt   time.Time         `json:"created_at"`
	Result      any               `json:"result"`
	Confidence  *float64          `json:"confidence,omitempty"`
	Explanation string            `json:"explanation,omitempty"`
	Error       *models.ErrorInfo `json:"error,omitempty"`
}

type errorResponse struct {
	Error models.ErrorInfo `json:"error"`
}

// NewRouter builds the REST surface.
func NewRouter(svc *services.DecisionService, logger *slog.Logger) *mux.Router {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handlers{svc: svc, logger: logger}

	r := mux.NewRouter()
	r.HandleFunc("/incidents", h.submitIncident).Methods(http.MethodPost)
	r.HandleFunc("/decisions", h.listDecisions).Methods(http.MethodGet)
	r.HandleFunc("/decisions/{id}", h.getDecision).Methods(http.MethodGet)
	r.HandleFunc("/admin/reset", h.reset).Methods(http.MethodPost)
	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	return r
}

type handlers struct {
	svc    *services.DecisionService
	logger *slog.Logger
}

func (h *handlers) submitIncident(w http.ResponseWriter, r *http.Request) {
	// Unknown fields are ignored so older clients can carry extra metadata.
	var inc models.Incident
	if err := json.NewDecoder(r.Body).Decode(&inc); err != nil {
		writeError(w, http.StatusBadRequest, models.ErrorInfo{
			Code:    models.ErrCodeInvalidInput,
			Message: fmt.Sprintf("malformed incident payload: %v", err),
		})
		return
	}

	id, err := h.svc.Submit(r.Context(), inc)
	if err != nil {
		if errors.Is(err, dispatch.ErrDispatchUnavailable) {
			// The job record exists in a failed state; report the id so the
			// caller can still inspect it.
			h.logger.Warn("submission rejected, queue unavailable", "job_id", id)
			writeError(w, http.StatusServiceUnavailable, models.ErrorInfo{
				Code:    models.ErrCodeDispatchUnavailable,
				Message: "work queue unavailable",
			})
			return
		}
		h.logger.Error("submission failed", "error", err)
		writeError(w, http.StatusInternalServerError, models.ErrorInfo{
			Code:    models.ErrCodeStageInternal,
			Message: "could not accept incident",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

func (h *handlers) getDecision(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	job, err := h.svc.GetDecision(r.Context(), id)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			writeError(w, http.StatusNotFound, models.ErrorInfo{
				Code:    models.ErrCodeNotFound,
				Message: fmt.Sprintf("no decision job %q", id),
			})
			return
		}
		h.logger.Error("lookup failed", "job_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, models.ErrorInfo{
			Code:    models.ErrCodeStageInternal,
			Message: "lookup failed",
		})
		return
	}
	writeJSON(w, http.StatusOK, toResponse(job))
}

func (h *handlers) listDecisions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, models.ErrorInfo{
				Code:    models.ErrCodeInvalidInput,
				Message: "limit must be a non-negative integer",
			})
			return
		}
		limit = n
	}

	jobs, err := h.svc.ListDecisions(r.Context(), limit)
	if err != nil {
		h.logger.Error("list decisions failed", "error", err)
		writeError(w, http.StatusInternalServerError, models.ErrorInfo{
			Code:    models.ErrCodeStageInternal,
			Message: "listing failed",
		})
		return
	}

	out := make([]decisionResponse, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, toResponse(job))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) reset(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Reset(r.Context()); err != nil {
		h.logger.Error("reset failed", "error", err)
		writeError(w, http.StatusInternalServerError, models.ErrorInfo{
			Code:    models.ErrCodeStageInternal,
			Message: "reset failed",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Health(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func toResponse(job models.Job) decisionResponse {
	resp := decisionResponse{
		ID:        job.ID,
		State:     job.State,
		CreatedAt: job.CreatedAt,
		Error:     job.Error,
	}

	switch {
	case job.State == models.JobCompleted && job.Result != nil:
		dec := *job.Result
		dec.FinalDecision = coerceAction(dec.FinalDecision)
		resp.Result = dec
		conf := dec.Confidence
		resp.Confidence = &conf
		resp.Explanation = narrative(dec)
	case job.State == models.JobFailed:
		resp.Result = nil
	default:
		resp.Result = map[string]string{"status": "processing"}
	}
	return resp
}

// coerceAction shields clients from unknown action values, for example rows
// written by a newer engine version. Unknowns render as the safest action.
func coerceAction(a models.Action) models.Action {
	if a.Valid() {
		return a
	}
	return models.ActionMonitor
}

// narrative renders a short human-readable explanation from the reasoning
// trace. Deterministic for a given decision.
func narrative(dec models.Decision) string {
	if len(dec.ReasoningTrace) == 0 {
		return fmt.Sprintf("Final decision %s with confidence %.2f.", dec.FinalDecision, dec.Confidence)
	}
	last := dec.ReasoningTrace[len(dec.ReasoningTrace)-1]
	return fmt.Sprintf("%s concluded %s (confidence %.2f): %s",
		last.Agent.DisplayName(), dec.FinalDecision, dec.Confidence, last.Thought)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, info models.ErrorInfo) {
	writeJSON(w, status, errorResponse{Error: info})
}
