package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/punchamoorthee/railbridge/internal/domain"
	"github.com/punchamoorthee/railbridge/internal/fundsource"
	"github.com/punchamoorthee/railbridge/internal/rail"
	"github.com/punchamoorthee/railbridge/internal/service"
)

// Metrics
var (
	httpReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "railbridge_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "railbridge_http_request_duration_seconds",
		Help:    "Request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"method", "endpoint"})
)

type Handler struct {
	orchestrator *service.Orchestrator
}

func NewHandler(o *service.Orchestrator) *Handler {
	return &Handler{orchestrator: o}
}

// Routes mounts the v1 API on r.
func (h *Handler) Routes(r *mux.Router) {
	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/transfers", h.CreateTransfer).Methods("POST")
	v1.HandleFunc("/banks/{id}", h.GetBank).Methods("GET")
	v1.HandleFunc("/banks/{id}/entries", h.GetBankEntries).Methods("GET")
	v1.HandleFunc("/banks/{id}/entries/categories", h.GetBankCategories).Methods("GET")
}

func (h *Handler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("POST", "/transfers"))
	defer timer.ObserveDuration()

	var req domain.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "POST", "/transfers")
		return
	}

	result, err := h.orchestrator.InitiateTransfer(r.Context(), req)
	if err != nil {
		h.respondTransferError(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, result, "POST", "/transfers")
}

// respondTransferError maps the orchestrator's error taxonomy onto HTTP.
// Every terminal outcome carries enough detail to tell the user which
// side failed and whether money has already moved.
func (h *Handler) respondTransferError(w http.ResponseWriter, err error) {
	var (
		validation    *fundsource.ValidationError
		rejected      *rail.RejectedError
		indeterminate *rail.IndeterminateError
		recording     *service.RecordingFailedError
	)
	switch {
	case errors.As(err, &validation):
		h.respondJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":  "validation_rejected",
			"side":   validation.Side,
			"detail": validation.Reason,
		}, "POST", "/transfers")
	case errors.As(err, &rejected):
		h.respondJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":  "rail_rejected",
			"kind":   rejected.Kind,
			"detail": rejected.Detail,
		}, "POST", "/transfers")
	case errors.As(err, &indeterminate):
		// Money may have moved. The caller must reconcile against the
		// rail before any resubmission.
		h.respondJSON(w, http.StatusBadGateway, map[string]string{
			"error":  "indeterminate",
			"detail": indeterminate.Detail,
			"retry":  "do-not-retry",
		}, "POST", "/transfers")
	case errors.As(err, &recording):
		// Funds moved with no local record: urgent, never hidden behind
		// a generic 500 body.
		h.respondJSON(w, http.StatusInternalServerError, map[string]string{
			"error":         "recording_failed",
			"rail_location": recording.RailLocation,
			"detail":        "transfer committed on the rail but not recorded locally",
		}, "POST", "/transfers")
	default:
		h.respondError(w, http.StatusInternalServerError, "Internal Server Error", "POST", "/transfers")
	}
}

func (h *Handler) GetBank(w http.ResponseWriter, r *http.Request) {
	id, ok := h.bankID(w, r, "/banks/{id}")
	if !ok {
		return
	}
	bank, err := h.orchestrator.GetBank(r.Context(), id)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error(), "GET", "/banks/{id}")
		return
	}
	if bank == nil {
		h.respondError(w, http.StatusNotFound, "Bank not found", "GET", "/banks/{id}")
		return
	}
	h.respondJSON(w, http.StatusOK, bank, "GET", "/banks/{id}")
}

func (h *Handler) GetBankEntries(w http.ResponseWriter, r *http.Request) {
	id, ok := h.bankID(w, r, "/banks/{id}/entries")
	if !ok {
		return
	}
	page, err := h.orchestrator.ListByBankID(r.Context(), id)
	if err != nil {
		h.respondError(w, http.StatusServiceUnavailable, "Ledger stores unavailable", "GET", "/banks/{id}/entries")
		return
	}
	h.respondJSON(w, http.StatusOK, page, "GET", "/banks/{id}/entries")
}

// GetBankCategories serves the bucket view the reporting layer consumes.
func (h *Handler) GetBankCategories(w http.ResponseWriter, r *http.Request) {
	id, ok := h.bankID(w, r, "/banks/{id}/entries/categories")
	if !ok {
		return
	}
	page, err := h.orchestrator.ListByBankID(r.Context(), id)
	if err != nil {
		h.respondError(w, http.StatusServiceUnavailable, "Ledger stores unavailable", "GET", "/banks/{id}/entries/categories")
		return
	}
	h.respondJSON(w, http.StatusOK, domain.SummarizeCategories(page.Entries), "GET", "/banks/{id}/entries/categories")
}

func (h *Handler) bankID(w http.ResponseWriter, r *http.Request, endpoint string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid bank id", "GET", endpoint)
		return 0, false
	}
	return id, true
}

// Helpers
func (h *Handler) respondJSON(w http.ResponseWriter, code int, payload interface{}, method, endpoint string) {
	httpReqTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func (h *Handler) respondError(w http.ResponseWriter, code int, msg, method, endpoint string) {
	h.respondJSON(w, code, map[string]string{"error": msg}, method, endpoint)
}
