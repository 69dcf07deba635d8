package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/tripledger/internal/adapter/http/dto"
	"github.com/iho/tripledger/internal/domain"
	"github.com/iho/tripledger/internal/infrastructure/metrics"
)

const maxPushBodyBytes = 1 << 20

// SyncService is the remote ledger as served over HTTP.
type SyncService interface {
	Push(ctx context.Context, record domain.SyncRecord) (domain.PushOutcome, error)
	PullPage(ctx context.Context, tripID, cursor string, limit int) (*domain.PullResult, error)
}

// SyncHandler handles device push and pull requests.
type SyncHandler struct {
	service SyncService
	metrics *metrics.Metrics
}

// NewSyncHandler creates a new SyncHandler. m may be nil.
func NewSyncHandler(service SyncService, m *metrics.Metrics) *SyncHandler {
	return &SyncHandler{service: service, metrics: m}
}

// Push handles POST /api/v1/sync/push.
func (h *SyncHandler) Push(w http.ResponseWriter, r *http.Request) {
	var req dto.PushRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPushBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	rec, err := req.ToDomain()
	if err != nil {
		h.observePush(domain.RecordKind(req.Kind), domain.PushOutcome{}, err)
		writeDomainError(w, err)
		return
	}

	out, err := h.service.Push(r.Context(), rec)
	h.observePush(rec.Kind, out, err)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.PushFromDomain(out))
}

// Changes handles GET /api/v1/sync/trips/{tripID}/changes.
func (h *SyncHandler) Changes(w http.ResponseWriter, r *http.Request) {
	tripID := chi.URLParam(r, "tripID")
	since := r.URL.Query().Get("since")
	limit := parseIntQuery(r, "limit", 0)

	res, err := h.service.PullPage(r.Context(), tripID, since, limit)
	if h.metrics != nil {
		h.metrics.ObservePull(res, err)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.PullFromDomain(res))
}

func (h *SyncHandler) observePush(kind domain.RecordKind, out domain.PushOutcome, err error) {
	if h.metrics != nil {
		h.metrics.ObservePush(kind, out, err)
	}
}
