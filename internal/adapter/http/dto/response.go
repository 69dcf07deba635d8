package dto

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/iho/tripledger/internal/domain"
)

// RecordResponse represents a stored record version in API responses.
type RecordResponse struct {
	Kind         string          `json:"kind"`
	ID           string          `json:"id"`
	TripID       string          `json:"trip_id"`
	LastModified time.Time       `json:"last_modified"`
	Deleted      bool            `json:"deleted,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

// RecordFromDomain converts a sync record to response.
func RecordFromDomain(rec domain.SyncRecord) RecordResponse {
	return RecordResponse{
		Kind:         string(rec.Kind),
		ID:           rec.ID,
		TripID:       rec.TripID,
		LastModified: rec.LastModified,
		Deleted:      rec.Deleted,
		Payload:      rec.Payload,
	}
}

// ToDomain converts the response back into a sync record.
func (r RecordResponse) ToDomain() (domain.SyncRecord, error) {
	kind, err := domain.ParseRecordKind(r.Kind)
	if err != nil {
		return domain.SyncRecord{}, err
	}

	return domain.SyncRecord{
		Kind:         kind,
		ID:           r.ID,
		TripID:       r.TripID,
		LastModified: domain.Timestamp(r.LastModified),
		Deleted:      r.Deleted,
		Payload:      r.Payload,
	}, nil
}

// DeleteMarkerResponse represents a deletion in API responses.
type DeleteMarkerResponse struct {
	Kind      string    `json:"kind"`
	ID        string    `json:"id"`
	TripID    string    `json:"trip_id"`
	DeletedAt time.Time `json:"deleted_at"`
}

// PushResponse is the verdict on a pushed record.
type PushResponse struct {
	Status  string          `json:"status"`
	Current *RecordResponse `json:"current,omitempty"`
}

// PushFromDomain converts a push outcome to response.
func PushFromDomain(out domain.PushOutcome) *PushResponse {
	resp := &PushResponse{Status: string(out.Status)}
	if out.Current != nil {
		cur := RecordFromDomain(*out.Current)
		resp.Current = &cur
	}
	return resp
}

// ToDomain converts the response back into a push outcome.
func (r *PushResponse) ToDomain() (domain.PushOutcome, error) {
	status := domain.PushStatus(r.Status)
	switch status {
	case domain.PushApplied, domain.PushStale, domain.PushDeleted:
	default:
		return domain.PushOutcome{}, fmt.Errorf("unknown push status %q", r.Status)
	}

	out := domain.PushOutcome{Status: status}
	if r.Current != nil {
		cur, err := r.Current.ToDomain()
		if err != nil {
			return domain.PushOutcome{}, err
		}
		out.Current = &cur
	}
	if status == domain.PushStale && out.Current == nil {
		return domain.PushOutcome{}, fmt.Errorf("stale push without current record")
	}

	return out, nil
}

// PullResponse is one page of changes after a cursor.
type PullResponse struct {
	Records       []RecordResponse       `json:"records"`
	DeleteMarkers []DeleteMarkerResponse `json:"delete_markers"`
	Cursor        string                 `json:"cursor"`
	HasMore       bool                   `json:"has_more"`
}

// PullFromDomain converts a pull page to response.
func PullFromDomain(res *domain.PullResult) *PullResponse {
	resp := &PullResponse{
		Records:       make([]RecordResponse, len(res.Records)),
		DeleteMarkers: make([]DeleteMarkerResponse, len(res.DeleteMarkers)),
		Cursor:        res.Cursor,
		HasMore:       res.HasMore,
	}
	for i, rec := range res.Records {
		resp.Records[i] = RecordFromDomain(rec)
	}
	for i, m := range res.DeleteMarkers {
		resp.DeleteMarkers[i] = DeleteMarkerResponse{
			Kind:      string(m.Kind),
			ID:        m.ID,
			TripID:    m.TripID,
			DeletedAt: m.DeletedAt,
		}
	}
	return resp
}

// ToDomain converts the response back into a pull page.
func (r *PullResponse) ToDomain() (*domain.PullResult, error) {
	res := &domain.PullResult{
		Records:       make([]domain.SyncRecord, 0, len(r.Records)),
		DeleteMarkers: make([]domain.DeleteMarker, 0, len(r.DeleteMarkers)),
		Cursor:        r.Cursor,
		HasMore:       r.HasMore,
	}
	for _, rr := range r.Records {
		rec, err := rr.ToDomain()
		if err != nil {
			return nil, err
		}
		res.Records = append(res.Records, rec)
	}
	for _, m := range r.DeleteMarkers {
		kind, err := domain.ParseRecordKind(m.Kind)
		if err != nil {
			return nil, err
		}
		res.DeleteMarkers = append(res.DeleteMarkers, domain.DeleteMarker{
			Kind:      kind,
			ID:        m.ID,
			TripID:    m.TripID,
			DeletedAt: domain.Timestamp(m.DeletedAt),
		})
	}
	return res, nil
}

// ErrorResponse represents an error in API responses. Code carries the
// error category so clients can classify the failure.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}
