package dto

import (
	"encoding/json"
	"time"

	"github.com/iho/tripledger/internal/domain"
)

// PushRequest is one record version pushed by a device.
type PushRequest struct {
	Kind         string          `json:"kind"`
	ID           string          `json:"id"`
	TripID       string          `json:"trip_id"`
	LastModified time.Time       `json:"last_modified"`
	Deleted      bool            `json:"deleted,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

// ToDomain converts the request into a sync record.
func (r *PushRequest) ToDomain() (domain.SyncRecord, error) {
	kind, err := domain.ParseRecordKind(r.Kind)
	if err != nil {
		return domain.SyncRecord{}, err
	}

	rec := domain.SyncRecord{
		Kind:         kind,
		ID:           r.ID,
		TripID:       r.TripID,
		LastModified: domain.Timestamp(r.LastModified),
		Deleted:      r.Deleted,
	}
	if !r.Deleted {
		rec.Payload = r.Payload
	}

	return rec, rec.Validate()
}

// PushRequestFromDomain converts a sync record into a push request.
func PushRequestFromDomain(rec domain.SyncRecord) *PushRequest {
	return &PushRequest{
		Kind:         string(rec.Kind),
		ID:           rec.ID,
		TripID:       rec.TripID,
		LastModified: rec.LastModified,
		Deleted:      rec.Deleted,
		Payload:      rec.Payload,
	}
}
