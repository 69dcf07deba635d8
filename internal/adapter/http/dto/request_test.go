package dto

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/iho/tripledger/internal/domain"
)

func TestPushRequest_ToDomain(t *testing.T) {
	at := time.Date(2024, 7, 1, 10, 0, 0, 123456789, time.FixedZone("CEST", 2*3600))

	tests := []struct {
		name      string
		request   *PushRequest
		errorType error
	}{
		{
			name: "member version",
			request: &PushRequest{
				Kind: "member", ID: "m1", TripID: "trip", LastModified: at,
				Payload: json.RawMessage(`{"display_name":"Ana"}`),
			},
		},
		{
			name:    "deletion drops payload",
			request: &PushRequest{Kind: "expense", ID: "e1", TripID: "trip", LastModified: at, Deleted: true, Payload: json.RawMessage(`{}`)},
		},
		{
			name:      "unknown kind",
			request:   &PushRequest{Kind: "wallet", ID: "w1", TripID: "trip", LastModified: at},
			errorType: domain.ErrInvalidRecordKind,
		},
		{
			name:      "missing payload",
			request:   &PushRequest{Kind: "member", ID: "m1", TripID: "trip", LastModified: at},
			errorType: domain.ErrInvalidRecord,
		},
		{
			name:      "missing timestamp",
			request:   &PushRequest{Kind: "member", ID: "m1", TripID: "trip", Payload: json.RawMessage(`{}`)},
			errorType: domain.ErrInvalidRecord,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := tt.request.ToDomain()
			if tt.errorType != nil {
				if !errors.Is(err, tt.errorType) {
					t.Fatalf("expected %v, got %v", tt.errorType, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.LastModified.Location() != time.UTC || rec.LastModified.Nanosecond() != 123456000 {
				t.Errorf("timestamp not normalized: %v", rec.LastModified)
			}
			if rec.Deleted && rec.Payload != nil {
				t.Errorf("deletion should carry no payload, got %s", rec.Payload)
			}
		})
	}
}

func TestPushRequestFromDomain(t *testing.T) {
	rec := domain.SyncRecord{Kind: domain.KindTrip, ID: "t1", TripID: "t1", LastModified: time.Unix(100, 0).UTC(), Payload: json.RawMessage(`{"name":"Lisbon"}`)}

	got, err := PushRequestFromDomain(rec).ToDomain()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Kind != rec.Kind || got.ID != rec.ID || !got.LastModified.Equal(rec.LastModified) || string(got.Payload) != string(rec.Payload) {
		t.Fatalf("ToDomain() = %+v, want %+v", got, rec)
	}
}
