package dto

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/iho/tripledger/internal/domain"
)

func TestPushResponse_ToDomain(t *testing.T) {
	current := domain.SyncRecord{Kind: domain.KindMember, ID: "m1", TripID: "trip", LastModified: time.Unix(200, 0).UTC(), Payload: json.RawMessage(`{}`)}

	tests := []struct {
		name     string
		response *PushResponse
		wantErr  bool
	}{
		{name: "applied", response: PushFromDomain(domain.PushOutcome{Status: domain.PushApplied})},
		{name: "stale with current", response: PushFromDomain(domain.PushOutcome{Status: domain.PushStale, Current: &current})},
		{name: "deleted", response: PushFromDomain(domain.PushOutcome{Status: domain.PushDeleted})},
		{name: "stale without current", response: &PushResponse{Status: "STALE"}, wantErr: true},
		{name: "unknown status", response: &PushResponse{Status: "MAYBE"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := tt.response.ToDomain()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected an error, got %+v", out)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(out.Status) != tt.response.Status {
				t.Errorf("status = %s, want %s", out.Status, tt.response.Status)
			}
			if out.Status == domain.PushStale && !out.Current.LastModified.Equal(current.LastModified) {
				t.Errorf("current = %+v, want %+v", out.Current, current)
			}
		})
	}
}

func TestPullResponse_ToDomain(t *testing.T) {
	page := &domain.PullResult{
		Records: []domain.SyncRecord{
			{Kind: domain.KindExpense, ID: "e1", TripID: "trip", LastModified: time.Unix(300, 0).UTC(), Payload: json.RawMessage(`{"amount":"12.50"}`)},
		},
		DeleteMarkers: []domain.DeleteMarker{
			{Kind: domain.KindSettlement, ID: "s1", TripID: "trip", DeletedAt: time.Unix(310, 0).UTC()},
		},
		Cursor:  "42",
		HasMore: true,
	}

	raw, err := json.Marshal(PullFromDomain(page))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var resp PullResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	got, err := resp.ToDomain()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Cursor != "42" || !got.HasMore || len(got.Records) != 1 || len(got.DeleteMarkers) != 1 {
		t.Fatalf("unexpected page: %+v", got)
	}
	if got.DeleteMarkers[0].Kind != domain.KindSettlement || !got.DeleteMarkers[0].DeletedAt.Equal(page.DeleteMarkers[0].DeletedAt) {
		t.Errorf("unexpected marker: %+v", got.DeleteMarkers[0])
	}

	resp.DeleteMarkers[0].Kind = "wallet"
	if _, err := resp.ToDomain(); !errors.Is(err, domain.ErrInvalidRecordKind) {
		t.Errorf("expected ErrInvalidRecordKind, got %v", err)
	}
}

func TestPullFromDomain_EmptyPageEncodesArrays(t *testing.T) {
	raw, err := json.Marshal(PullFromDomain(&domain.PullResult{Cursor: "7"}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"records":[],"delete_markers":[],"cursor":"7","has_more":false}`
	if string(raw) != want {
		t.Fatalf("got %s, want %s", raw, want)
	}
}
