package subrecord

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestRecord_JSONFlattensPayload(t *testing.T) {
	rec := &Record{
		ID:        uuid.New(),
		VisitID:   uuid.New(),
		Kind:      "dilation",
		CreatedBy: "tech.1",
		CreatedAt: time.Date(2024, 2, 2, 8, 0, 0, 0, time.UTC),
		Payload:   Payload{"dilated": true, "dilation_drops": "Tropicamide 1%", "id": "spoofed"},
	}
	b, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var wire map[string]interface{}
	json.Unmarshal(b, &wire)
	if wire["id"] != rec.ID.String() {
		t.Errorf("payload overrode id: %v", wire["id"])
	}
	if wire["dilated"] != true || wire["dilation_drops"] != "Tropicamide 1%" {
		t.Errorf("payload not flattened: %v", wire)
	}

	var back Record
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.ID != rec.ID || back.VisitID != rec.VisitID || !back.CreatedAt.Equal(rec.CreatedAt) {
		t.Errorf("metadata lost: %+v", back)
	}
	if _, ok := back.Payload["id"]; ok {
		t.Error("metadata key leaked into payload")
	}
	if back.Payload["dilated"] != true {
		t.Errorf("payload lost: %v", back.Payload)
	}
}

func TestRecord_UnmarshalConsultationAlias(t *testing.T) {
	visit := uuid.New()
	var rec Record
	err := json.Unmarshal([]byte(`{"consultation_id":"`+visit.String()+`","created_at":"2024-01-05","created_by":42}`), &rec)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec.VisitID != visit {
		t.Errorf("expected consultation_id alias, got %v", rec.VisitID)
	}
	if rec.CreatedBy != "42" || rec.CreatedAt.IsZero() {
		t.Errorf("unexpected metadata: %+v", rec)
	}
	if err := json.Unmarshal([]byte(`{"id":"not-a-uuid"}`), &rec); err == nil {
		t.Error("expected error for malformed id")
	}
}

func TestLatest_TieBreakOnID(t *testing.T) {
	at := time.Date(2024, 4, 4, 10, 0, 0, 0, time.UTC)
	low := &Record{ID: uuid.MustParse("00000000-0000-0000-0000-000000000001"), CreatedAt: at}
	high := &Record{ID: uuid.MustParse("ffffffff-0000-0000-0000-000000000000"), CreatedAt: at}
	older := &Record{ID: uuid.MustParse("ffffffff-ffff-ffff-ffff-ffffffffffff"), CreatedAt: at.Add(-time.Hour)}

	if got := Latest([]*Record{low, older, high}); got != high {
		t.Errorf("expected highest id on equal timestamps, got %v", got.ID)
	}
	if got := Latest([]*Record{high, low}); got != high {
		t.Error("result must not depend on input order")
	}
	if Latest(nil) != nil {
		t.Error("expected nil for no records")
	}
}
