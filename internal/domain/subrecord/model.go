package subrecord

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Payload is a kind-specific record body as decoded from JSON.
type Payload map[string]any

// Clone returns a shallow copy so callers' maps are never mutated.
func (p Payload) Clone() Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Record is one stored sub-record. On the wire the payload members sit next
// to the metadata fields.
type Record struct {
	ID        uuid.UUID
	VisitID   uuid.UUID
	Kind      string
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
	Payload   Payload
}

var metaKeys = map[string]bool{
	"id": true, "visit_id": true, "consultation_id": true, "kind": true,
	"created_by": true, "created_at": true, "updated_at": true,
}

func (r *Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Payload)+6)
	for k, v := range r.Payload {
		if !metaKeys[k] {
			out[k] = v
		}
	}
	out["id"] = r.ID
	out["visit_id"] = r.VisitID
	out["kind"] = r.Kind
	out["created_by"] = r.CreatedBy
	out["created_at"] = r.CreatedAt
	out["updated_at"] = r.UpdatedAt
	return json.Marshal(out)
}

// UnmarshalJSON accepts consultation_id as an alias of visit_id and a few
// common timestamp layouts.
func (r *Record) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	rec := Record{Payload: Payload{}}
	var err error
	if rec.ID, err = optionalUUID(raw["id"]); err != nil {
		return fmt.Errorf("decode record id: %w", err)
	}
	visit := raw["visit_id"]
	if visit == nil {
		visit = raw["consultation_id"]
	}
	if rec.VisitID, err = optionalUUID(visit); err != nil {
		return fmt.Errorf("decode record visit_id: %w", err)
	}
	rec.Kind, _ = raw["kind"].(string)
	rec.CreatedBy = fmt.Sprint(valueOr(raw["created_by"], ""))
	rec.CreatedAt = parseTime(raw["created_at"])
	rec.UpdatedAt = parseTime(raw["updated_at"])
	for k, v := range raw {
		if !metaKeys[k] {
			rec.Payload[k] = v
		}
	}
	*r = rec
	return nil
}

func optionalUUID(v any) (uuid.UUID, error) {
	s, ok := v.(string)
	if !ok || s == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(s)
}

func valueOr(v, def any) any {
	if v == nil {
		return def
	}
	return v
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"}

func parseTime(v any) time.Time {
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// newer reports whether a sorts before b in (created_at DESC, id DESC) order.
func newer(a, b *Record) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	for i := range a.ID {
		if a.ID[i] != b.ID[i] {
			return a.ID[i] > b.ID[i]
		}
	}
	return false
}

// Latest returns the newest record by (created_at, id), or nil.
func Latest(records []*Record) *Record {
	var best *Record
	for _, r := range records {
		if r != nil && (best == nil || newer(r, best)) {
			best = r
		}
	}
	return best
}

// Page is one page of a kind's history for a visit.
type Page struct {
	Items    []*Record
	Page     int
	PerPage  int
	LastPage int
	Total    int
}

// ListQuery selects a page. Zero values take the defaults.
type ListQuery struct {
	Page    int
	PerPage int
	Search  string
}
