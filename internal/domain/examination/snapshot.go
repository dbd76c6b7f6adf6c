package examination

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Snapshot is the point-in-time composite of a visit's latest sub-records.
// Every known field key is always present: nil for absent scalars, an empty
// list for list fields.
type Snapshot struct {
	VisitID     uuid.UUID
	GeneratedAt time.Time
	// Sources maps a sub-record kind to the record id it contributed.
	Sources map[string]uuid.UUID
	// Missing lists kinds that could not be fetched.
	Missing []string

	values map[string]any
}

// NewSnapshot returns a snapshot with every field key present and empty.
func NewSnapshot(visitID uuid.UUID) *Snapshot {
	s := &Snapshot{
		VisitID:     visitID,
		GeneratedAt: time.Now().UTC(),
		Sources:     map[string]uuid.UUID{},
		values:      make(map[string]any, len(fieldOrder)),
	}
	for _, f := range fieldOrder {
		s.values[f.Key] = Normalize(f, nil)
	}
	return s
}

// Set normalizes raw into key. Unknown keys are ignored and report false.
func (s *Snapshot) Set(key string, raw any) bool {
	f, ok := fieldIndex[key]
	if !ok {
		return false
	}
	s.values[key] = Normalize(f, raw)
	return true
}

// Get returns the normalized value of key.
func (s *Snapshot) Get(key string) any {
	return s.values[key]
}

// Has reports whether key is a known field of the snapshot.
func (s *Snapshot) Has(key string) bool {
	_, ok := s.values[key]
	return ok
}

// Values returns a copy of every key/value pair.
func (s *Snapshot) Values() map[string]any {
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Merge applies a flat view of a sub-record. Other-capable fields pick up
// their "<key>_other" companion from the same view, or read a {value, other}
// object in place. Keys the flat view does
// not carry keep their current value.
func (s *Snapshot) Merge(flat map[string]any) {
	for key, raw := range flat {
		f, ok := fieldIndex[key]
		if !ok {
			continue
		}
		if f.OtherCapable {
			if _, typed := raw.(EyeValue); !typed {
				raw = flatEntry(flat, key)
			}
		}
		s.values[key] = Normalize(f, raw)
	}
}

// MarkMissing records kinds that could not be fetched.
func (s *Snapshot) MarkMissing(kinds ...string) {
	s.Missing = append(s.Missing, kinds...)
	sort.Strings(s.Missing)
}

type snapshotJSON struct {
	VisitID      uuid.UUID            `json:"visit_id"`
	GeneratedAt  time.Time            `json:"generated_at"`
	Values       map[string]any       `json:"values"`
	Sources      map[string]uuid.UUID `json:"sources,omitempty"`
	MissingKinds []string             `json:"missing_kinds"`
}

func (s *Snapshot) MarshalJSON() ([]byte, error) {
	missing := s.Missing
	if missing == nil {
		missing = []string{}
	}
	return json.Marshal(snapshotJSON{
		VisitID:      s.VisitID,
		GeneratedAt:  s.GeneratedAt,
		Values:       s.values,
		Sources:      s.Sources,
		MissingKinds: missing,
	})
}

// UnmarshalJSON accepts the consolidated shape, normalizing every value
// through the vocabulary. Keys absent from the payload stay empty.
func (s *Snapshot) UnmarshalJSON(b []byte) error {
	var raw snapshotJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	fresh := NewSnapshot(raw.VisitID)
	if !raw.GeneratedAt.IsZero() {
		fresh.GeneratedAt = raw.GeneratedAt
	}
	if raw.Sources != nil {
		fresh.Sources = raw.Sources
	}
	for k, v := range raw.Values {
		fresh.Set(k, v)
	}
	fresh.Missing = raw.MissingKinds
	*s = *fresh
	return nil
}
