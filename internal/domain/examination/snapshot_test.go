package examination

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/google/uuid"
)

func TestNewSnapshot_EveryKeyPresent(t *testing.T) {
	s := NewSnapshot(uuid.New())
	for _, f := range Fields() {
		if !s.Has(f.Key) {
			t.Errorf("missing key %q", f.Key)
		}
		if !IsEmpty(s.Get(f.Key)) {
			t.Errorf("expected %q empty, got %#v", f.Key, s.Get(f.Key))
		}
		if f.Type == TypeList {
			if _, ok := s.Get(f.Key).([]string); !ok {
				t.Errorf("expected %q to be an empty list, got %#v", f.Key, s.Get(f.Key))
			}
		}
	}
}

func TestSnapshot_SetNormalizes(t *testing.T) {
	s := NewSnapshot(uuid.New())
	if s.Set("not_a_field", "x") {
		t.Error("expected unknown key to be rejected")
	}
	s.Set("diabetic", "yes")
	s.Set("allergies", []any{"Penicillin", " ", "Dust"})
	s.Set("chief_complaint", "<p>Blurred vision</p>")
	s.Set("pulse_rate", 72.0)
	s.Set("lids_od", map[string]any{"value": "Other", "other": "Stye"})
	s.Set("distance_od_ucva", "  ")

	if s.Get("diabetic") != true {
		t.Errorf("diabetic = %#v", s.Get("diabetic"))
	}
	if !reflect.DeepEqual(s.Get("allergies"), []string{"Penicillin", "Dust"}) {
		t.Errorf("allergies = %#v", s.Get("allergies"))
	}
	if s.Get("chief_complaint") != SafeMarkup("<p>Blurred vision</p>") {
		t.Errorf("chief_complaint = %#v", s.Get("chief_complaint"))
	}
	if s.Get("pulse_rate") != "72" {
		t.Errorf("pulse_rate = %#v", s.Get("pulse_rate"))
	}
	if s.Get("lids_od") != Other("Stye") {
		t.Errorf("lids_od = %#v", s.Get("lids_od"))
	}
	if s.Get("distance_od_ucva") != nil {
		t.Errorf("expected blank acuity to normalize to nil, got %#v", s.Get("distance_od_ucva"))
	}
}

func TestSnapshot_MergePairsCompanions(t *testing.T) {
	s := NewSnapshot(uuid.New())
	s.Merge(map[string]any{
		"lids_od":       "Normal",
		"lids_od_other": "should be ignored",
		"lids_os":       "Other",
		"lids_os_other": "Chalazion",
		"unknown":       "x",
	})
	if s.Get("lids_od") != Enumerated("Normal") {
		t.Errorf("lids_od = %#v", s.Get("lids_od"))
	}
	if s.Get("lids_os") != Other("Chalazion") {
		t.Errorf("lids_os = %#v", s.Get("lids_os"))
	}
}

func TestSnapshot_MergeReadsPairObjects(t *testing.T) {
	s := NewSnapshot(uuid.New())
	s.Merge(map[string]any{
		"cornea_od": map[string]any{"value": "Other", "other": "scar"},
		"cornea_os": map[string]any{"value": "Clear", "other": "ignored"},
	})
	if s.Get("cornea_od") != Other("scar") {
		t.Errorf("cornea_od = %#v", s.Get("cornea_od"))
	}
	if s.Get("cornea_os") != Enumerated("Clear") {
		t.Errorf("cornea_os = %#v", s.Get("cornea_os"))
	}
}

func TestSnapshot_JSONRoundTrip(t *testing.T) {
	s := NewSnapshot(uuid.New())
	s.Set("distance_od_ucva", "6/6")
	s.Set("lids_os", Other("Chalazion"))
	s.Set("allergies", []string{"Latex"})
	s.Set("dilated", false)
	s.MarkMissing("dilation")

	b, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Snapshot
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.VisitID != s.VisitID {
		t.Errorf("visit id lost")
	}
	if !reflect.DeepEqual(back.Values(), s.Values()) {
		t.Errorf("values differ after round trip:\n got %#v\nwant %#v", back.Values(), s.Values())
	}
	if len(back.Missing) != 1 || back.Missing[0] != "dilation" {
		t.Errorf("missing kinds = %v", back.Missing)
	}
}

func TestPartialAggregationError(t *testing.T) {
	cause := errors.New("boom")
	e := &PartialAggregationError{}
	e.Add("dilation", cause)
	e.Add("complaint", cause)
	e.Add("dilation", cause)

	if !reflect.DeepEqual(e.Kinds, []string{"complaint", "dilation"}) {
		t.Errorf("kinds = %v", e.Kinds)
	}
	if !errors.Is(e, cause) {
		t.Error("expected errors.Is to reach the cause")
	}
}

func TestErrorHelpers(t *testing.T) {
	var err error = &ValidationError{Kind: "visual_acuity", Fields: []string{"near_os_bcva"}}
	if !IsValidation(err) || IsNotFound(err) {
		t.Error("validation error misclassified")
	}
	if err.Error() != "visual_acuity: missing required field(s): near_os_bcva" {
		t.Errorf("unexpected message %q", err.Error())
	}
	err = &NotFoundError{Kind: "complaint", ID: "x"}
	if !IsNotFound(err) {
		t.Error("not found error misclassified")
	}
}
