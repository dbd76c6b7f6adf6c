package subrecord

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ehr/eyeexam/internal/domain/examination"
)

// Shape is how a kind lays out its payload.
type Shape string

const (
	ShapeFlat      Shape = "flat"
	ShapeEyePair   Shape = "eye_pair"
	ShapeComposite Shape = "composite"
)

// Envelope is the list-response wrapper a backend uses for a kind.
type Envelope int

const (
	// EnvelopeFlat is {data: [...], pagination: {...}}.
	EnvelopeFlat Envelope = iota
	// EnvelopeNested is {data: {data: [...], pagination: {...}}}.
	EnvelopeNested
)

// Composite is a nested object whose "value" lands on Key and whose other
// members land on Key_<part>, e.g. {eom: {value, gaze, eye}}.
type Composite struct {
	Key   string
	Parts []string
}

// Kind describes one sub-record collection.
type Kind struct {
	Name  string
	Path  string
	Label string
	Shape Shape

	// Keys are flat payload keys, stored as-is.
	Keys []string
	// EyeFields are field bases stored as {od:{value,other}, os:{value,other}}.
	EyeFields []string
	// Composites are nested objects flattened into snapshot keys.
	Composites []Composite

	// Required lists keys of the flat view that must be non-blank.
	Required []string
	Envelope Envelope
}

func acuityKeys() []string {
	var out []string
	for _, dist := range []string{"distance", "near"} {
		for _, m := range examination.AcuityMeasures {
			out = append(out, dist+"_od_"+m, dist+"_os_"+m)
		}
	}
	for _, part := range []string{"size", "reaction", "rapd"} {
		out = append(out, "pupil_od_"+part, "pupil_os_"+part)
	}
	return out
}

func eyeKeys(bases ...string) []string {
	out := make([]string, 0, len(bases)*2)
	for _, b := range bases {
		out = append(out, b+"_od", b+"_os")
	}
	return out
}

var (
	anteriorFields  = []string{"lids", "conjunctiva", "cornea", "anterior_chamber", "iris", "lens"}
	posteriorFields = []string{"vitreous", "optic_disc", "cup_disc_ratio", "macula", "vessels", "periphery"}
)

var (
	Complaint = &Kind{
		Name:     "complaint",
		Path:     "/complaints",
		Label:    "Complaint",
		Shape:    ShapeFlat,
		Keys:     []string{"chief_complaint", "complaint_duration"},
		Required: []string{"chief_complaint"},
	}
	MedicalHistory = &Kind{
		Name:  "medical_history",
		Path:  "/medical-histories",
		Label: "Medical History",
		Shape: ShapeFlat,
		Keys:  []string{"systemic_conditions", "allergies", "current_medications", "family_history", "diabetic", "hypertensive"},
	}
	OcularHistory = &Kind{
		Name:  "ocular_history",
		Path:  "/ocular-histories",
		Label: "Ocular History",
		Shape: ShapeFlat,
		Keys:  []string{"previous_ocular_surgery", "ocular_trauma", "spectacle_use", "contact_lens_use", "ocular_history_notes"},
	}
	VitalSigns = &Kind{
		Name:     "vital_signs",
		Path:     "/vital-signs",
		Label:    "Vital Signs",
		Shape:    ShapeFlat,
		Keys:     []string{"blood_pressure", "pulse_rate", "respiratory_rate", "temperature", "blood_glucose"},
		Required: []string{"blood_pressure", "pulse_rate"},
	}
	VisualAcuity = &Kind{
		Name:     "visual_acuity",
		Path:     "/visual-acuities",
		Label:    "Visual Acuity",
		Shape:    ShapeFlat,
		Keys:     acuityKeys(),
		Required: acuityKeys(),
	}
	OcularMotility = &Kind{
		Name:  "ocular_motility",
		Path:  "/ocular-motilities",
		Label: "Ocular Motility",
		Shape: ShapeComposite,
		Keys: []string{
			"nystagmus",
			"cover_test_distance", "cover_test_near", "hirschberg", "prism_cover_test",
			"stereopsis_test", "stereopsis_result",
		},
		Composites: []Composite{{Key: "eom", Parts: []string{"gaze", "eye"}}},
		Required:   []string{"eom"},
	}
	IntraocularPressure = &Kind{
		Name:     "intraocular_pressure",
		Path:     "/intraocular-pressures",
		Label:    "Intraocular Pressure",
		Shape:    ShapeFlat,
		Keys:     []string{"iop_od", "iop_os", "cct_od", "cct_os", "iop_method", "iop_time"},
		Required: []string{"iop_od", "iop_os", "iop_method"},
	}
	AdnexaExamination = &Kind{
		Name:      "adnexa_examination",
		Path:      "/adnexa-examinations",
		Label:     "Adnexa Examination",
		Shape:     ShapeEyePair,
		EyeFields: anteriorFields,
		Required:  eyeKeys(anteriorFields...),
	}
	Dilation = &Kind{
		Name:     "dilation",
		Path:     "/dilations",
		Label:    "Dilation",
		Shape:    ShapeFlat,
		Keys:     []string{"dilated", "dilation_drops", "dilation_time"},
		Required: []string{"dilated"},
	}
	PosteriorSegment = &Kind{
		Name:      "posterior_segment",
		Path:      "/posterior-segment-examinations",
		Label:     "Posterior Segment",
		Shape:     ShapeEyePair,
		EyeFields: posteriorFields,
		Required:  []string{"optic_disc_od", "optic_disc_os"},
	}
	InitialImpression = &Kind{
		Name:     "initial_impression",
		Path:     "/initial-impressions",
		Label:    "Initial Impression",
		Shape:    ShapeFlat,
		Keys:     []string{"primary_diagnosis", "secondary_diagnoses", "management_plan", "follow_up"},
		Required: []string{"primary_diagnosis"},
	}
)

var kinds = []*Kind{
	Complaint, MedicalHistory, OcularHistory, VitalSigns, VisualAcuity, OcularMotility,
	IntraocularPressure, AdnexaExamination, Dilation, PosteriorSegment, InitialImpression,
}

// Kinds returns every registered kind in report order.
func Kinds() []*Kind {
	out := make([]*Kind, len(kinds))
	copy(out, kinds)
	return out
}

// KindByName looks a kind up by its name.
func KindByName(name string) (*Kind, bool) {
	for _, k := range kinds {
		if k.Name == name {
			return k, true
		}
	}
	return nil, false
}

// SnapshotKeys lists the vocabulary keys this kind contributes.
func (k *Kind) SnapshotKeys() []string {
	out := append([]string{}, k.Keys...)
	out = append(out, eyeKeys(k.EyeFields...)...)
	for _, c := range k.Composites {
		out = append(out, c.Key)
		for _, p := range c.Parts {
			out = append(out, c.Key+"_"+p)
		}
	}
	return out
}

// Flat projects a stored payload onto snapshot keys. Eye-pair fields add
// their "<key>_other" companions next to the eye keys.
func (k *Kind) Flat(p Payload) map[string]any {
	out := make(map[string]any, len(k.Keys)+len(k.EyeFields)*4)
	for _, key := range k.Keys {
		if v, ok := p[key]; ok {
			out[key] = v
		}
	}
	if len(k.EyeFields) > 0 {
		flat := examination.Flatten(examination.EyePairsFromPayload(p, k.EyeFields), k.EyeFields)
		for key, v := range flat {
			out[key] = v
		}
	}
	for _, c := range k.Composites {
		switch v := p[c.Key].(type) {
		case map[string]any:
			out[c.Key] = v["value"]
			for _, part := range c.Parts {
				out[c.Key+"_"+part] = v[part]
			}
			continue
		case nil:
		default:
			out[c.Key] = v
		}
		for _, part := range c.Parts {
			if pv, ok := p[c.Key+"_"+part]; ok {
				out[c.Key+"_"+part] = pv
			}
		}
	}
	return out
}

// Canonical keeps the payload keys this kind owns, in stored form. Eye-pair
// fields sent flat are nested; composites sent flat are folded.
func (k *Kind) Canonical(p Payload) Payload {
	out := make(Payload, len(k.Keys)+len(k.EyeFields)+len(k.Composites))
	for _, key := range k.Keys {
		if v, ok := p[key]; ok {
			out[key] = v
		}
	}
	if len(k.EyeFields) > 0 {
		for key, v := range examination.EyePairsFromPayload(p, k.EyeFields).Payload() {
			out[key] = v
		}
	}
	flat := k.Flat(p)
	for _, c := range k.Composites {
		obj := map[string]any{"value": flat[c.Key]}
		set := flat[c.Key] != nil
		for _, part := range c.Parts {
			obj[part] = flat[c.Key+"_"+part]
			set = set || obj[part] != nil
		}
		if set {
			out[c.Key] = obj
		}
	}
	return out
}

// Merge applies a partial patch over a stored payload. A null member clears
// the key. Eye-pair and composite members may be patched one flat key at a
// time; a nested object replaces the whole field.
func (k *Kind) Merge(stored, patch Payload) Payload {
	merged := k.Canonical(stored)
	for _, key := range k.Keys {
		if v, ok := patch[key]; ok {
			if v == nil {
				delete(merged, key)
				continue
			}
			merged[key] = v
		}
	}

	if len(k.EyeFields) > 0 {
		pairs := examination.EyePairsFromPayload(merged, k.EyeFields)
		flat := examination.Flatten(pairs, k.EyeFields)
		for _, base := range k.EyeFields {
			if nested, ok := patch[base].(map[string]any); ok {
				for key, v := range examination.Flatten(examination.EyePairsFromPayload(Payload{base: nested}, []string{base}), []string{base}) {
					flat[key] = v
				}
				continue
			}
			for _, key := range examination.FlatKeys([]string{base}) {
				if v, ok := patch[key]; ok {
					flat[key] = asString(v)
				}
			}
		}
		for key, v := range examination.Nest(flat, k.EyeFields).Payload() {
			merged[key] = v
		}
	}

	if len(k.Composites) > 0 {
		view := k.Flat(merged)
		for _, c := range k.Composites {
			if obj, ok := patch[c.Key].(map[string]any); ok {
				view[c.Key] = obj["value"]
				for _, part := range c.Parts {
					view[c.Key+"_"+part] = obj[part]
				}
			} else if v, ok := patch[c.Key]; ok {
				view[c.Key] = v
			}
			for _, part := range c.Parts {
				if v, ok := patch[c.Key+"_"+part]; ok {
					view[c.Key+"_"+part] = v
				}
			}
			obj := map[string]any{"value": view[c.Key]}
			for _, part := range c.Parts {
				obj[part] = view[c.Key+"_"+part]
			}
			merged[c.Key] = obj
		}
	}
	return merged
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	}
	return fmt.Sprint(v)
}

// Validate reports every required key that is blank in p's flat view.
func (k *Kind) Validate(p Payload) error {
	flat := k.Flat(p)
	var missing []string
	for _, key := range k.Required {
		if isBlank(flat[key]) {
			missing = append(missing, key)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &examination.ValidationError{Kind: k.Name, Fields: missing}
}

func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case map[string]any:
		return isBlank(t["value"])
	}
	return false
}

// EyePairKinds returns the kinds whose payload is edited through the flat form.
func EyePairKinds() []*Kind {
	var out []*Kind
	for _, k := range kinds {
		if len(k.EyeFields) > 0 {
			out = append(out, k)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
