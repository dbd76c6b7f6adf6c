// Package examination holds the clinical field vocabulary of an eye
// examination: the section table, field types, display-name rules, the
// eye-pair transform and the aggregated Snapshot shape every report is
// rendered from.
package examination

import (
	"strings"
)

// FieldType is the scalar kind a field holds.
type FieldType string

const (
	TypeText     FieldType = "text"
	TypeRichText FieldType = "rich_text"
	TypeEnum     FieldType = "enum"
	TypeNumeric  FieldType = "numeric"
	TypeBool     FieldType = "bool"
	TypeList     FieldType = "list"
)

// Eye identifies which eye an eye-scoped key belongs to.
type Eye string

const (
	EyeNone Eye = ""
	EyeOD   Eye = "od"
	EyeOS   Eye = "os"
)

// Style tags how a section is laid out by the renderers.
type Style string

const (
	StyleKeyValueGrid      Style = "keyValueGrid"
	StyleEyePairTable      Style = "eyePairTable"
	StyleVisualAcuityTable Style = "visualAcuityTable"
	StyleRichTextBlock     Style = "richTextBlock"
)

// Field is one named clinical field. OtherCapable fields hold an EyeValue.
type Field struct {
	Key          string    `json:"key"`
	Type         FieldType `json:"type"`
	OtherCapable bool      `json:"other_capable,omitempty"`
}

// Eye reports which eye the field is scoped to, if any.
func (f Field) Eye() Eye { return EyeOf(f.Key) }

// Section is a named, ordered group of field keys with a rendering style.
type Section struct {
	Name  string   `json:"name"`
	Style Style    `json:"style"`
	Keys  []string `json:"keys"`
}

type sectionDef struct {
	name   string
	style  Style
	fields []Field
}

func text(key string) Field    { return Field{Key: key, Type: TypeText} }
func rich(key string) Field    { return Field{Key: key, Type: TypeRichText} }
func enum(key string) Field    { return Field{Key: key, Type: TypeEnum} }
func numeric(key string) Field { return Field{Key: key, Type: TypeNumeric} }
func boolean(key string) Field { return Field{Key: key, Type: TypeBool} }
func list(key string) Field    { return Field{Key: key, Type: TypeList} }

// eyes expands base into its OD and OS fields, OD first.
func eyes(base string, t FieldType, otherCapable bool) []Field {
	return []Field{
		{Key: base + "_od", Type: t, OtherCapable: otherCapable},
		{Key: base + "_os", Type: t, OtherCapable: otherCapable},
	}
}

// eyesInfix expands prefix/suffix around the eye token, e.g.
// pupil + size -> pupil_od_size, pupil_os_size.
func eyesInfix(prefix, suffix string, t FieldType) []Field {
	return []Field{
		{Key: prefix + "_od_" + suffix, Type: t},
		{Key: prefix + "_os_" + suffix, Type: t},
	}
}

// AcuityMeasures is the fixed row order of a visual-acuity table.
var AcuityMeasures = []string{"ucva", "scva", "bcva"}

func acuity(prefix string) []Field {
	var out []Field
	for _, m := range AcuityMeasures {
		out = append(out, eyesInfix(prefix, m, TypeText)...)
	}
	return out
}

func join(groups ...[]Field) []Field {
	var out []Field
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

var sectionTable = []sectionDef{
	{"Patient History", StyleKeyValueGrid, []Field{
		rich("chief_complaint"),
		text("complaint_duration"),
		list("systemic_conditions"),
		list("allergies"),
		list("current_medications"),
		list("family_history"),
		boolean("diabetic"),
		boolean("hypertensive"),
		boolean("previous_ocular_surgery"),
		boolean("ocular_trauma"),
		boolean("spectacle_use"),
		boolean("contact_lens_use"),
		rich("ocular_history_notes"),
	}},
	{"Vital Signs", StyleKeyValueGrid, []Field{
		text("blood_pressure"),
		numeric("pulse_rate"),
		numeric("respiratory_rate"),
		numeric("temperature"),
		numeric("blood_glucose"),
	}},
	{"Distance Visual Acuity", StyleVisualAcuityTable, acuity("distance")},
	{"Near Visual Acuity", StyleVisualAcuityTable, acuity("near")},
	{"Pupil Reaction", StyleEyePairTable, join(
		eyesInfix("pupil", "size", TypeNumeric),
		eyesInfix("pupil", "reaction", TypeEnum),
		eyesInfix("pupil", "rapd", TypeEnum),
	)},
	{"Ocular Motility", StyleKeyValueGrid, []Field{
		enum("eom"),
		enum("eom_gaze"),
		enum("eom_eye"),
		boolean("nystagmus"),
	}},
	{"Alignment Tests", StyleKeyValueGrid, []Field{
		enum("cover_test_distance"),
		enum("cover_test_near"),
		enum("hirschberg"),
		text("prism_cover_test"),
	}},
	{"Stereopsis", StyleKeyValueGrid, []Field{
		enum("stereopsis_test"),
		text("stereopsis_result"),
	}},
	{"Intraocular Pressure", StyleEyePairTable, join(
		eyes("iop", TypeNumeric, false),
		eyes("cct", TypeNumeric, false),
		[]Field{enum("iop_method"), text("iop_time")},
	)},
	{"Anterior Segment", StyleEyePairTable, join(
		eyes("lids", TypeEnum, true),
		eyes("conjunctiva", TypeEnum, true),
		eyes("cornea", TypeEnum, true),
		eyes("anterior_chamber", TypeEnum, true),
		eyes("iris", TypeEnum, true),
		eyes("lens", TypeEnum, true),
	)},
	{"Dilation", StyleKeyValueGrid, []Field{
		boolean("dilated"),
		text("dilation_drops"),
		text("dilation_time"),
	}},
	{"Posterior Segment", StyleEyePairTable, join(
		eyes("vitreous", TypeEnum, true),
		eyes("optic_disc", TypeEnum, true),
		eyes("cup_disc_ratio", TypeNumeric, false),
		eyes("macula", TypeEnum, true),
		eyes("vessels", TypeEnum, true),
		eyes("periphery", TypeEnum, true),
	)},
	{"Diagnosis & Management", StyleRichTextBlock, []Field{
		text("primary_diagnosis"),
		list("secondary_diagnoses"),
		rich("management_plan"),
		text("follow_up"),
	}},
}

var (
	fieldIndex   = map[string]Field{}
	sectionIndex = map[string]string{}
	fieldOrder   []Field
	sections     []Section
)

func init() {
	for _, def := range sectionTable {
		sec := Section{Name: def.name, Style: def.style}
		for _, f := range def.fields {
			if _, dup := fieldIndex[f.Key]; dup {
				panic("examination: field " + f.Key + " declared twice")
			}
			fieldIndex[f.Key] = f
			sectionIndex[f.Key] = def.name
			fieldOrder = append(fieldOrder, f)
			sec.Keys = append(sec.Keys, f.Key)
		}
		sections = append(sections, sec)
	}
}

// Sections returns a copy of the static section table in display order.
func Sections() []Section {
	out := make([]Section, len(sections))
	for i, s := range sections {
		out[i] = Section{Name: s.Name, Style: s.Style, Keys: append([]string(nil), s.Keys...)}
	}
	return out
}

// Fields returns every known field in section order.
func Fields() []Field {
	return append([]Field(nil), fieldOrder...)
}

// Lookup returns the field declared for key.
func Lookup(key string) (Field, bool) {
	f, ok := fieldIndex[key]
	return f, ok
}

// SectionOf returns the name of the section owning key, or "" for unknown keys.
func SectionOf(key string) string {
	return sectionIndex[key]
}

// EyeOf reports the eye token carried by key.
func EyeOf(key string) Eye {
	for _, tok := range strings.Split(key, "_") {
		switch tok {
		case string(EyeOD):
			return EyeOD
		case string(EyeOS):
			return EyeOS
		}
	}
	return EyeNone
}

// EyeSibling returns the key of the same field for the other eye. Keys without
// an eye token are returned unchanged.
func EyeSibling(key string) string {
	toks := strings.Split(key, "_")
	for i, tok := range toks {
		switch tok {
		case string(EyeOD):
			toks[i] = string(EyeOS)
			return strings.Join(toks, "_")
		case string(EyeOS):
			toks[i] = string(EyeOD)
			return strings.Join(toks, "_")
		}
	}
	return key
}

// StripEye drops the eye token: distance_od_ucva -> distance_ucva.
func StripEye(key string) string {
	toks := strings.Split(key, "_")
	out := toks[:0]
	removed := false
	for _, tok := range toks {
		if !removed && (tok == string(EyeOD) || tok == string(EyeOS)) {
			removed = true
			continue
		}
		out = append(out, tok)
	}
	return strings.Join(out, "_")
}
