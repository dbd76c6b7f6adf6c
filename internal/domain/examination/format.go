package examination

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Display labels shared by every rendering of a snapshot.
const (
	LabelNotRecorded = "Not recorded"
	LabelNone        = "None"
	LabelYes         = "Yes"
	LabelNo          = "No"
)

var acronyms = map[string]string{
	"od":   "OD",
	"os":   "OS",
	"ucva": "UCVA",
	"scva": "SCVA",
	"bcva": "BCVA",
	"iop":  "IOP",
	"eom":  "EOM",
	"cct":  "CCT",
}

// FormatFieldName turns a snake_case key into a display label:
// distance_od_ucva -> "Distance OD UCVA". Acronyms only match whole words.
func FormatFieldName(key string) string {
	// cases.Caser is stateful, so one per call.
	titled := cases.Title(language.English).String(strings.ReplaceAll(key, "_", " "))
	// every underscore maps to one space, so empty words survive
	words := strings.Split(titled, " ")
	for i, w := range words {
		if a, ok := acronyms[strings.ToLower(w)]; ok {
			words[i] = a
		}
	}
	return strings.Join(words, " ")
}

// IsEmpty is the single emptiness predicate used by every renderer: nil, the
// empty string, an empty list or an unrecorded EyeValue.
func IsEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case SafeMarkup:
		return t == ""
	case []string:
		return len(t) == 0
	case []any:
		return len(t) == 0
	case EyeValue:
		return t.IsZero()
	}
	return false
}

// FormatValue renders v for display. Rich text is returned untouched.
func FormatValue(f Field, v any) string {
	if IsEmpty(v) {
		if f.Type == TypeList {
			return LabelNone
		}
		return LabelNotRecorded
	}
	switch t := v.(type) {
	case bool:
		if t {
			return LabelYes
		}
		return LabelNo
	case []string:
		return strings.Join(t, ", ")
	case EyeValue:
		return t.String()
	case SafeMarkup:
		return string(t)
	case string:
		return t
	}
	return fmt.Sprint(v)
}
