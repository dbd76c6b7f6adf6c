package examination

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// OtherTag is the enumerated value that switches an eye field to its
// free-text companion. It is only ever compared in EyeValueFromPair.
const OtherTag = "Other"

// SafeMarkup is rich text produced and sanitized by the editor. It is
// embedded verbatim and never escaped again.
type SafeMarkup string

// EyeValue is either an enumerated tag or free "other" text.
type EyeValue struct {
	tag     string
	text    string
	isOther bool
}

// Enumerated returns an EyeValue holding tag.
func Enumerated(tag string) EyeValue { return EyeValue{tag: tag} }

// Other returns an EyeValue holding free text.
func Other(text string) EyeValue { return EyeValue{text: text, isOther: true} }

// EyeValueFromPair converts the {value, other} wire pair. other is dropped
// unless value is OtherTag.
func EyeValueFromPair(value, other string) EyeValue {
	value = strings.TrimSpace(value)
	if value == OtherTag {
		return Other(strings.TrimSpace(other))
	}
	return Enumerated(value)
}

// Pair converts back to the {value, other} wire pair.
func (v EyeValue) Pair() (value, other string) {
	if v.isOther {
		return OtherTag, v.text
	}
	return v.tag, ""
}

func (v EyeValue) IsOther() bool { return v.isOther }
func (v EyeValue) Tag() string   { return v.tag }
func (v EyeValue) Text() string  { return v.text }

// IsZero reports whether nothing was recorded.
func (v EyeValue) IsZero() bool { return !v.isOther && v.tag == "" }

func (v EyeValue) String() string {
	if v.isOther {
		if v.text == "" {
			return OtherTag
		}
		return v.text
	}
	return v.tag
}

func (v EyeValue) MarshalJSON() ([]byte, error) {
	value, other := v.Pair()
	return json.Marshal(EyeEntry{Value: value, Other: other})
}

func (v *EyeValue) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*v = EyeValueFromPair(s, "")
		return nil
	}
	var e EyeEntry
	if err := json.Unmarshal(b, &e); err != nil {
		return fmt.Errorf("eye value: %w", err)
	}
	*v = EyeValueFromPair(e.Value, e.Other)
	return nil
}

// Normalize converts a loosely typed value (decoded JSON, form input) into the
// canonical Go type for f: string, SafeMarkup, bool, []string or EyeValue.
// Absent scalars become nil and absent lists become an empty list.
func Normalize(f Field, raw any) any {
	if f.OtherCapable {
		return normalizeEye(raw)
	}
	switch f.Type {
	case TypeBool:
		return normalizeBool(raw)
	case TypeList:
		return normalizeList(raw)
	case TypeRichText:
		s, ok := scalarString(raw)
		if !ok || s == "" {
			return nil
		}
		return SafeMarkup(s)
	default:
		s, ok := scalarString(raw)
		if !ok {
			return nil
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		return s
	}
}

func normalizeEye(raw any) any {
	var v EyeValue
	switch t := raw.(type) {
	case EyeValue:
		v = t
	case EyeEntry:
		v = EyeValueFromPair(t.Value, t.Other)
	case map[string]any:
		value, _ := scalarString(t["value"])
		other, _ := scalarString(t["other"])
		v = EyeValueFromPair(value, other)
	default:
		s, _ := scalarString(raw)
		v = EyeValueFromPair(s, "")
	}
	if v.IsZero() {
		return nil
	}
	return v
}

func normalizeBool(raw any) any {
	switch t := raw.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case int:
		return t != 0
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return nil
		}
		return n != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "y", "1":
			return true
		case "false", "no", "n", "0":
			return false
		}
	case map[string]any:
		return normalizeBool(t["value"])
	}
	return nil
}

func normalizeList(raw any) any {
	out := []string{}
	switch t := raw.(type) {
	case []string:
		for _, s := range t {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	case []any:
		for _, item := range t {
			if s, ok := scalarString(item); ok {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
		}
	case string:
		for _, s := range strings.Split(t, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// scalarString renders JSON scalars as strings. Objects carrying a "value"
// key are unwrapped once, so {value, other} pairs feed plain fields too.
func scalarString(raw any) (string, bool) {
	switch t := raw.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case SafeMarkup:
		return string(t), true
	case EyeValue:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	case map[string]any:
		return scalarString(t["value"])
	}
	return "", false
}
