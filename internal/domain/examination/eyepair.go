package examination

// EyeEntry is one eye's value with its free-text companion.
type EyeEntry struct {
	Value string `json:"value"`
	Other string `json:"other"`
}

// EyePair holds both eyes of one field.
type EyePair struct {
	OD EyeEntry `json:"od"`
	OS EyeEntry `json:"os"`
}

// EyePairRecord is the nested shape: { field: { od: {...}, os: {...} } }.
type EyePairRecord map[string]EyePair

// FlatRecord is the edit-form shape: field_od, field_od_other, field_os,
// field_os_other.
type FlatRecord map[string]string

// FlatKeys lists the four flat keys of every field, in form order.
func FlatKeys(fieldKeys []string) []string {
	out := make([]string, 0, len(fieldKeys)*4)
	for _, k := range fieldKeys {
		out = append(out, k+"_od", k+"_od_other", k+"_os", k+"_os_other")
	}
	return out
}

// Flatten maps the nested shape to the flat one for fieldKeys. Fields missing
// from nested flatten to empty strings; keys not in fieldKeys are dropped.
func Flatten(nested EyePairRecord, fieldKeys []string) FlatRecord {
	flat := make(FlatRecord, len(fieldKeys)*4)
	for _, k := range fieldKeys {
		p := nested[k]
		flat[k+"_od"] = p.OD.Value
		flat[k+"_od_other"] = p.OD.Other
		flat[k+"_os"] = p.OS.Value
		flat[k+"_os_other"] = p.OS.Other
	}
	return flat
}

// Nest is the inverse of Flatten.
func Nest(flat FlatRecord, fieldKeys []string) EyePairRecord {
	nested := make(EyePairRecord, len(fieldKeys))
	for _, k := range fieldKeys {
		nested[k] = EyePair{
			OD: EyeEntry{Value: flat[k+"_od"], Other: flat[k+"_od_other"]},
			OS: EyeEntry{Value: flat[k+"_os"], Other: flat[k+"_os_other"]},
		}
	}
	return nested
}

// EyePairsFromPayload reads the nested shape out of a decoded JSON payload.
// A field sent flat (field_od, field_od_other, ...) is accepted as well.
// Anything malformed reads as empty.
func EyePairsFromPayload(payload map[string]any, fieldKeys []string) EyePairRecord {
	out := make(EyePairRecord, len(fieldKeys))
	for _, k := range fieldKeys {
		if nested, ok := payload[k].(map[string]any); ok {
			out[k] = EyePair{OD: entryFrom(nested["od"]), OS: entryFrom(nested["os"])}
			continue
		}
		out[k] = EyePair{
			OD: flatEntry(payload, k+"_od"),
			OS: flatEntry(payload, k+"_os"),
		}
	}
	return out
}

// flatEntry reads key either as a bare value or as a {value, other} object.
// A "<key>_other" companion wins over the object's own other text.
func flatEntry(payload map[string]any, key string) EyeEntry {
	e := entryFrom(payload[key])
	if other := str(payload[key+"_other"]); other != "" {
		e.Other = other
	}
	return e
}

func entryFrom(raw any) EyeEntry {
	m, ok := raw.(map[string]any)
	if !ok {
		return EyeEntry{Value: str(raw)}
	}
	return EyeEntry{Value: str(m["value"]), Other: str(m["other"])}
}

func str(raw any) string {
	s, _ := scalarString(raw)
	return s
}

// Payload converts the record back into a JSON-ready payload fragment.
func (r EyePairRecord) Payload() map[string]any {
	out := make(map[string]any, len(r))
	for k, p := range r {
		out[k] = map[string]any{
			"od": map[string]any{"value": p.OD.Value, "other": p.OD.Other},
			"os": map[string]any{"value": p.OS.Value, "other": p.OS.Other},
		}
	}
	return out
}

// Map widens the flat record for payload validation and merging.
func (f FlatRecord) Map() map[string]any {
	out := make(map[string]any, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}
