// Package canonical builds the stable comparison view for an object version:
// the payload the Pair Comparator fingerprints and diffs, independent of
// source ordering or formatting noise (spec.md §4.4).
package canonical

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/sailmerge/sailmerge/pkg/core"
	"github.com/sailmerge/sailmerge/pkg/objectmodel"
)

// View is the canonicalized content of one object version: a scripted code
// string (empty for non-scripted types) plus a structured payload whose
// JSON encoding is stable across calls (sorted keys, sorted list members).
type View struct {
	ObjectType core.ObjectType
	Code       string
	Payload    any
	RawXML     []byte
}

// Build produces the comparison view for one object version. t is the
// object's type; v is its parsed Version. Unknown objects compare by raw
// XML bytes only (spec.md §4.4).
func Build(t core.ObjectType, v objectmodel.Version) View {
	if t == core.ObjectTypeUnknown {
		return View{ObjectType: t, RawXML: v.RawXML}
	}
	return View{ObjectType: t, Code: v.ScriptedCode, Payload: canonicalPayload(t, v)}
}

// canonicalPayload re-derives the ordering-insensitive parts of the payload
// per the table in spec.md §4.4. Parser output (pkg/objectmodel) already
// sorts most list fields; this re-sorts defensively so Build never depends
// on upstream parser behavior, and is a pure function of the stored
// Fields/Properties maps.
func canonicalPayload(t core.ObjectType, v objectmodel.Version) any {
	switch t {
	case core.ObjectTypeInterface:
		return map[string]any{
			"parameters": sortMapsByName(asMapSlice(v.Fields["parameters"])),
			"security":   v.Properties["security"],
		}
	case core.ObjectTypeExpressionRule:
		return map[string]any{
			"inputs":     sortMapsByName(asMapSlice(v.Fields["inputs"])),
			"outputType": v.Fields["outputType"],
		}
	case core.ObjectTypeIntegration, core.ObjectTypeWebAPI:
		methods := asStringSlice(v.Fields["methods"])
		sort.Strings(methods)
		return map[string]any{
			"endpoint": v.Fields["endpoint"],
			"methods":  methods,
			"auth":     v.Properties["auth"],
		}
	case core.ObjectTypeProcessModel:
		return map[string]any{
			"nodes":     sortMapsByKey(asMapSlice(v.Fields["nodes"]), "uuid"),
			"flows":     sortMapsByKeys(asMapSlice(v.Fields["flows"]), "source", "target"),
			"variables": sortMapsByName(asMapSlice(v.Fields["variables"])),
		}
	case core.ObjectTypeRecordType:
		return map[string]any{
			"fields":        sortMapsByName(asMapSlice(v.Fields["fields"])),
			"relationships": sortMapsByName(asMapSlice(v.Fields["relationships"])),
			"views":         sortedStrings(v.Fields["views"]),
			"actions":       sortedStrings(v.Fields["actions"]),
		}
	case core.ObjectTypeCDT:
		return map[string]any{
			"fields": sortMapsByName(asMapSlice(v.Fields["fields"])),
		}
	case core.ObjectTypeConstant:
		return map[string]any{
			"value":    v.Fields["value"],
			"dataType": v.Fields["dataType"],
			"scope":    v.Fields["scope"],
		}
	case core.ObjectTypeSite:
		// Page hierarchy is semantically ordered; never sorted.
		return map[string]any{"pages": v.Fields["pages"]}
	case core.ObjectTypeGroup:
		return map[string]any{
			"parentUuid": v.Fields["parentUuid"],
			"members":    sortedStrings(v.Fields["members"]),
		}
	case core.ObjectTypeConnectedSystem:
		return map[string]any{
			"systemType": v.Fields["systemType"],
			"properties": sortMapsByName(asMapSlice(v.Properties["properties"])),
		}
	case core.ObjectTypeDataStore:
		return map[string]any{"entities": sortedStrings(v.Fields["entities"])}
	default:
		return v.Fields
	}
}

// StableJSON returns a canonical JSON encoding of a View's structured
// payload: sorted object keys (Go's encoding/json already sorts map keys)
// with no extraneous whitespace. Used by pkg/compare to build the
// fingerprint input (spec.md §3 "content fingerprint").
func StableJSON(v View) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v.Payload); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func asMapSlice(v any) []map[string]any {
	if v == nil {
		return nil
	}
	ms, _ := v.([]map[string]any)
	return ms
}

func asStringSlice(v any) []string {
	if v == nil {
		return nil
	}
	ss, _ := v.([]string)
	return append([]string(nil), ss...)
}

func sortedStrings(v any) []string {
	ss := asStringSlice(v)
	sort.Strings(ss)
	return ss
}

func sortMapsByName(in []map[string]any) []map[string]any {
	return sortMapsByKey(in, "name")
}

func sortMapsByKey(in []map[string]any, key string) []map[string]any {
	cp := append([]map[string]any(nil), in...)
	sort.Slice(cp, func(i, j int) bool {
		return stringField(cp[i], key) < stringField(cp[j], key)
	})
	return cp
}

func sortMapsByKeys(in []map[string]any, keys ...string) []map[string]any {
	cp := append([]map[string]any(nil), in...)
	sort.Slice(cp, func(i, j int) bool {
		for _, k := range keys {
			a, b := stringField(cp[i], k), stringField(cp[j], k)
			if a != b {
				return a < b
			}
		}
		return false
	})
	return cp
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
