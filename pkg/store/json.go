package store

import "encoding/json"

// toJSON marshals a structured payload to its text form for a jsonb column,
// bound with an explicit ::jsonb cast at the call site. A nil map marshals
// to SQL NULL rather than the literal string "null".
func toJSON(v map[string]any) *string {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	s := string(b)
	return &s
}
