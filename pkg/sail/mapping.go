package sail

import (
	_ "embed"
	"encoding/json"
	"fmt"
)

//go:embed systemrules.json
var systemRulesAsset []byte

// systemRuleMapping is the frozen internal-name → public-name table, loaded
// from the embedded systemrules.json (105 entries); an internal name missing
// from that file stays unmapped. Loaded once at package init so every
// Formatter shares the same immutable map.
var systemRuleMapping map[string]string

func init() {
	var entries map[string]string
	if err := json.Unmarshal(systemRulesAsset, &entries); err != nil {
		panic(fmt.Sprintf("sail: embedded systemrules.json is malformed: %v", err))
	}
	systemRuleMapping = entries
}

// PublicNameFor resolves an internal system-rule identifier to its public
// a!-prefixed name. ok is false for anything outside the frozen table, in
// which case callers must leave the reference untouched (spec.md §4.3:
// "Unmapped internal names pass through").
func PublicNameFor(internalName string) (string, bool) {
	name, ok := systemRuleMapping[internalName]
	return name, ok
}
