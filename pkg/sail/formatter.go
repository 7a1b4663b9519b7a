// Package sail normalizes Appian SAIL (scripting language) code strings into
// a stable, comparison-ready form: escapes decoded, opaque uuid references
// resolved to current display names, internal system-rule identifiers
// rewritten to their public form, and whitespace collapsed (spec.md §4.3).
package sail

import (
	"regexp"
	"strings"
)

// Lookup resolves a uuid to its current display name. objectmodel.Registry
// satisfies this interface; the formatter depends only on the method it
// needs, not the concrete type, so it can run against any object map.
type Lookup interface {
	NameOf(uuid string) (string, bool)
}

var (
	quotedRefPattern  = regexp.MustCompile(`#"([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})"`)
	bangRefPattern    = regexp.MustCompile(`(rule|cons)!([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})`)
	quotedSysPattern  = regexp.MustCompile(`#"(SYSTEM_SYSRULES_[A-Z0-9_]+)"`)
	internalAPattern  = regexp.MustCompile(`a!([A-Za-z][A-Za-z0-9_]*)`)
	whitespaceRunPat  = regexp.MustCompile(`[ \t]+`)
	blankLineRunPat   = regexp.MustCompile(`\n{2,}`)
)

// decodeEscapes reverses the literal escape sequences SAIL source carries
// when round-tripped through an XML export (spec.md §4.3 step 1).
func decodeEscapes(s string) string {
	replacer := strings.NewReplacer(
		`\n`, "\n",
		`\t`, "\t",
		`\"`, `"`,
		`\\`, `\`,
	)
	return replacer.Replace(s)
}

// rewriteReferences resolves #"<uuid>" and rule!<uuid> / cons!<uuid> forms
// to rule!<Name> / cons!<Name> using lookup. Unresolved uuids are left
// untouched (spec.md §4.3 step 2).
func rewriteReferences(s string, lookup Lookup) string {
	s = quotedRefPattern.ReplaceAllStringFunc(s, func(match string) string {
		uuid := quotedRefPattern.FindStringSubmatch(match)[1]
		if name, ok := lookup.NameOf(uuid); ok {
			return `rule!` + name
		}
		return match
	})
	s = bangRefPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := bangRefPattern.FindStringSubmatch(match)
		prefix, uuid := parts[1], parts[2]
		if name, ok := lookup.NameOf(uuid); ok {
			return prefix + "!" + name
		}
		return match
	})
	return s
}

// rewriteSystemRules resolves the frozen internal → public system-rule name
// mapping, in both its quoted-identifier and a!-prefixed forms. Unmapped
// names pass through unchanged (spec.md §4.3 step 3).
func rewriteSystemRules(s string) string {
	s = quotedSysPattern.ReplaceAllStringFunc(s, func(match string) string {
		key := quotedSysPattern.FindStringSubmatch(match)[1]
		if public, ok := PublicNameFor(key); ok {
			return public
		}
		return match
	})
	s = internalAPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := internalAPattern.FindStringSubmatch(match)[1]
		key := "SYSTEM_SYSRULES_" + strings.ToUpper(name)
		if public, ok := PublicNameFor(key); ok {
			return public
		}
		// also try the bare internal name, for mappings keyed verbatim
		if public, ok := PublicNameFor(strings.ToUpper(name)); ok {
			return public
		}
		return match
	})
	return s
}

// collapseWhitespace collapses runs of horizontal whitespace and drops
// blank lines while preserving line breaks between statements (spec.md
// §4.3 step 4).
func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimRight(whitespaceRunPat.ReplaceAllString(line, " "), " \t")
		trimmed = strings.TrimLeft(trimmed, " \t")
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return strings.Join(out, "\n")
}

// Format runs the full normalization pipeline against code, resolving
// references through lookup. Format is deterministic and idempotent:
// Format(Format(x), lookup) == Format(x, lookup) for any fixed lookup state
// (spec.md §4.3).
func Format(code string, lookup Lookup) string {
	if code == "" {
		return ""
	}
	s := decodeEscapes(code)
	s = rewriteReferences(s, lookup)
	s = rewriteSystemRules(s)
	s = collapseWhitespace(s)
	s = blankLineRunPat.ReplaceAllString(s, "\n")
	return s
}
