// Package compare implements the Pair Comparator (spec.md §4.5) and Delta
// Engine (spec.md §4.6): deciding whether two versions of the same object
// are identical or modified, and joining two package object maps into an
// ordered list of per-uuid delta records.
package compare

import (
	"github.com/sailmerge/sailmerge/pkg/canonical"
	"github.com/sailmerge/sailmerge/pkg/core"
	"github.com/sailmerge/sailmerge/pkg/objectmodel"
)

// PairOutcome is the Pair Comparator's verdict for one object across two
// package versions.
type PairOutcome struct {
	// Unchanged is true only when both version-uuids match exactly
	// (spec.md §4.5 rule 1). Every other case — including a fingerprint
	// match on a new version-uuid — is reported as changed, per rule 2:
	// "Appian edits that don't change output still represent user intent."
	Unchanged bool

	// SameFingerprint is true when content hashes match despite differing
	// version-uuids (the UNCHANGED_NEW_VUUID case). Callers treat this as
	// MODIFIED for classification purposes but may use the flag for
	// diagnostics.
	SameFingerprint bool

	OldView canonical.View
	NewView canonical.View
}

// ComparePair compares two Object Versions of the same object (same uuid,
// different packages) and returns the outcome plus the canonical views
// needed for change-detail rendering.
func ComparePair(objType core.ObjectType, oldV, newV objectmodel.Version) (PairOutcome, error) {
	oldView := canonical.Build(objType, oldV)
	newView := canonical.Build(objType, newV)

	if oldV.VersionUUID != "" && oldV.VersionUUID == newV.VersionUUID {
		return PairOutcome{Unchanged: true, OldView: oldView, NewView: newView}, nil
	}

	oldFP, err := Fingerprint(oldView)
	if err != nil {
		return PairOutcome{}, err
	}
	newFP, err := Fingerprint(newView)
	if err != nil {
		return PairOutcome{}, err
	}

	return PairOutcome{
		Unchanged:       false,
		SameFingerprint: oldFP == newFP,
		OldView:         oldView,
		NewView:         newView,
	}, nil
}
