package compare

import (
	"fmt"
	"sort"

	"github.com/sailmerge/sailmerge/pkg/canonical"
	"github.com/sailmerge/sailmerge/pkg/core"
	"github.com/sailmerge/sailmerge/pkg/objectmodel"
)

// PackageIndex is one package's parsed, registered object set, keyed by
// object uuid — the input the Delta Engine joins (spec.md §4.6).
type PackageIndex struct {
	Versions map[string]objectmodel.Version
	Types    map[string]core.ObjectType
	Names    map[string]string
}

// Record is one Delta Engine output row: a single uuid's change between two
// package indices.
type Record struct {
	ObjectUUID     string
	ObjectType     core.ObjectType
	ObjectName     string
	Kind           core.ChangeKind
	OldVersionUUID string
	NewVersionUUID string
	Summary        string
	OldView        *canonical.View
	NewView        *canonical.View
}

// Delta joins old and new by uuid and returns one Record per uuid in
// keys(old) ∪ keys(new), ordered by (object_type, name) for stable
// persistence (spec.md §4.6). UNCHANGED pairs are omitted; the
// UNCHANGED_NEW_VUUID case is emitted as MODIFIED. Unknown-typed objects
// present on both sides are omitted too: they only ever yield NEW, REMOVED
// or DEPRECATED records.
func Delta(old, new PackageIndex) ([]Record, error) {
	var records []Record

	for uuid, newV := range new.Versions {
		if _, inOld := old.Versions[uuid]; inOld {
			continue
		}
		records = append(records, Record{
			ObjectUUID:     uuid,
			ObjectType:     new.Types[uuid],
			ObjectName:     new.Names[uuid],
			Kind:           core.ChangeKindNew,
			NewVersionUUID: newV.VersionUUID,
			Summary:        fmt.Sprintf("%s %q added", new.Types[uuid], new.Names[uuid]),
		})
	}

	for uuid, oldV := range old.Versions {
		if _, inNew := new.Versions[uuid]; inNew {
			continue
		}
		kind := core.ChangeKindRemoved
		if oldV.Deprecated {
			kind = core.ChangeKindDeprecated
		}
		records = append(records, Record{
			ObjectUUID:     uuid,
			ObjectType:     old.Types[uuid],
			ObjectName:     old.Names[uuid],
			Kind:           kind,
			OldVersionUUID: oldV.VersionUUID,
			Summary:        fmt.Sprintf("%s %q %s", old.Types[uuid], old.Names[uuid], kindVerb(kind)),
		})
	}

	for uuid, oldV := range old.Versions {
		newV, inNew := new.Versions[uuid]
		if !inNew {
			continue
		}
		objType := old.Types[uuid]
		if objType == core.ObjectTypeUnknown {
			continue
		}
		outcome, err := ComparePair(objType, oldV, newV)
		if err != nil {
			return nil, fmt.Errorf("compare pair %s: %w", uuid, err)
		}
		if outcome.Unchanged {
			continue
		}
		oldView, newView := outcome.OldView, outcome.NewView
		records = append(records, Record{
			ObjectUUID:     uuid,
			ObjectType:     objType,
			ObjectName:     new.Names[uuid],
			Kind:           core.ChangeKindModified,
			OldVersionUUID: oldV.VersionUUID,
			NewVersionUUID: newV.VersionUUID,
			Summary:        fmt.Sprintf("%s %q modified", objType, new.Names[uuid]),
			OldView:        &oldView,
			NewView:        &newView,
		})
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].ObjectType != records[j].ObjectType {
			return records[i].ObjectType < records[j].ObjectType
		}
		return records[i].ObjectName < records[j].ObjectName
	})
	return records, nil
}

func kindVerb(k core.ChangeKind) string {
	if k == core.ChangeKindDeprecated {
		return "deprecated"
	}
	return "removed"
}
