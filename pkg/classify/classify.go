// Package classify implements the Set Classifier (spec.md §4.7): walking
// the union of the vendor delta (D) and customer delta (E), applying an
// ordered, first-match-wins rule table to produce one classification per
// object uuid.
package classify

import (
	"fmt"
	"sort"

	"github.com/sailmerge/sailmerge/pkg/compare"
	"github.com/sailmerge/sailmerge/pkg/core"
)

// Change is one classified row: the object's identity, its classification,
// and the vendor/customer change kinds that produced it (either may be nil
// if the uuid was absent from that delta set).
type Change struct {
	ObjectUUID   string
	ObjectType   core.ObjectType
	ObjectName   string
	Classification core.Classification

	VendorKind   *core.ChangeKind
	CustomerKind *core.ChangeKind

	VendorRecord   *compare.Record
	CustomerRecord *compare.Record
}

// Classify walks D ∪ E and returns one Change per uuid, sorted by
// (object_type, name) for stable persistence. customized and newVendor are
// the B and C package indices, needed for rule 8's mandatory re-comparison.
func Classify(d, e []compare.Record, customized, newVendor compare.PackageIndex) ([]Change, error) {
	vendorByUUID := make(map[string]compare.Record, len(d))
	for _, r := range d {
		vendorByUUID[r.ObjectUUID] = r
	}
	customerByUUID := make(map[string]compare.Record, len(e))
	for _, r := range e {
		customerByUUID[r.ObjectUUID] = r
	}

	seen := make(map[string]struct{}, len(vendorByUUID)+len(customerByUUID))
	for uuid := range vendorByUUID {
		seen[uuid] = struct{}{}
	}
	for uuid := range customerByUUID {
		seen[uuid] = struct{}{}
	}

	changes := make([]Change, 0, len(seen))
	for uuid := range seen {
		vendorRec, inD := vendorByUUID[uuid]
		customerRec, inE := customerByUUID[uuid]

		objType, objName := "", ""
		if inD {
			objType, objName = string(vendorRec.ObjectType), vendorRec.ObjectName
		} else {
			objType, objName = string(customerRec.ObjectType), customerRec.ObjectName
		}

		classification, err := classifyOne(uuid, inD, vendorRec, inE, customerRec, customized, newVendor)
		if err != nil {
			return nil, err
		}

		ch := Change{
			ObjectUUID:     uuid,
			ObjectType:     core.ObjectType(objType),
			ObjectName:     objName,
			Classification: classification,
		}
		if inD {
			k := vendorRec.Kind
			ch.VendorKind = &k
			ch.VendorRecord = &vendorRec
		}
		if inE {
			k := customerRec.Kind
			ch.CustomerKind = &k
			ch.CustomerRecord = &customerRec
		}
		changes = append(changes, ch)
	}

	sort.Slice(changes, func(i, j int) bool {
		if changes[i].ObjectType != changes[j].ObjectType {
			return changes[i].ObjectType < changes[j].ObjectType
		}
		return changes[i].ObjectName < changes[j].ObjectName
	})
	return changes, nil
}

func classifyOne(
	uuid string,
	inD bool, vendorRec compare.Record,
	inE bool, customerRec compare.Record,
	customized, newVendor compare.PackageIndex,
) (core.Classification, error) {
	switch {
	case inD && !inE:
		// Rule 1: vendor change the customer has not touched.
		return core.ClassificationNoConflict, nil
	case !inD && inE:
		// Rule 2: customer change the vendor has not touched.
		return core.ClassificationNoConflict, nil
	case inD && inE && vendorRec.Kind == core.ChangeKindNew && customerRec.Kind == core.ChangeKindNew:
		// Rule 3.
		return core.ClassificationNew, nil
	case inD && inE && isRemovedLike(vendorRec.Kind) && customerRec.Kind == core.ChangeKindRemoved:
		// Rule 4.
		return core.ClassificationDeleted, nil
	case inD && inE && vendorRec.Kind == core.ChangeKindDeprecated && customerRec.Kind == core.ChangeKindModified:
		// Rule 5: vendor removed what the customer kept customizing.
		return core.ClassificationDeleted, nil
	case inD && inE && vendorRec.Kind == core.ChangeKindRemoved && customerRec.Kind == core.ChangeKindModified:
		// Rule 6.
		return core.ClassificationConflict, nil
	case inD && inE && vendorRec.Kind == core.ChangeKindModified && customerRec.Kind == core.ChangeKindRemoved:
		// Rule 7.
		return core.ClassificationConflict, nil
	case inD && inE && vendorRec.Kind == core.ChangeKindModified && customerRec.Kind == core.ChangeKindModified:
		// Rule 8: mandatory B-vs-C re-comparison to demote identical
		// co-edits from spurious CONFLICT to NO_CONFLICT.
		return classifyCoEdit(uuid, customized, newVendor)
	default:
		// Rule 9: defensive default.
		return core.ClassificationConflict, nil
	}
}

func isRemovedLike(k core.ChangeKind) bool {
	return k == core.ChangeKindRemoved || k == core.ChangeKindDeprecated
}

func classifyCoEdit(uuid string, customized, newVendor compare.PackageIndex) (core.Classification, error) {
	bVersion, ok := customized.Versions[uuid]
	if !ok {
		return "", fmt.Errorf("classify: rule 8 co-edit check missing customized version for %s", uuid)
	}
	cVersion, ok := newVendor.Versions[uuid]
	if !ok {
		return "", fmt.Errorf("classify: rule 8 co-edit check missing new-vendor version for %s", uuid)
	}
	objType := customized.Types[uuid]
	outcome, err := compare.ComparePair(objType, bVersion, cVersion)
	if err != nil {
		return "", fmt.Errorf("classify: rule 8 co-edit comparison for %s: %w", uuid, err)
	}
	if outcome.Unchanged || outcome.SameFingerprint {
		return core.ClassificationNoConflict, nil
	}
	return core.ClassificationConflict, nil
}
