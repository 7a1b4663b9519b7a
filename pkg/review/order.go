// Package review produces the final ordered review queue (spec.md §4.9):
// NO_CONFLICT changes sourced from the vendor delta, then CONFLICT changes
// in dependency order, then NEW, then DELETED — with customer-only
// NO_CONFLICT changes excluded from the queue but still persisted.
package review

import (
	"github.com/sailmerge/sailmerge/pkg/classify"
	"github.com/sailmerge/sailmerge/pkg/core"
	"github.com/sailmerge/sailmerge/pkg/depgraph"
)

// OrderedChange pairs a classified change with its review-queue position.
// OrderIndex is nil for changes excluded from the queue (spec.md §4.9:
// customer-only NO_CONFLICT changes).
type OrderedChange struct {
	classify.Change
	OrderIndex *int
}

// Order assigns order_index values to changes. depOrder is the full
// dependency-sorted node list from pkg/depgraph (parents before children),
// used to sequence the CONFLICT tier.
func Order(changes []classify.Change, depOrder []depgraph.Node) []OrderedChange {
	tier1, eOnly := splitNoConflict(changes)
	tier2 := conflictsInDependencyOrder(changes, depOrder)
	tier3 := filterByClassification(changes, core.ClassificationNew)
	tier4 := filterByClassification(changes, core.ClassificationDeleted)

	out := make([]OrderedChange, 0, len(changes))
	idx := 0
	for _, tier := range [][]classify.Change{tier1, tier2, tier3, tier4} {
		for _, c := range tier {
			i := idx
			out = append(out, OrderedChange{Change: c, OrderIndex: &i})
			idx++
		}
	}
	for _, c := range eOnly {
		out = append(out, OrderedChange{Change: c, OrderIndex: nil})
	}
	return out
}

// splitNoConflict separates NO_CONFLICT changes sourced from the vendor
// delta (queue-eligible, tier 1) from customer-only NO_CONFLICT changes
// (excluded from the queue, spec.md §4.9 rule 2 / §4.7 rule 2).
func splitNoConflict(changes []classify.Change) (queued, excluded []classify.Change) {
	for _, c := range changes {
		if c.Classification != core.ClassificationNoConflict {
			continue
		}
		if c.VendorKind == nil {
			excluded = append(excluded, c)
		} else {
			queued = append(queued, c)
		}
	}
	return queued, excluded
}

func filterByClassification(changes []classify.Change, classification core.Classification) []classify.Change {
	var out []classify.Change
	for _, c := range changes {
		if c.Classification == classification {
			out = append(out, c)
		}
	}
	return out
}

// conflictsInDependencyOrder walks depOrder (parents before children) and
// returns the CONFLICT changes in that sequence.
func conflictsInDependencyOrder(changes []classify.Change, depOrder []depgraph.Node) []classify.Change {
	byUUID := make(map[string]classify.Change, len(changes))
	for _, c := range changes {
		if c.Classification == core.ClassificationConflict {
			byUUID[c.ObjectUUID] = c
		}
	}
	out := make([]classify.Change, 0, len(byUUID))
	seen := make(map[string]bool, len(byUUID))
	for _, n := range depOrder {
		if c, ok := byUUID[n.UUID]; ok {
			out = append(out, c)
			seen[n.UUID] = true
		}
	}
	// Defensive: any conflict uuid absent from depOrder (shouldn't happen —
	// every change's object is a depgraph node) is appended deterministically
	// by the classify-stage (type, name) order already present in changes.
	for _, c := range changes {
		if c.Classification == core.ClassificationConflict && !seen[c.ObjectUUID] {
			out = append(out, c)
		}
	}
	return out
}
