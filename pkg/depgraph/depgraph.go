// Package depgraph implements the Dependency Analyzer (spec.md §4.8):
// harvesting uuid-reference edges from canonicalized object content and
// topologically sorting objects with deterministic tie-breaking and
// deterministic cycle-breaking.
package depgraph

import (
	"log/slog"
	"regexp"
	"sort"

	"github.com/sailmerge/sailmerge/pkg/canonical"
	"github.com/sailmerge/sailmerge/pkg/core"
)

// Node is one object participating in the dependency graph.
type Node struct {
	UUID string
	Type core.ObjectType
	Name string
}

var uuidPattern = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)

// ExtractEdges scans content (scripted code, or a flattened encoding of a
// structured payload) for uuid-shaped substrings and returns the subset
// that resolve to another known object, excluding self-references.
func ExtractEdges(selfUUID, content string, known map[string]struct{}) []string {
	matches := uuidPattern.FindAllString(content, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		if m == selfUUID {
			continue
		}
		if _, ok := known[m]; !ok {
			continue
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

// ContentForScan flattens a canonical.View into the text the uuid pattern is
// scanned against: the scripted code plus a stable JSON rendering of the
// structured payload (spec.md §4.8: "scanning every object's canonicalized
// payload... for the Appian uuid pattern").
func ContentForScan(v canonical.View) string {
	if v.RawXML != nil {
		return string(v.RawXML)
	}
	payload, err := canonical.StableJSON(v)
	if err != nil {
		return v.Code
	}
	return v.Code + "\n" + string(payload)
}

// BuildAdjacency derives the u → v edge set for every node from its scanned
// content, given the set of every object uuid known to the session.
func BuildAdjacency(contentByUUID map[string]string, known map[string]struct{}) map[string][]string {
	adjacency := make(map[string][]string, len(contentByUUID))
	for uuid, content := range contentByUUID {
		adjacency[uuid] = ExtractEdges(uuid, content, known)
	}
	return adjacency
}

// TopoSort orders nodes using Kahn's algorithm with deterministic
// tie-breaking (object type alphabetical, then display name). Cycles are
// broken by removing the edge with the lexicographically largest
// (source_name, target_name) pair and logging a warning (spec.md §4.8);
// the residual DAG is then sorted normally. logger may be nil.
func TopoSort(nodes []Node, adjacency map[string][]string, logger *slog.Logger) []Node {
	nodeByUUID := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		nodeByUUID[n.UUID] = n
	}

	adj := make(map[string][]string, len(adjacency))
	for k, v := range adjacency {
		adj[k] = append([]string(nil), v...)
	}

	for {
		order, ok := kahn(nodes, adj, nodeByUUID)
		if ok {
			return order
		}
		src, tgt := largestRemainingEdge(order, adj, nodeByUUID)
		if src == "" {
			return order // defensive: no removable edge found, return best effort
		}
		if logger != nil {
			cycleErr := &core.DependencyCycleError{RemovedSourceUUID: src, RemovedTargetUUID: tgt}
			logger.Warn("dependency cycle broken", "error", cycleErr.Error(),
				"removed_source", nodeByUUID[src].Name, "removed_target", nodeByUUID[tgt].Name)
		}
		adj[src] = removeOne(adj[src], tgt)
	}
}

// kahn runs one pass of Kahn's algorithm with deterministic selection order.
// ok is false if a cycle prevented a full ordering; order then holds the
// nodes successfully placed (used by the caller to find the culprit edge).
func kahn(nodes []Node, adj map[string][]string, nodeByUUID map[string]Node) ([]Node, bool) {
	indegree := make(map[string]int, len(nodes))
	for _, n := range nodes {
		indegree[n.UUID] = 0
	}
	for _, targets := range adj {
		for _, t := range targets {
			if _, known := indegree[t]; known {
				indegree[t]++
			}
		}
	}

	var available []Node
	for _, n := range nodes {
		if indegree[n.UUID] == 0 {
			available = append(available, n)
		}
	}

	var order []Node
	processed := make(map[string]bool, len(nodes))
	for len(available) > 0 {
		sort.Slice(available, func(i, j int) bool {
			if available[i].Type != available[j].Type {
				return available[i].Type < available[j].Type
			}
			return available[i].Name < available[j].Name
		})
		n := available[0]
		available = available[1:]
		order = append(order, n)
		processed[n.UUID] = true

		for _, target := range adj[n.UUID] {
			if _, known := indegree[target]; !known {
				continue
			}
			indegree[target]--
			if indegree[target] == 0 && !processed[target] {
				available = append(available, nodeByUUID[target])
			}
		}
	}

	return order, len(order) == len(nodes)
}

// largestRemainingEdge finds, among edges whose endpoints were not placed by
// the last Kahn pass, the one with the lexicographically largest
// (source_name, target_name) pair.
func largestRemainingEdge(placed []Node, adj map[string][]string, nodeByUUID map[string]Node) (string, string) {
	placedSet := make(map[string]bool, len(placed))
	for _, n := range placed {
		placedSet[n.UUID] = true
	}

	bestSrc, bestTgt, bestKey := "", "", ""
	srcUUIDs := make([]string, 0, len(adj))
	for src := range adj {
		srcUUIDs = append(srcUUIDs, src)
	}
	sort.Strings(srcUUIDs)

	for _, src := range srcUUIDs {
		if placedSet[src] {
			continue
		}
		targets := append([]string(nil), adj[src]...)
		sort.Strings(targets)
		for _, tgt := range targets {
			if placedSet[tgt] {
				continue
			}
			key := nodeByUUID[src].Name + "\x00" + nodeByUUID[tgt].Name
			if key > bestKey {
				bestKey, bestSrc, bestTgt = key, src, tgt
			}
		}
	}
	return bestSrc, bestTgt
}

func removeOne(targets []string, remove string) []string {
	for i, t := range targets {
		if t == remove {
			return append(append([]string(nil), targets[:i]...), targets[i+1:]...)
		}
	}
	return targets
}

// Parents returns every node with an edge into x (x's dependencies).
func Parents(x string, adjacency map[string][]string) []string {
	var out []string
	for src, targets := range adjacency {
		for _, t := range targets {
			if t == x {
				out = append(out, src)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Children returns every node x has an edge into (x's dependents).
func Children(x string, adjacency map[string][]string) []string {
	out := append([]string(nil), adjacency[x]...)
	sort.Strings(out)
	return out
}
