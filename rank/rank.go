// Package rank implements the package graph ranker: it orders a
// dependency graph into ranks such that every dependency appears in a
// strictly higher rank than its dependents, via worklist relaxation
// from the root packages down to the leaves.
package rank

import (
	"sort"

	"github.com/pulp-platform/bender-sub000/berr"
	"github.com/pulp-platform/bender-sub000/interner"
)

// Namer resolves a ref to its package name, used only to make the
// per-rank ordering deterministic.
type Namer interface {
	Name(ref interner.Ref) string
}

// Rank assigns every node reachable from roots a rank equal to one more
// than the rank of its deepest dependent, via repeated relaxation. It
// returns the nodes bucketed by rank, deepest dependency first (rank 0
// last), each bucket sorted by package name ascending, so that manifests
// can be built bottom-up.
//
// It returns an error once any node's rank exceeds 2*|graph|, which is
// taken as evidence of a cycle.
func Rank(graph *interner.Graph, roots []interner.Ref, namer Namer) ([][]interner.Ref, error) {
	ranks := make(map[interner.Ref]int)
	pending := append([]interner.Ref(nil), roots...)
	for _, r := range roots {
		ranks[r] = 0
	}

	limit := 2 * graph.Len()
	if limit == 0 {
		limit = 2 * (len(roots) + 1)
	}

	for len(pending) > 0 {
		current := pending
		pending = nil
		for _, id := range current {
			minDepRank := ranks[id] + 1
			for _, depID := range graph.Deps(id) {
				if ranks[depID] <= minDepRank {
					ranks[depID] = minDepRank
					pending = append(pending, depID)
				}
				if ranks[depID] > limit {
					return nil, berr.New(berr.Resolve, "dependency graph contains a cycle")
				}
			}
		}
	}

	maxRank := 0
	for _, r := range ranks {
		if r > maxRank {
			maxRank = r
		}
	}

	buckets := make([][]interner.Ref, maxRank+1)
	for id, r := range ranks {
		buckets[r] = append(buckets[r], id)
	}
	for _, b := range buckets {
		sort.Slice(b, func(i, j int) bool { return namer.Name(b[i]) < namer.Name(b[j]) })
	}

	// Reverse so the deepest dependencies come first.
	out := make([][]interner.Ref, len(buckets))
	for i, b := range buckets {
		out[len(buckets)-1-i] = b
	}
	return out, nil
}
