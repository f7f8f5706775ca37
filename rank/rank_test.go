package rank

import (
	"testing"

	"github.com/pulp-platform/bender-sub000/interner"
)

type nameMap map[interner.Ref]string

func (n nameMap) Name(r interner.Ref) string { return n[r] }

func TestRankOrdersDependenciesBeforeDependents(t *testing.T) {
	g := interner.NewGraph()
	root, a, b, c := interner.Ref(1), interner.Ref(2), interner.Ref(3), interner.Ref(4)
	g.AddEdge(root, a)
	g.AddEdge(a, b)
	g.AddEdge(b, c)
	names := nameMap{root: "root", a: "a", b: "b", c: "c"}

	buckets, err := Rank(g, []interner.Ref{root}, names)
	if err != nil {
		t.Fatal(err)
	}
	pos := make(map[interner.Ref]int)
	for i, bucket := range buckets {
		for _, id := range bucket {
			pos[id] = i
		}
	}
	if !(pos[c] < pos[b] && pos[b] < pos[a] && pos[a] < pos[root]) {
		t.Errorf("expected strictly increasing depth order, got positions %v", pos)
	}
}

func TestRankDetectsCycle(t *testing.T) {
	g := interner.NewGraph()
	a, b := interner.Ref(1), interner.Ref(2)
	g.AddEdge(a, b)
	g.AddEdge(b, a)
	names := nameMap{a: "a", b: "b"}

	if _, err := Rank(g, []interner.Ref{a}, names); err == nil {
		t.Error("expected cycle to be detected")
	}
}

func TestRankSortsWithinBucketByName(t *testing.T) {
	g := interner.NewGraph()
	root, zeta, alpha := interner.Ref(1), interner.Ref(2), interner.Ref(3)
	g.AddEdge(root, zeta)
	g.AddEdge(root, alpha)
	names := nameMap{root: "root", zeta: "zeta", alpha: "alpha"}

	buckets, err := Rank(g, []interner.Ref{root}, names)
	if err != nil {
		t.Fatal(err)
	}
	leaf := buckets[0]
	if len(leaf) != 2 || names.Name(leaf[0]) != "alpha" || names.Name(leaf[1]) != "zeta" {
		t.Errorf("expected alphabetical order within rank, got %v", leaf)
	}
}
