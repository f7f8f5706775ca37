package interner

import "testing"

func TestInternReturnsSameRefForIdenticalEntry(t *testing.T) {
	tbl := NewTable()
	r1 := tbl.Intern(&Entry{Name: "a", Source: Source{Kind: SourceGit, URL: "u"}, Revision: "rev1"})
	r2 := tbl.Intern(&Entry{Name: "a", Source: Source{Kind: SourceGit, URL: "u"}, Revision: "rev1"})
	if r1 != r2 {
		t.Errorf("Intern returned different refs for identical entries: %v != %v", r1, r2)
	}
}

func TestInternDistinguishesRevision(t *testing.T) {
	tbl := NewTable()
	r1 := tbl.Intern(&Entry{Name: "a", Source: Source{Kind: SourceGit, URL: "u"}, Revision: "rev1"})
	r2 := tbl.Intern(&Entry{Name: "a", Source: Source{Kind: SourceGit, URL: "u"}, Revision: "rev2"})
	if r1 == r2 {
		t.Error("Intern collapsed two entries differing only by revision")
	}
}

func TestGetPanicsOnUnknownRef(t *testing.T) {
	tbl := NewTable()
	defer func() {
		if recover() == nil {
			t.Error("expected Get to panic on an unissued ref")
		}
	}()
	tbl.Get(Ref(1))
}

func TestAllPreservesInsertionOrder(t *testing.T) {
	tbl := NewTable()
	tbl.Intern(&Entry{Name: "b", Source: Source{Kind: SourcePath, Path: "./b"}})
	tbl.Intern(&Entry{Name: "a", Source: Source{Kind: SourcePath, Path: "./a"}})
	refs := tbl.All()
	if len(refs) != 2 {
		t.Fatalf("All() returned %d refs, want 2", len(refs))
	}
	if tbl.Name(refs[0]) != "b" || tbl.Name(refs[1]) != "a" {
		t.Errorf("All() order = [%s, %s], want insertion order [b, a]", tbl.Name(refs[0]), tbl.Name(refs[1]))
	}
}

func TestPickedVersionForPathEntry(t *testing.T) {
	e := &Entry{Name: "lib", Source: Source{Kind: SourcePath, Path: "./lib"}}
	pv := e.Picked()
	if !pv.IsPath {
		t.Error("expected a path entry's picked version to have IsPath = true")
	}
}

func TestGraphLenCountsEnsuredNodes(t *testing.T) {
	g := NewGraph()
	a, b := Ref(1), Ref(2)
	g.EnsureNode(a)
	g.AddEdge(a, b)
	if g.Len() != 1 {
		t.Errorf("Len() = %d, want 1 (only a has a recorded edge list)", g.Len())
	}
	g.EnsureNode(b)
	if g.Len() != 2 {
		t.Errorf("Len() = %d, want 2 after EnsureNode(b)", g.Len())
	}
}

func TestGraphAddEdgeDeduplicates(t *testing.T) {
	g := NewGraph()
	a, b := Ref(1), Ref(2)
	g.AddEdge(a, b)
	g.AddEdge(a, b)
	if deps := g.Deps(a); len(deps) != 1 {
		t.Errorf("Deps(a) = %v, want a single edge after duplicate AddEdge", deps)
	}
}
