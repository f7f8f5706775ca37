package srcgroup

import (
	"testing"

	"github.com/pulp-platform/bender-sub000/target"
)

func buildSample() *Group {
	tree := &Tree{
		Target: target.Wildcard(),
		Nodes: []Node{
			{File: &File{Path: "a.sv", Type: FileTypeVerilog}},
			{Sub: &Tree{
				Target: target.All(target.Name("sim"), target.Not(target.Name("fpga"))),
				Nodes:  []Node{{File: &File{Path: "b.sv", Type: FileTypeVerilog}}},
			}},
			{Sub: &Tree{
				Target: target.Name("fpga"),
				Nodes:  []Node{{File: &File{Path: "c.vhd", Type: FileTypeVHDL}}},
			}},
		},
	}
	return Build(tree, "root", "", nil, target.Empty())
}

func TestInferFileType(t *testing.T) {
	cases := map[string]FileType{"x.sv": FileTypeVerilog, "x.v": FileTypeVerilog, "x.vp": FileTypeVerilog,
		"x.vhd": FileTypeVHDL, "x.vhdl": FileTypeVHDL, "x.txt": FileTypeUnknown}
	for path, want := range cases {
		if got := InferFileType(path); got != want {
			t.Errorf("InferFileType(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestFilterTargetsKeepsMatchingGroups(t *testing.T) {
	g := buildSample()
	filtered := g.FilterTargets(target.NewSet("sim"))
	flat := filtered.Flatten()
	var paths []string
	for _, f := range flat {
		for _, file := range f.Files {
			paths = append(paths, file.Path)
		}
	}
	if len(paths) != 2 || paths[0] != "a.sv" || paths[1] != "b.sv" {
		t.Errorf("expected [a.sv b.sv], got %v", paths)
	}
}

func TestFilterTargetsDropsNonMatching(t *testing.T) {
	g := buildSample()
	filtered := g.FilterTargets(target.Empty())
	flat := filtered.Flatten()
	var paths []string
	for _, f := range flat {
		for _, file := range f.Files {
			paths = append(paths, file.Path)
		}
	}
	if len(paths) != 1 || paths[0] != "a.sv" {
		t.Errorf("expected only the wildcard file, got %v", paths)
	}
}

func TestFlattenFilterCommute(t *testing.T) {
	g := buildSample()
	ts := target.NewSet("fpga")

	// flatten(filter(g)) vs filter(flatten(g)) by file set.
	filteredThenFlat := g.FilterTargets(ts).Flatten()
	flatThenFiltered := filterFlats(g.Flatten(), ts)

	a := fileSet(filteredThenFlat)
	b := fileSet(flatThenFiltered)
	if len(a) != len(b) {
		t.Fatalf("file sets differ in size: %v vs %v", a, b)
	}
	for k := range a {
		if !b[k] {
			t.Errorf("file %q present in filter-then-flatten but not flatten-then-filter", k)
		}
	}
}

func filterFlats(flats []Flat, ts target.Set) []Flat {
	var out []Flat
	for _, f := range flats {
		eff := ts
		if !f.PassedTargets.IsEmpty() {
			eff = target.Union(ts, f.PassedTargets)
		}
		if f.Target.Matches(eff) {
			out = append(out, f)
		}
	}
	return out
}

func fileSet(flats []Flat) map[string]bool {
	out := map[string]bool{}
	for _, f := range flats {
		for _, file := range f.Files {
			out[file.Path] = true
		}
	}
	return out
}

func TestSimplifyIsIdempotent(t *testing.T) {
	g := buildSample()
	flat := g.Flatten()
	once := Simplify(flat)
	twice := Simplify(once)
	if len(once) != len(twice) {
		t.Fatalf("Simplify not idempotent: %d vs %d groups", len(once), len(twice))
	}
}

func TestSimplifyCoalescesAdjacentIdenticalGroups(t *testing.T) {
	flats := []Flat{
		{Package: "p", Target: target.Wildcard(), Files: []File{{Path: "a.sv"}}},
		{Package: "p", Target: target.Wildcard(), Files: []File{{Path: "b.sv"}}},
	}
	out := Simplify(flats)
	if len(out) != 1 || len(out[0].Files) != 2 {
		t.Errorf("expected coalesced single group with 2 files, got %+v", out)
	}
}

func TestOneHopExportIncludes(t *testing.T) {
	// Package a exports "inc"; b depends on a and sees it; c depends on
	// b (not a) and must not see it.
	aTree := &Tree{Target: target.Wildcard()}
	bTree := &Tree{Target: target.Wildcard()}
	cTree := &Tree{Target: target.Wildcard()}

	bGroup := Build(bTree, "b", "", map[string][]string{"a": {"inc"}}, target.Empty())
	cGroup := Build(cTree, "c", "", map[string][]string{"b": {}}, target.Empty())
	_ = Build(aTree, "a", "", nil, target.Empty())

	if len(bGroup.ExportIncludes["a"]) != 1 || bGroup.ExportIncludes["a"][0] != "inc" {
		t.Errorf("expected b to see a's exported include dir")
	}
	if _, ok := cGroup.ExportIncludes["a"]; ok {
		t.Errorf("expected c to not see a's exported include dir (not a direct dependency)")
	}
}

func TestPackageSetNoDepsIncludesReverseClosure(t *testing.T) {
	deps := map[string][]string{
		"root": {"a"},
		"a":    {"b"},
		"b":    {},
		"x":    {"b"},
	}
	set := PackageSet(deps, "root", []string{"b"}, nil, true)
	for _, want := range []string{"root", "b", "a", "x"} {
		if !set[want] {
			t.Errorf("expected %q in no-deps reverse closure, got %v", want, set)
		}
	}
}

func TestPackageSetExcludeUnlessIncluded(t *testing.T) {
	deps := map[string][]string{"root": {"a", "b"}}
	set := PackageSet(deps, "root", []string{"b"}, []string{"a", "b"}, false)
	if set["a"] {
		t.Errorf("expected a excluded")
	}
	if !set["b"] {
		t.Errorf("expected include to dominate exclude for b")
	}
}
