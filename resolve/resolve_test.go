package resolve

import (
	"context"
	"testing"

	"github.com/Masterminds/semver"

	"github.com/pulp-platform/bender-sub000/manifest"
	"github.com/pulp-platform/bender-sub000/version"
)

// fakeSource is an in-memory Source for tests: manifests and universes
// are keyed by dependency name.
type fakeSource struct {
	universes map[string]version.Universe
	manifests map[string]*manifest.Manifest
}

func (f *fakeSource) Versions(_ context.Context, name string, _ manifest.Dependency) (version.Universe, error) {
	return f.universes[name], nil
}

func (f *fakeSource) LoadManifest(_ context.Context, name string, _ manifest.Dependency, _ Pick) (*manifest.Manifest, error) {
	return f.manifests[name], nil
}

func (f *fakeSource) ResolvePathDependency(basePkg, path string) string {
	if basePkg != "" {
		return basePkg + "/" + path
	}
	return path
}

func mustVersion(t *testing.T, s string) *semver.Version {
	t.Helper()
	v, err := semver.NewVersion(s)
	if err != nil {
		t.Fatalf("bad version %q: %v", s, err)
	}
	return v
}

func TestResolvePicksNewestSatisfyingVersion(t *testing.T) {
	src := &fakeSource{
		universes: map[string]version.Universe{
			"lib": {Versions: []version.Entry{
				{Version: mustVersion(t, "2.0.0"), Hash: "h2"},
				{Version: mustVersion(t, "1.5.0"), Hash: "h15"},
				{Version: mustVersion(t, "1.0.0"), Hash: "h1"},
			}},
		},
		manifests: map[string]*manifest.Manifest{
			"lib": {Package: manifest.Package{Name: "lib"}},
		},
	}
	root := &manifest.Manifest{
		Package: manifest.Package{Name: "root"},
		Dependencies: map[string]manifest.Dependency{
			"lib": {Kind: manifest.DepVersion, Requirement: "^1.0"},
		},
	}
	r := New(src)
	res, err := r.Resolve(context.Background(), "root", root)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	got := res.Lockfile.Packages["lib"]
	if got.Revision != "h15" {
		t.Errorf("expected newest 1.x (h15), got %+v", got)
	}
}

func TestResolveIntersectsConstraintsFromMultipleDependents(t *testing.T) {
	src := &fakeSource{
		universes: map[string]version.Universe{
			"lib": {Versions: []version.Entry{
				{Version: mustVersion(t, "2.0.0"), Hash: "h2"},
				{Version: mustVersion(t, "1.5.0"), Hash: "h15"},
			}},
			"a": {Versions: []version.Entry{{Version: mustVersion(t, "1.0.0"), Hash: "ha"}}},
			"b": {Versions: []version.Entry{{Version: mustVersion(t, "1.0.0"), Hash: "hb"}}},
		},
		manifests: map[string]*manifest.Manifest{
			"lib": {Package: manifest.Package{Name: "lib"}},
			"a": {Package: manifest.Package{Name: "a"}, Dependencies: map[string]manifest.Dependency{
				"lib": {Kind: manifest.DepVersion, Requirement: "^1.0"},
			}},
			"b": {Package: manifest.Package{Name: "b"}, Dependencies: map[string]manifest.Dependency{
				"lib": {Kind: manifest.DepVersion, Requirement: "<2.0"},
			}},
		},
	}
	root := &manifest.Manifest{
		Package: manifest.Package{Name: "root"},
		Dependencies: map[string]manifest.Dependency{
			"a": {Kind: manifest.DepVersion, Requirement: "*"},
			"b": {Kind: manifest.DepVersion, Requirement: "*"},
		},
	}
	r := New(src)
	res, err := r.Resolve(context.Background(), "root", root)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := res.Lockfile.Packages["lib"].Revision; got != "h15" {
		t.Errorf("expected h15 satisfying both constraints, got %s", got)
	}
}

func TestResolveUnsatisfiableConflictingRevisions(t *testing.T) {
	src := &fakeSource{
		universes: map[string]version.Universe{
			"lib": {Refs: map[string]string{"r1": "r1", "r2": "r2"}, Revs: []string{"r1", "r2"}},
			"a":   {Versions: []version.Entry{{Version: mustVersion(t, "1.0.0"), Hash: "ha"}}},
			"b":   {Versions: []version.Entry{{Version: mustVersion(t, "1.0.0"), Hash: "hb"}}},
		},
		manifests: map[string]*manifest.Manifest{
			"a": {Package: manifest.Package{Name: "a"}, Dependencies: map[string]manifest.Dependency{
				"lib": {Kind: manifest.DepGitRevision, Revision: "r1"},
			}},
			"b": {Package: manifest.Package{Name: "b"}, Dependencies: map[string]manifest.Dependency{
				"lib": {Kind: manifest.DepGitRevision, Revision: "r2"},
			}},
		},
	}
	root := &manifest.Manifest{
		Package: manifest.Package{Name: "root"},
		Dependencies: map[string]manifest.Dependency{
			"a": {Kind: manifest.DepVersion, Requirement: "*"},
			"b": {Kind: manifest.DepVersion, Requirement: "*"},
		},
	}
	r := New(src)
	_, err := r.Resolve(context.Background(), "root", root)
	if err == nil {
		t.Fatalf("expected unsatisfiable error")
	}
}

func TestResolveOverrideReplacesDeclaredSource(t *testing.T) {
	src := &fakeSource{
		universes: map[string]version.Universe{
			"lib": {Versions: []version.Entry{{Version: mustVersion(t, "1.0.0"), Hash: "h1"}}},
		},
		manifests: map[string]*manifest.Manifest{
			"lib": {Package: manifest.Package{Name: "lib"}},
		},
	}
	root := &manifest.Manifest{
		Package: manifest.Package{Name: "root"},
		Dependencies: map[string]manifest.Dependency{
			"lib": {Kind: manifest.DepVersion, Requirement: "^1.0"},
		},
	}
	r := New(src, WithOverrides(map[string]manifest.Dependency{
		"lib": {Kind: manifest.DepPath, Path: "/local/lib"},
	}))
	res, err := r.Resolve(context.Background(), "root", root)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	got := res.Lockfile.Packages["lib"]
	if got.Source.Kind != manifest.LockedPath || got.Source.Path != "/local/lib" {
		t.Errorf("expected override to path dependency, got %+v", got)
	}
}

func TestResolveDetectsCycle(t *testing.T) {
	src := &fakeSource{
		manifests: map[string]*manifest.Manifest{
			"a": {Package: manifest.Package{Name: "a"}, Dependencies: map[string]manifest.Dependency{
				"b": {Kind: manifest.DepPath, Path: "../b"},
			}},
			"b": {Package: manifest.Package{Name: "b"}, Dependencies: map[string]manifest.Dependency{
				"a": {Kind: manifest.DepPath, Path: "../a"},
			}},
		},
	}
	root := &manifest.Manifest{
		Package: manifest.Package{Name: "root"},
		Dependencies: map[string]manifest.Dependency{
			"a": {Kind: manifest.DepPath, Path: "a"},
		},
	}
	r := New(src)
	_, err := r.Resolve(context.Background(), "root", root)
	if err == nil {
		t.Fatalf("expected cycle detection error")
	}
}
