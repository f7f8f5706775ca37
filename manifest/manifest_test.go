package manifest

import (
	"strings"
	"testing"
)

func TestReadManifestScalarVersionDependency(t *testing.T) {
	m, err := ReadManifest(strings.NewReader(`
package:
  name: root
dependencies:
  lib: "^1.0"
`))
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	dep, ok := m.Dependencies["lib"]
	if !ok {
		t.Fatalf("expected dependency %q", "lib")
	}
	if dep.Kind != DepVersion || dep.Requirement != "^1.0" {
		t.Errorf("got %+v, want DepVersion ^1.0", dep)
	}
}

func TestReadManifestGitRevisionAndVersion(t *testing.T) {
	m, err := ReadManifest(strings.NewReader(`
package:
  name: root
dependencies:
  a:
    git: https://example.com/a.git
    rev: deadbeef
  b:
    git: https://example.com/b.git
    version: ^2.0
    targets: [sim]
`))
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	a := m.Dependencies["a"]
	if a.Kind != DepGitRevision || a.Revision != "deadbeef" {
		t.Errorf("got %+v, want DepGitRevision deadbeef", a)
	}
	b := m.Dependencies["b"]
	if b.Kind != DepGitVersion || b.Requirement != "^2.0" || len(b.Targets) != 1 || b.Targets[0] != "sim" {
		t.Errorf("got %+v, want DepGitVersion ^2.0 with passed target sim", b)
	}
}

func TestReadManifestPathDependency(t *testing.T) {
	m, err := ReadManifest(strings.NewReader(`
package:
  name: root
dependencies:
  lib:
    path: ../lib
`))
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if got := m.Dependencies["lib"]; got.Kind != DepPath || got.Path != "../lib" {
		t.Errorf("got %+v, want DepPath ../lib", got)
	}
}

func TestReadManifestRejectsPathCombinedWithGit(t *testing.T) {
	_, err := ReadManifest(strings.NewReader(`
package:
  name: root
dependencies:
  lib:
    path: ../lib
    git: https://example.com/lib.git
    rev: deadbeef
`))
	if err == nil {
		t.Fatal("expected a validation error")
	}
}

func TestReadManifestRejectsGitWithoutRevOrVersion(t *testing.T) {
	_, err := ReadManifest(strings.NewReader(`
package:
  name: root
dependencies:
  lib:
    git: https://example.com/lib.git
`))
	if err == nil {
		t.Fatal("expected a validation error for git with neither rev nor version")
	}
}

func TestReadManifestRejectsGitWithBothRevAndVersion(t *testing.T) {
	_, err := ReadManifest(strings.NewReader(`
package:
  name: root
dependencies:
  lib:
    git: https://example.com/lib.git
    rev: deadbeef
    version: ^1.0
`))
	if err == nil {
		t.Fatal("expected a validation error for git with both rev and version")
	}
}

func TestReadManifestRequiresPackageName(t *testing.T) {
	_, err := ReadManifest(strings.NewReader(`
package:
  authors: [someone]
`))
	if err == nil {
		t.Fatal("expected an error for a missing package name")
	}
}

func TestReadManifestEmptyDependenciesIsValid(t *testing.T) {
	m, err := ReadManifest(strings.NewReader(`
package:
  name: root
`))
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if len(m.Dependencies) != 0 {
		t.Errorf("expected no dependencies, got %v", m.Dependencies)
	}
}

func TestReadManifestParsesSourcesTree(t *testing.T) {
	m, err := ReadManifest(strings.NewReader(`
package:
  name: root
export_include_dirs: [include]
sources:
  include_dirs: [src]
  files:
    - a.sv
    - target: fpga
      files:
        - { File: b.vhd, type: vhdl }
`))
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if m.Sources == nil {
		t.Fatal("expected a parsed sources tree")
	}
	if len(m.Sources.Nodes) != 2 {
		t.Fatalf("expected 2 top-level nodes, got %d", len(m.Sources.Nodes))
	}
	if len(m.ExportIncludeDirs) != 1 || m.ExportIncludeDirs[0] != "include" {
		t.Errorf("expected export_include_dirs [include], got %v", m.ExportIncludeDirs)
	}
}

func TestReadManifestFrozenAndWorkspace(t *testing.T) {
	m, err := ReadManifest(strings.NewReader(`
package:
  name: root
frozen: true
workspace:
  checkout_dir: deps
  package_links:
    lib: ../lib-checkout
`))
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if !m.Frozen {
		t.Error("expected frozen to be true")
	}
	if m.Workspace.CheckoutDir != "deps" || m.Workspace.PackageLinks["lib"] != "../lib-checkout" {
		t.Errorf("got workspace %+v", m.Workspace)
	}
}
