// Package manifest defines the on-disk manifest, lockfile and config
// shapes and their parsing/validation. The two-stage
// partial-then-validated parsing pattern and the mutually-exclusive-field
// validation rules follow a partial structs-decoded-first,
// validated-into-a-stricter-shape-second approach.
package manifest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/pulp-platform/bender-sub000/berr"
	"github.com/pulp-platform/bender-sub000/srcgroup"
	"github.com/pulp-platform/bender-sub000/target"
	"github.com/pulp-platform/bender-sub000/version"
)

// Package describes the package block of a manifest.
type Package struct {
	Name    string   `yaml:"name"`
	Authors []string `yaml:"authors,omitempty"`
}

// DependencyKind distinguishes which variant of a dependency spec was
// declared.
type DependencyKind int

const (
	DepPath DependencyKind = iota
	DepGitRevision
	DepGitVersion
	DepVersion
	DepRegistry
)

// Dependency is a single entry of a manifest's dependencies map.
type Dependency struct {
	Kind       DependencyKind
	Path       string
	Git        string
	Revision   string
	Requirement string
	Targets    []string // passed targets, OR'd into this dependency's target set

	// BasePkg names the git-sourced package whose checkout directory
	// Path is relative to, set when a path dependency is declared
	// inside a git dependency's manifest. Empty means Path is relative
	// to the root project directory.
	BasePkg string
}

// rawDependency is the on-wire shape: either a bare semver-requirement
// scalar, or a mapping with mutually-exclusive path/git+rev/git+version
// fields.
type rawDependency struct {
	scalar  string
	isScalar bool

	Path    string   `yaml:"path,omitempty"`
	Git     string   `yaml:"git,omitempty"`
	Rev     string   `yaml:"rev,omitempty"`
	Version string   `yaml:"version,omitempty"`
	Targets []string `yaml:"targets,omitempty"`
}

func (r *rawDependency) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		r.isScalar = true
		return value.Decode(&r.scalar)
	}
	type plain rawDependency
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*r = rawDependency(p)
	return nil
}

// toDependency validates and converts a raw dependency spec into its
// resolved variant: path cannot combine with git/rev/version; a git
// dependency needs exactly one of rev or version.
func toDependency(name string, r rawDependency) (Dependency, error) {
	if r.isScalar {
		return Dependency{Kind: DepVersion, Requirement: r.scalar}, nil
	}
	hasPath := r.Path != ""
	hasGit := r.Git != ""
	hasRev := r.Rev != ""
	hasVersion := r.Version != ""

	if hasPath {
		if hasGit || hasRev || hasVersion {
			return Dependency{}, berr.Newf(berr.Validate, "dependency %q: path cannot be combined with git, rev or version", name)
		}
		return Dependency{Kind: DepPath, Path: r.Path, Targets: r.Targets}, nil
	}
	if hasGit {
		if hasRev == hasVersion {
			return Dependency{}, berr.Newf(berr.Validate, "dependency %q: git dependency needs exactly one of rev or version", name)
		}
		if hasRev {
			return Dependency{Kind: DepGitRevision, Git: r.Git, Revision: r.Rev, Targets: r.Targets}, nil
		}
		return Dependency{Kind: DepGitVersion, Git: r.Git, Requirement: r.Version, Targets: r.Targets}, nil
	}
	if hasVersion {
		return Dependency{Kind: DepVersion, Requirement: r.Version, Targets: r.Targets}, nil
	}
	return Dependency{}, berr.Newf(berr.Validate, "dependency %q: must specify one of path, git+rev, git+version or version", name)
}

// Workspace configures a shared checkout directory and package links.
type Workspace struct {
	CheckoutDir  string            `yaml:"checkout_dir,omitempty"`
	PackageLinks map[string]string `yaml:"package_links,omitempty"`
}

// Manifest is a validated package manifest (Bender.yml).
type Manifest struct {
	Package           Package
	Dependencies      map[string]Dependency
	Sources           *srcgroup.Tree
	ExportIncludeDirs []string
	Plugins           map[string]string
	Frozen            bool
	Workspace         Workspace
}

// rawManifest is the on-wire shape decoded directly from YAML.
type rawManifest struct {
	Package           Package                  `yaml:"package"`
	Dependencies      map[string]rawDependency `yaml:"dependencies,omitempty"`
	Sources           *srcgroup.RawTree        `yaml:"sources,omitempty"`
	ExportIncludeDirs []string                 `yaml:"export_include_dirs,omitempty"`
	Plugins           map[string]string        `yaml:"plugins,omitempty"`
	Frozen            bool                     `yaml:"frozen,omitempty"`
	Workspace         Workspace                `yaml:"workspace,omitempty"`
}

// ReadManifest parses and validates a manifest from r.
func ReadManifest(r io.Reader) (*Manifest, error) {
	var raw rawManifest
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return nil, berr.Wrap(berr.Parse, err, "failed to parse manifest")
	}
	if raw.Package.Name == "" {
		return nil, berr.New(berr.Validate, "manifest is missing a package name")
	}

	deps := make(map[string]Dependency, len(raw.Dependencies))
	for name, r := range raw.Dependencies {
		d, err := toDependency(name, r)
		if err != nil {
			return nil, err
		}
		deps[name] = d
	}

	var sources *srcgroup.Tree
	if raw.Sources != nil {
		var err error
		sources, err = raw.Sources.Resolve(raw.Package.Name)
		if err != nil {
			return nil, err
		}
	}

	return &Manifest{
		Package:           raw.Package,
		Dependencies:      deps,
		Sources:           sources,
		ExportIncludeDirs: raw.ExportIncludeDirs,
		Plugins:           raw.Plugins,
		Frozen:            raw.Frozen,
		Workspace:         raw.Workspace,
	}, nil
}

// ReadManifestFile reads and validates the manifest at path.
func ReadManifestFile(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, berr.Wrapf(berr.Io, err, "failed to open manifest %s", path)
	}
	defer f.Close()
	m, err := ReadManifest(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return m, nil
}

// DependencyConstraint describes the constraint a dependency declaration
// places on a candidate's version universe, independent of which
// dependent declared it (used by the resolver to intersect constraints
// from multiple dependents of the same package).
type DependencyConstraint struct {
	Kind DependencyKind
	Req  version.Requirement // valid for DepVersion/DepGitVersion
	Rev  string              // valid for DepGitRevision
}

func (d Dependency) String() string {
	switch d.Kind {
	case DepPath:
		return "path:" + d.Path
	case DepGitRevision:
		return fmt.Sprintf("git:%s@%s", d.Git, d.Revision)
	case DepGitVersion:
		return fmt.Sprintf("git:%s %s", d.Git, d.Requirement)
	case DepVersion:
		return d.Requirement
	default:
		return "registry"
	}
}

// TargetSpec returns the wildcard target expression: manifests declare
// passed targets as a plain name list per dependency (Targets), not a
// predicate, so this always matches. Callers union the declared names
// across all of a dependency's dependents into a target.Set themselves
// (see Session.Sources and srcgroup.Group.PassedTargets).
func (d Dependency) TargetSpec() target.Spec { return target.Wildcard() }
