package manifest

import (
	"io"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/pulp-platform/bender-sub000/berr"
)

// LockedSourceKind distinguishes the three ways a locked package may be
// obtained.
type LockedSourceKind int

const (
	LockedPath LockedSourceKind = iota
	LockedGit
	LockedRegistry
)

// LockedSource is the source half of a locked package entry.
type LockedSource struct {
	Kind LockedSourceKind
	Path string
	Git  string
}

// LockedPackage is one entry of a lockfile.
type LockedPackage struct {
	Revision     string
	Version      string
	Source       LockedSource
	Dependencies []string
}

// Lockfile is the resolver's committed output: every dependency pinned
// to a concrete revision, closed under the dependency relation.
type Lockfile struct {
	Packages map[string]LockedPackage
}

// rawLockedSource mirrors the `{ Path: ... } | { Git: ... } | { Registry: ... }`
// on-wire shape.
type rawLockedSource struct {
	Path     *string `yaml:"Path,omitempty"`
	Git      *string `yaml:"Git,omitempty"`
	Registry *string `yaml:"Registry,omitempty"`
}

type rawLockedPackage struct {
	Revision     string          `yaml:"revision,omitempty"`
	Version      string          `yaml:"version,omitempty"`
	Source       rawLockedSource `yaml:"source"`
	Dependencies []string        `yaml:"dependencies,omitempty"`
}

type rawLockfile struct {
	Packages map[string]rawLockedPackage `yaml:"packages"`
}

// ReadLockfile parses and validates a lockfile from r, resolving any
// relative Path source against root (the directory containing the
// lockfile) so the in-memory form always holds absolute paths.
func ReadLockfile(r io.Reader, root string) (*Lockfile, error) {
	var raw rawLockfile
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return nil, berr.Wrap(berr.Parse, err, "failed to parse lockfile")
	}

	lf := &Lockfile{Packages: make(map[string]LockedPackage, len(raw.Packages))}
	for name, rp := range raw.Packages {
		src, err := toLockedSource(name, rp.Source, root)
		if err != nil {
			return nil, err
		}
		lf.Packages[name] = LockedPackage{
			Revision:     rp.Revision,
			Version:      rp.Version,
			Source:       src,
			Dependencies: rp.Dependencies,
		}
	}

	for name, pkg := range lf.Packages {
		for _, dep := range pkg.Dependencies {
			if _, ok := lf.Packages[dep]; !ok {
				return nil, berr.Newf(berr.Lockfile, "package %q depends on %q, which has no lockfile entry; run the update command", name, dep)
			}
		}
	}
	return lf, nil
}

func toLockedSource(name string, r rawLockedSource, root string) (LockedSource, error) {
	n := 0
	if r.Path != nil {
		n++
	}
	if r.Git != nil {
		n++
	}
	if r.Registry != nil {
		n++
	}
	if n != 1 {
		return LockedSource{}, berr.Newf(berr.Lockfile, "package %q: source must specify exactly one of Path, Git or Registry", name)
	}
	switch {
	case r.Path != nil:
		p := *r.Path
		if !filepath.IsAbs(p) {
			p = filepath.Join(root, p)
		}
		return LockedSource{Kind: LockedPath, Path: p}, nil
	case r.Git != nil:
		return LockedSource{Kind: LockedGit, Git: *r.Git}, nil
	default:
		return LockedSource{Kind: LockedRegistry, Git: *r.Registry}, nil
	}
}

// ReadLockfileFile reads the lockfile at path.
func ReadLockfileFile(path string) (*Lockfile, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, berr.Wrapf(berr.Io, err, "failed to open lockfile %s", path)
	}
	defer f.Close()
	return ReadLockfile(f, filepath.Dir(path))
}

// Write renders lf as YAML to w. Path sources are written relative to
// root when they fall under it, absolute otherwise, so that Write/Read
// round-trips modulo root prefix as required.
func (lf *Lockfile) Write(w io.Writer, root string) error {
	raw := rawLockfile{Packages: make(map[string]rawLockedPackage, len(lf.Packages))}
	names := make([]string, 0, len(lf.Packages))
	for name := range lf.Packages {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		pkg := lf.Packages[name]
		var src rawLockedSource
		switch pkg.Source.Kind {
		case LockedPath:
			p := pkg.Source.Path
			if rel, err := filepath.Rel(root, p); err == nil && !isOutsideRoot(rel) {
				p = rel
			}
			src.Path = &p
		case LockedGit:
			src.Git = &pkg.Source.Git
		default:
			src.Registry = &pkg.Source.Git
		}
		raw.Packages[name] = rawLockedPackage{
			Revision:     pkg.Revision,
			Version:      pkg.Version,
			Source:       src,
			Dependencies: pkg.Dependencies,
		}
	}

	enc := yaml.NewEncoder(w)
	defer enc.Close()
	if err := enc.Encode(raw); err != nil {
		return berr.Wrap(berr.Io, err, "failed to write lockfile")
	}
	return nil
}

func isOutsideRoot(rel string) bool {
	return len(rel) >= 2 && rel[:2] == ".."
}
