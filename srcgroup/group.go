package srcgroup

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/karrick/godirwalk"

	"github.com/pulp-platform/bender-sub000/berr"
	"github.com/pulp-platform/bender-sub000/target"
)

// Group binds a manifest's Tree to the package and dependency context
// the session façade computes for it: the exported include dirs it may
// see from its own direct dependencies (one hop only), and the targets
// its dependents have passed to it.
type Group struct {
	Package        string
	Version        string
	Independent    bool
	Target         target.Spec
	IncludeDirs    []string
	Defines        map[string]*string
	ExportIncludes map[string][]string // dep name -> include dirs it exports to Package
	PassedTargets  target.Set
	Nodes          []Item
}

// Item is either a leaf File or a nested Group.
type Item struct {
	File *File
	Sub  *Group
}

// Build wraps tree with the package/dependency context the façade has
// computed, recursively binding every nested Tree node into a nested
// Group that shares the same package identity (a manifest's nested
// source groups all belong to the one package that declared them).
func Build(tree *Tree, pkg, version string, exportIncludes map[string][]string, passed target.Set) *Group {
	g := &Group{
		Package:        pkg,
		Version:        version,
		Independent:    true,
		Target:         tree.Target,
		IncludeDirs:    tree.IncludeDirs,
		Defines:        tree.Defines,
		ExportIncludes: exportIncludes,
		PassedTargets:  passed,
	}
	for _, n := range tree.Nodes {
		if n.File != nil {
			g.Nodes = append(g.Nodes, Item{File: n.File})
			continue
		}
		g.Nodes = append(g.Nodes, Item{Sub: Build(n.Sub, pkg, version, exportIncludes, passed)})
	}
	return g
}

// FilterTargets keeps g (and recursively its nested groups) only where
// the target predicate matches ts unioned with any targets passed to
// this package. Returns nil if g itself is filtered out.
func (g *Group) FilterTargets(ts target.Set) *Group {
	eff := ts
	if !g.PassedTargets.IsEmpty() {
		eff = target.Union(ts, g.PassedTargets)
	}
	if !g.Target.Matches(eff) {
		return nil
	}
	out := *g
	out.Nodes = nil
	for _, item := range g.Nodes {
		if item.File != nil {
			out.Nodes = append(out.Nodes, item)
			continue
		}
		if sub := item.Sub.FilterTargets(ts); sub != nil {
			out.Nodes = append(out.Nodes, Item{Sub: sub})
		}
	}
	return &out
}

// AssignTarget adds name to every wildcard-predicate group reachable
// from g, recursively.
func (g *Group) AssignTarget(name string) *Group {
	out := *g
	if g.Target.IsWildcard() {
		out.Target = target.Name(name)
	}
	out.Nodes = nil
	for _, item := range g.Nodes {
		if item.File != nil {
			out.Nodes = append(out.Nodes, item)
			continue
		}
		out.Nodes = append(out.Nodes, Item{Sub: item.Sub.AssignTarget(name)})
	}
	return &out
}

// Flat is a leaf-only, flattened source group: the result of inlining
// every nested group under g, merging include dirs and defines down
// the tree (children see their ancestors' include dirs and defines,
// with their own declarations appended/overriding).
type Flat struct {
	Package        string
	Version        string
	Target         target.Spec
	IncludeDirs    []string
	Defines        map[string]*string
	ExportIncludes map[string][]string
	PassedTargets  target.Set
	Files          []File
}

// Flatten recursively inlines nested groups into a linear sequence of
// leaf-only Flat entries, in declaration order.
func (g *Group) Flatten() []Flat {
	return g.flatten(nil, nil)
}

func (g *Group) flatten(parentIncludeDirs []string, parentDefines map[string]*string) []Flat {
	incDirs := mergeIncludeDirs(parentIncludeDirs, g.IncludeDirs)
	defines := mergeDefines(parentDefines, g.Defines)

	var out []Flat
	var files []File
	flush := func() {
		if len(files) == 0 {
			return
		}
		out = append(out, Flat{
			Package: g.Package, Version: g.Version, Target: g.Target,
			IncludeDirs: incDirs, Defines: defines, ExportIncludes: g.ExportIncludes,
			PassedTargets: g.PassedTargets, Files: files,
		})
		files = nil
	}
	for _, item := range g.Nodes {
		if item.File != nil {
			files = append(files, *item.File)
			continue
		}
		flush()
		out = append(out, item.Sub.flatten(incDirs, defines)...)
	}
	flush()
	return out
}

func mergeIncludeDirs(parent, own []string) []string {
	if len(parent) == 0 {
		return own
	}
	out := append([]string(nil), parent...)
	out = append(out, own...)
	return out
}

func mergeDefines(parent, own map[string]*string) map[string]*string {
	if len(parent) == 0 && len(own) == 0 {
		return nil
	}
	out := make(map[string]*string, len(parent)+len(own))
	for k, v := range parent {
		out[k] = v
	}
	for k, v := range own {
		out[k] = v
	}
	return out
}

// fingerprint renders the fields a Flat must match on to be coalesced
// by Simplify: package, target, include dirs, defines, exported
// includes and passed targets.
func (f Flat) fingerprint() string {
	var b strings.Builder
	b.WriteString(f.Package)
	b.WriteByte(0)
	b.WriteString(f.Target.String())
	b.WriteByte(0)
	b.WriteString(strings.Join(f.IncludeDirs, ","))
	b.WriteByte(0)
	keys := make([]string, 0, len(f.Defines))
	for k := range f.Defines {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := f.Defines[k]
		b.WriteString(k)
		b.WriteByte('=')
		if v != nil {
			b.WriteString(*v)
		}
		b.WriteByte(';')
	}
	b.WriteByte(0)
	depKeys := make([]string, 0, len(f.ExportIncludes))
	for k := range f.ExportIncludes {
		depKeys = append(depKeys, k)
	}
	sort.Strings(depKeys)
	for _, k := range depKeys {
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(strings.Join(f.ExportIncludes[k], ","))
		b.WriteByte(';')
	}
	b.WriteByte(0)
	b.WriteString(strings.Join(f.PassedTargets.Names(), ","))
	return b.String()
}

// Simplify coalesces adjacent Flat entries sharing the same
// fingerprint into one, merging their file lists. Idempotent: running
// it again on its own output changes nothing, since no two adjacent
// results share a fingerprint after the first pass.
func Simplify(flats []Flat) []Flat {
	if len(flats) == 0 {
		return nil
	}
	out := make([]Flat, 0, len(flats))
	cur := flats[0]
	for _, f := range flats[1:] {
		if f.fingerprint() == cur.fingerprint() {
			cur.Files = append(append([]File(nil), cur.Files...), f.Files...)
			continue
		}
		out = append(out, cur)
		cur = f
	}
	out = append(out, cur)
	return out
}

// AvailTargets returns every target name referenced anywhere in g's
// tree, deduplicated and sorted.
func (g *Group) AvailTargets() []string {
	set := map[string]struct{}{}
	var walk func(*Group)
	walk = func(g *Group) {
		for _, n := range target.Names(g.Target) {
			set[n] = struct{}{}
		}
		for _, item := range g.Nodes {
			if item.Sub != nil {
				walk(item.Sub)
			}
		}
	}
	walk(g)
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// PackageSet computes the effective set of package names a render
// should include, given the full package->direct-dependencies graph
// (deps), the root package name, and include/exclude filters.
// include dominates exclude; when noDeps is set the result is {root} ∪
// include ∪ every package that transitively depends on a package in
// include (its reverse-dependency closure).
func PackageSet(deps map[string][]string, root string, include, exclude []string, noDeps bool) map[string]bool {
	all := map[string]bool{root: true}
	for pkg, ds := range deps {
		all[pkg] = true
		for _, d := range ds {
			all[d] = true
		}
	}

	if noDeps {
		reverse := map[string][]string{}
		for pkg, ds := range deps {
			for _, d := range ds {
				reverse[d] = append(reverse[d], pkg)
			}
		}
		result := map[string]bool{root: true}
		for _, n := range include {
			result[n] = true
		}
		queue := append([]string(nil), include...)
		for len(queue) > 0 {
			n := queue[0]
			queue = queue[1:]
			for _, dependent := range reverse[n] {
				if !result[dependent] {
					result[dependent] = true
					queue = append(queue, dependent)
				}
			}
		}
		return result
	}

	result := map[string]bool{}
	excluded := map[string]bool{}
	for _, n := range exclude {
		excluded[n] = true
	}
	for n := range all {
		if !excluded[n] {
			result[n] = true
		}
	}
	for _, n := range include {
		result[n] = true
	}
	return result
}

// FilterPackages drops groups whose owning package is not in the
// effective package set computed by PackageSet.
func FilterPackages(groups []*Group, effective map[string]bool) []*Group {
	var out []*Group
	for _, g := range groups {
		if effective[g.Package] {
			out = append(out, g)
		}
	}
	return out
}

// ValidateFilesExist checks that every file referenced by flats is
// present under root, which is a dependency's checkout directory. It
// walks root once with godirwalk rather than stat-ing each declared
// file individually, since a package can declare thousands of files
// across many nested groups.
func ValidateFilesExist(flats []Flat, root string) error {
	present := map[string]struct{}{}
	err := godirwalk.Walk(root, &godirwalk.Options{
		Callback: func(osPathname string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(root, osPathname)
			if err != nil {
				return err
			}
			present[filepath.ToSlash(rel)] = struct{}{}
			return nil
		},
		Unsorted: true,
	})
	if err != nil {
		return berr.Wrapf(berr.Io, err, "failed to walk %s", root)
	}
	var missing []string
	for _, f := range flats {
		for _, file := range f.Files {
			if _, ok := present[filepath.ToSlash(file.Path)]; !ok {
				missing = append(missing, file.Path)
			}
		}
	}
	if len(missing) > 0 {
		return berr.Newf(berr.Validate, "declared source file(s) not found under %s: %s", root, strings.Join(missing, ", "))
	}
	return nil
}
