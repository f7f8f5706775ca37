// Package resolve implements the dependency resolver: constraint
// satisfaction over per-dependency version universes, producing a
// lockfile, via worklist/frontier propagation across the dependency
// graph rather than general backtracking search.
package resolve

import (
	"context"
	"fmt"
	"sort"

	"github.com/Masterminds/semver"

	"github.com/pulp-platform/bender-sub000/berr"
	"github.com/pulp-platform/bender-sub000/diag"
	"github.com/pulp-platform/bender-sub000/manifest"
	"github.com/pulp-platform/bender-sub000/version"
)

// Pick is the concrete version resolved for a dependency.
type Pick struct {
	IsPath   bool
	Path     string
	Revision string
	Version  *semver.Version
}

func (p Pick) String() string {
	switch {
	case p.IsPath:
		return "path:" + p.Path
	case p.Version != nil:
		return p.Version.Original()
	default:
		return p.Revision
	}
}

// Constraint is one dependent's requirement on a named dependency.
type Constraint struct {
	Dependent string // name of the package that declared this constraint, for diagnostics
	Kind      manifest.DependencyKind
	Req       version.Requirement // valid for DepVersion/DepGitVersion
	Rev       string              // valid for DepGitRevision
}

// Source resolves version universes and manifests on behalf of the
// resolver; the façade implements this over the git object cache and
// checkout engine.
type Source interface {
	// Versions returns the version universe for the named dependency,
	// described by one representative declaration (used for its URL).
	Versions(ctx context.Context, name string, dep manifest.Dependency) (version.Universe, error)
	// LoadManifest returns the manifest of the named dependency once
	// picked, used to discover its transitive dependencies.
	LoadManifest(ctx context.Context, name string, dep manifest.Dependency, pick Pick) (*manifest.Manifest, error)
	// ResolvePathDependency returns the filesystem path a path
	// dependency resolves to: relative to the project root if basePkg
	// is empty, or relative to basePkg's checkout directory when the
	// path dependency was declared inside a git dependency's manifest.
	ResolvePathDependency(basePkg, path string) string
}

// WorkspaceProbe reports the state of a dependency's working-tree
// checkout under a configured workspace checkout_dir, used to implement
// the resolver's tolerance for user-managed checkouts (step 7).
type WorkspaceProbe interface {
	// Probe returns ok=false if there is no user-managed checkout for
	// name. When ok=true, head is its current revision and clean
	// reports whether it has no local modifications.
	Probe(name string) (head string, clean bool, ok bool)
}

type nodeState int

const (
	stateOpen nodeState = iota
	stateConstrained
	stateLocked
)

type node struct {
	name        string
	state       nodeState
	dep         manifest.Dependency // representative declaration (URL/path)
	constraints []Constraint
	pick        Pick
}

// Resolver resolves a root manifest's dependency tree into a lockfile.
type Resolver struct {
	source    Source
	overrides map[string]manifest.Dependency
	workspace WorkspaceProbe
	force     bool
	updateSet map[string]bool // names the caller explicitly wants re-resolved
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithOverrides sets the per-name override layer (collected from the
// config file search path).
func WithOverrides(overrides map[string]manifest.Dependency) Option {
	return func(r *Resolver) { r.overrides = overrides }
}

// WithWorkspaceProbe sets the workspace checkout tolerance hook.
func WithWorkspaceProbe(p WorkspaceProbe) Option {
	return func(r *Resolver) { r.workspace = p }
}

// WithForce disables workspace-checkout tolerance: every dependency is
// resolved fresh regardless of a pre-existing working tree.
func WithForce(force bool) Option {
	return func(r *Resolver) { r.force = force }
}

// WithUpdateSet restricts which named dependencies may override a
// tolerated workspace checkout.
func WithUpdateSet(names []string) Option {
	return func(r *Resolver) {
		r.updateSet = make(map[string]bool, len(names))
		for _, n := range names {
			r.updateSet[n] = true
		}
	}
}

// New returns a resolver pulling version universes and manifests from
// source.
func New(source Source, opts ...Option) *Resolver {
	r := &Resolver{source: source, overrides: map[string]manifest.Dependency{}}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Result is the resolver's output: a lockfile plus the dependency graph
// by name, for the package graph ranker to consume.
type Result struct {
	Lockfile *manifest.Lockfile
	Graph    map[string][]string
}

// Resolve resolves root (named rootName) into a lockfile.
func (r *Resolver) Resolve(ctx context.Context, rootName string, root *manifest.Manifest) (*Result, error) {
	nodes := map[string]*node{}
	graph := map[string][]string{}
	var queue []string

	addConstraint := func(dependent, name string, dep manifest.Dependency) error {
		if ov, ok := r.overrides[name]; ok {
			dep = ov
		}
		n, exists := nodes[name]
		if !exists {
			n = &node{name: name, state: stateOpen, dep: dep}
			nodes[name] = n
			queue = append(queue, name)
		}
		c := constraintOf(dependent, dep)
		if n.state == stateLocked {
			if !satisfies(n.pick, c) {
				return berr.Newf(berr.Resolve, "unsatisfiable constraint on %q: %s requires %s, but %s is already locked to %s",
					name, dependent, describeConstraint(c), name, n.pick)
			}
			return nil
		}
		n.constraints = append(n.constraints, c)
		n.state = stateConstrained
		return nil
	}

	for name, dep := range root.Dependencies {
		graph[rootName] = append(graph[rootName], name)
		if err := addConstraint(rootName, name, dep); err != nil {
			return nil, err
		}
	}

	limit := 0
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		n := nodes[name]
		if n.state == stateLocked {
			continue
		}

		pick, err := r.pickOne(ctx, name, n)
		if err != nil {
			return nil, err
		}
		n.pick = pick
		n.state = stateLocked

		depManifest, err := r.source.LoadManifest(ctx, name, n.dep, pick)
		if err != nil {
			return nil, err
		}
		if depManifest == nil {
			continue
		}
		for depName, dep := range depManifest.Dependencies {
			dep = rewritePathDependency(dep, depName, name, pick)
			graph[name] = append(graph[name], depName)
			if err := addConstraint(name, depName, dep); err != nil {
				return nil, err
			}
		}

		limit++
		if limit > 4*(len(nodes)+1) {
			return nil, berr.Newf(berr.Resolve, "dependency graph did not converge, likely cyclic: %v", frontierNames(queue))
		}
	}

	if err := detectCycle(graph, rootName); err != nil {
		return nil, err
	}

	lf := &manifest.Lockfile{Packages: make(map[string]manifest.LockedPackage, len(nodes))}
	for name, n := range nodes {
		deps := make([]string, len(graph[name]))
		copy(deps, graph[name])
		sort.Strings(deps)
		lf.Packages[name] = manifest.LockedPackage{
			Revision:     n.pick.Revision,
			Version:      pickVersionString(n.pick),
			Source:       lockedSourceOf(n.dep, n.pick),
			Dependencies: deps,
		}
	}

	return &Result{Lockfile: lf, Graph: graph}, nil
}

func pickVersionString(p Pick) string {
	if p.Version != nil {
		return p.Version.Original()
	}
	return ""
}

func lockedSourceOf(dep manifest.Dependency, pick Pick) manifest.LockedSource {
	if pick.IsPath {
		return manifest.LockedSource{Kind: manifest.LockedPath, Path: pick.Path}
	}
	return manifest.LockedSource{Kind: manifest.LockedGit, Git: dep.Git}
}

func constraintOf(dependent string, dep manifest.Dependency) Constraint {
	c := Constraint{Dependent: dependent}
	switch dep.Kind {
	case manifest.DepPath:
		c.Kind = manifest.DepPath
	case manifest.DepGitRevision:
		c.Kind = manifest.DepGitRevision
		c.Rev = dep.Revision
	case manifest.DepGitVersion:
		c.Kind = manifest.DepGitVersion
		if req, err := version.ParseRequirement(dep.Requirement); err == nil {
			c.Req = req
		}
	default:
		c.Kind = manifest.DepVersion
		if req, err := version.ParseRequirement(dep.Requirement); err == nil {
			c.Req = req
		}
	}
	return c
}

func describeConstraint(c Constraint) string {
	switch c.Kind {
	case manifest.DepPath:
		return "a path dependency"
	case manifest.DepGitRevision:
		return "revision " + c.Rev
	default:
		return c.Req.String()
	}
}

func satisfies(p Pick, c Constraint) bool {
	switch c.Kind {
	case manifest.DepPath:
		return p.IsPath
	case manifest.DepGitRevision:
		return p.Revision == c.Rev
	default:
		return p.Version != nil && c.Req.Matches(p.Version)
	}
}

// pickOne selects the concrete version for a node: a path constraint
// wins outright; otherwise a pinned revision, or failing that the newest
// semver satisfying every version constraint, is picked, and a tolerated
// workspace checkout (see checkWorkspace) replaces either of those picks.
func (r *Resolver) pickOne(ctx context.Context, name string, n *node) (Pick, error) {
	for _, c := range n.constraints {
		if c.Kind == manifest.DepPath {
			return Pick{IsPath: true, Path: r.source.ResolvePathDependency(n.dep.BasePkg, n.dep.Path)}, nil
		}
	}

	var pinned *Constraint
	for i, c := range n.constraints {
		if c.Kind == manifest.DepGitRevision {
			if pinned != nil && pinned.Rev != c.Rev {
				return Pick{}, berr.Newf(berr.Resolve, "unsatisfiable constraint on %q: %s requires revision %s, but %s requires revision %s",
					name, pinned.Dependent, pinned.Rev, c.Dependent, c.Rev)
			}
			pinned = &n.constraints[i]
		}
	}

	universe, err := r.source.Versions(ctx, name, n.dep)
	if err != nil {
		return Pick{}, err
	}

	if pinned != nil {
		hash, ok := universe.ResolveRef(pinned.Rev)
		if !ok {
			return Pick{}, berr.Newf(berr.Resolve, "revision %q of %q not found", pinned.Rev, name)
		}
		if wp := r.checkWorkspace(name, hash); wp != nil {
			return *wp, nil
		}
		return Pick{Revision: hash}, nil
	}

	candidates := universe.Versions
	for _, c := range n.constraints {
		if c.Kind != manifest.DepVersion && c.Kind != manifest.DepGitVersion {
			continue
		}
		candidates = intersect(candidates, c.Req)
		if len(candidates) == 0 {
			return Pick{}, berr.Newf(berr.Resolve, "unsatisfiable version constraints on %q: no version satisfies all of: %s",
				name, joinConstraints(n.constraints))
		}
	}
	if len(candidates) == 0 {
		return Pick{}, berr.Newf(berr.Resolve, "no versions available for %q", name)
	}

	best := candidates[0]
	if wp := r.checkWorkspace(name, best.Hash); wp != nil {
		return *wp, nil
	}
	return Pick{Revision: best.Hash, Version: best.Version}, nil
}

func (r *Resolver) checkWorkspace(name, picked string) *Pick {
	if r.workspace == nil || r.force || r.updateSet[name] {
		return nil
	}
	head, clean, ok := r.workspace.Probe(name)
	if !ok {
		return nil
	}
	if !clean {
		// A dirty workspace checkout is tolerated and kept as-is, with a
		// warning.
		diag.Emit(diag.W(diag.CheckoutDirDirty, fmt.Sprintf("workspace checkout of %s has local changes and is kept at %s", name, head)))
	}
	return &Pick{Revision: head}
}

func intersect(entries []version.Entry, req version.Requirement) []version.Entry {
	var out []version.Entry
	for _, e := range entries {
		if req.Matches(e.Version) {
			out = append(out, e)
		}
	}
	return out
}

func joinConstraints(cs []Constraint) string {
	s := ""
	for i, c := range cs {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%s (from %s)", describeConstraint(c), c.Dependent)
	}
	return s
}

// rewritePathDependency tags a path-inside-a-git-dependency's Path as
// relative to parentName's checked-out directory instead of the root;
// it only applies when the parent itself was resolved from git, since a
// path dependency nested under a path parent is already relative to
// that parent's own directory on disk. The façade resolves BasePkg to
// an actual checkout directory once it knows where the parent landed.
func rewritePathDependency(dep manifest.Dependency, depName, parentName string, parentPick Pick) manifest.Dependency {
	if dep.Kind != manifest.DepPath || parentPick.IsPath {
		return dep
	}
	dep.BasePkg = parentName
	diag.Emit(diag.W(diag.PathDepInGitDep, fmt.Sprintf(
		"path dependency %q (%s) is resolved relative to git dependency %q's checkout directory, not the project root",
		depName, dep.Path, parentName)))
	return dep
}

func frontierNames(queue []string) []string {
	out := append([]string(nil), queue...)
	sort.Strings(out)
	return out
}

// detectCycle runs the same rank-propagation bound used by the package
// graph ranker (§4.5) over the resolution-time graph, so a cyclic
// dependency is reported with the exact frontier at failure instead of
// only a convergence timeout.
func detectCycle(graph map[string][]string, root string) error {
	ranks := map[string]int{root: 0}
	pending := []string{root}
	limit := 2 * (len(graph) + 1)
	for len(pending) > 0 {
		cur := pending
		pending = nil
		for _, id := range cur {
			minDepRank := ranks[id] + 1
			for _, dep := range graph[id] {
				if ranks[dep] <= minDepRank {
					ranks[dep] = minDepRank
					pending = append(pending, dep)
				}
				if ranks[dep] > limit {
					seen := map[string]bool{}
					var frontier []string
					for _, f := range append(append([]string(nil), cur...), pending...) {
						if !seen[f] {
							seen[f] = true
							frontier = append(frontier, f)
						}
					}
					return berr.Newf(berr.Resolve, "cyclic dependency detected among packages on the frontier: %v", frontierNames(frontier))
				}
			}
		}
	}
	return nil
}
