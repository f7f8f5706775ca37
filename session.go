// Package bender ties together the manifest, git object cache, checkout
// engine, resolver, package graph ranker and source group algebra into a
// single session façade for one invocation of the tool.
package bender

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pulp-platform/bender-sub000/berr"
	"github.com/pulp-platform/bender-sub000/checkout"
	"github.com/pulp-platform/bender-sub000/diag"
	"github.com/pulp-platform/bender-sub000/gitcache"
	"github.com/pulp-platform/bender-sub000/gitproc"
	"github.com/pulp-platform/bender-sub000/interner"
	"github.com/pulp-platform/bender-sub000/log"
	"github.com/pulp-platform/bender-sub000/manifest"
	"github.com/pulp-platform/bender-sub000/rank"
	"github.com/pulp-platform/bender-sub000/resolve"
	"github.com/pulp-platform/bender-sub000/srcgroup"
	"github.com/pulp-platform/bender-sub000/target"
	"github.com/pulp-platform/bender-sub000/version"
)

// Session owns every mutable table a single invocation of the tool
// needs: the dependency interner and graph, the per-dependency manifest
// cache, the resolved lockfile and the ranked graph, alongside a
// read-only view of the root manifest and merged configuration. Checkout
// directories are not cached; checkoutDir recomputes them on every call.
type Session struct {
	Root     string
	Manifest *manifest.Manifest
	Config   manifest.Config
	LocalOnly bool

	log     *log.Logger
	invoker *gitproc.Invoker
	cache   *gitcache.Cache
	engine  *checkout.Engine

	mu            sync.Mutex
	table         *interner.Table
	graph         *interner.Graph
	manifestCache map[string]*manifest.Manifest // keyed by name+pick
	lockfile      *manifest.Lockfile
	ranked        [][]interner.Ref
}

// Options configures Open.
type Options struct {
	LocalOnly bool
	Force     bool
	Throttle  int
	Stderr    *os.File
}

// Open loads the root manifest and merged configuration at root and
// returns a session ready to resolve and check out its dependencies.
func Open(root string, opts Options) (*Session, error) {
	manifestPath := filepath.Join(root, "Bender.yml")
	m, err := manifest.ReadManifestFile(manifestPath)
	if err != nil {
		return nil, err
	}
	cfg, err := manifest.LoadConfig(root)
	if err != nil {
		return nil, err
	}

	throttle := opts.Throttle
	if throttle <= 0 {
		throttle = gitproc.DefaultThrottle
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := log.New(stderr)

	invoker := gitproc.New(throttle, opts.LocalOnly)
	cache := gitcache.New(cfg.Database, invoker, logger, opts.LocalOnly)
	engine := checkout.New(cache, invoker, logger, opts.LocalOnly)

	return &Session{
		Root:          root,
		Manifest:      m,
		Config:        cfg,
		LocalOnly:     opts.LocalOnly,
		log:           logger,
		invoker:       invoker,
		cache:         cache,
		engine:        engine,
		table:         interner.NewTable(),
		graph:         interner.NewGraph(),
		manifestCache: map[string]*manifest.Manifest{},
	}, nil
}

// CheckoutPath returns the working-tree directory bender checks a named
// git dependency out to, honoring package_links and a configured
// workspace checkout_dir.
func (s *Session) CheckoutPath(name string) string {
	return s.checkoutDir(name)
}

// LoadLockedManifest loads the manifest of a dependency already present
// in lf, at its locked revision or path.
func (s *Session) LoadLockedManifest(ctx context.Context, lf *manifest.Lockfile, name string) (*manifest.Manifest, error) {
	pkg, ok := lf.Packages[name]
	if !ok {
		return nil, berr.Newf(berr.Resolve, "package %q is not in the lockfile", name)
	}
	dep := manifest.Dependency{Kind: manifest.DepGitRevision, Git: pkg.Source.Git, Revision: pkg.Revision}
	pick := resolve.Pick{Revision: pkg.Revision}
	if pkg.Source.Kind == manifest.LockedPath {
		dep = manifest.Dependency{Kind: manifest.DepPath, Path: pkg.Source.Path}
		pick = resolve.Pick{IsPath: true, Path: pkg.Source.Path}
	}
	return s.LoadManifest(ctx, name, dep, pick)
}

// checkoutDir returns the working-tree directory for a git dependency,
// alongside package_links and the workspace checkout_dir override.
func (s *Session) checkoutDir(name string) string {
	if link, ok := s.Manifest.Workspace.PackageLinks[name]; ok {
		return filepath.Join(s.Root, link)
	}
	dir := s.Manifest.Workspace.CheckoutDir
	if dir == "" {
		dir = filepath.Join(s.Root, ".bender_working_dir")
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(s.Root, dir)
	}
	return filepath.Join(dir, name)
}

func (s *Session) openRepo(ctx context.Context, name string, dep manifest.Dependency) (*gitcache.Repo, error) {
	manifestInfo, _ := os.Stat(filepath.Join(s.Root, "Bender.yml"))
	mtime := time.Now()
	if manifestInfo != nil {
		mtime = manifestInfo.ModTime()
	}
	return s.cache.Open(ctx, name, dep.Git, mtime, false, "")
}

// LoadManifest implements resolve.Source: it fetches the named
// dependency's manifest at pick, caching by (name, pick) so the same
// revision is never read twice.
func (s *Session) LoadManifest(ctx context.Context, name string, dep manifest.Dependency, pick resolve.Pick) (*manifest.Manifest, error) {
	key := name + "@" + pick.String()
	s.mu.Lock()
	if m, ok := s.manifestCache[key]; ok {
		s.mu.Unlock()
		return m, nil
	}
	s.mu.Unlock()

	var raw []byte
	var err error
	switch {
	case pick.IsPath:
		dir := pick.Path
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(s.Root, dir)
		}
		raw, err = os.ReadFile(filepath.Join(dir, "Bender.yml"))
		if os.IsNotExist(err) {
			return nil, nil
		}
	default:
		var repo *gitcache.Repo
		repo, err = s.openRepo(ctx, name, dep)
		if err != nil {
			return nil, err
		}
		raw, err = s.cache.CatFile(ctx, repo, pick.Revision, "Bender.yml")
		if err != nil {
			diag.Emit(diag.W(diag.ManifestNotFound, fmt.Sprintf("dependency %q has no Bender.yml at %s", name, pick.Revision)))
			return nil, nil
		}
	}
	if err != nil {
		return nil, err
	}

	m, err := manifest.ReadManifest(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	s.mu.Lock()
	s.manifestCache[key] = m
	s.mu.Unlock()
	return m, nil
}

// CheckoutAll checks out every locked git dependency into its working
// directory, honoring the workspace's user-managed checkout tolerance.
func (s *Session) CheckoutAll(ctx context.Context, lf *manifest.Lockfile, updateList []string) error {
	inUpdate := make(map[string]bool, len(updateList))
	for _, n := range updateList {
		inUpdate[n] = true
	}
	for name, pkg := range lf.Packages {
		if pkg.Source.Kind != manifest.LockedGit {
			continue
		}
		repo, err := s.cache.Open(ctx, name, pkg.Source.Git, time.Now(), false, pkg.Revision)
		if err != nil {
			return err
		}
		dir := s.checkoutDir(name)
		req := checkout.Request{
			Name:         name,
			URL:          pkg.Source.Git,
			Revision:     pkg.Revision,
			Path:         dir,
			UserManaged:  s.Manifest.Workspace.CheckoutDir != "",
			InUpdateList: inUpdate[name],
		}
		if err := s.engine.Checkout(ctx, repo, req); err != nil {
			return err
		}
	}
	return nil
}

// Rank ranks the dependency graph (by interned ref) rooted at the
// session's own package, bucketing leaves first.
func (s *Session) Rank(lf *manifest.Lockfile, rootName string) ([][]string, error) {
	ensure := func(name string) interner.Ref {
		if ref, ok := s.table.WithName(name); ok {
			return ref
		}
		pkg := lf.Packages[name]
		ref := s.table.Intern(&interner.Entry{Name: name, Revision: pkg.Revision})
		s.graph.EnsureNode(ref)
		return ref
	}
	rootRef := ensure(rootName)
	for name, pkg := range lf.Packages {
		from := ensure(name)
		for _, dep := range pkg.Dependencies {
			s.graph.AddEdge(from, ensure(dep))
		}
	}

	buckets, err := rank.Rank(s.graph, []interner.Ref{rootRef}, namerFunc(s.table.Name))
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.ranked = buckets
	s.mu.Unlock()

	out := make([][]string, len(buckets))
	for i, bucket := range buckets {
		names := make([]string, len(bucket))
		for j, ref := range bucket {
			names[j] = s.table.Name(ref)
		}
		out[i] = names
	}
	return out, nil
}

type namerFunc func(interner.Ref) string

func (f namerFunc) Name(ref interner.Ref) string { return f(ref) }

// passedTargets computes, for every dependency name, the union of
// Targets declared by each manifest in manifests that names it: a
// dependency's passed targets aggregate across the union of its
// dependents, not just its own direct parent.
func passedTargets(manifests map[string]*manifest.Manifest) map[string]target.Set {
	out := map[string]target.Set{}
	for _, m := range manifests {
		for depName, dep := range m.Dependencies {
			if len(dep.Targets) == 0 {
				continue
			}
			out[depName] = target.Union(out[depName], target.NewSet(dep.Targets...))
		}
	}
	return out
}

// Sources builds the filtered, flattened, simplified source list for
// targets ts across every ranked package, given each package's own
// manifest and the one-hop export include dirs its direct dependencies
// expose.
func (s *Session) Sources(lf *manifest.Lockfile, manifests map[string]*manifest.Manifest, ts target.Set) []srcgroup.Flat {
	passedByName := passedTargets(manifests)
	var groups []*srcgroup.Group
	for name, pkg := range lf.Packages {
		m := manifests[name]
		if m == nil || m.Sources == nil {
			continue
		}
		exports := map[string][]string{}
		for _, dep := range pkg.Dependencies {
			if dm := manifests[dep]; dm != nil {
				exports[dep] = dm.ExportIncludeDirs
			}
		}
		groups = append(groups, srcgroup.Build(m.Sources, name, pkg.Version, exports, passedByName[name]))
	}
	var flats []srcgroup.Flat
	for _, g := range groups {
		if filtered := g.FilterTargets(ts); filtered != nil {
			flats = append(flats, filtered.Flatten()...)
		}
	}
	return srcgroup.Simplify(flats)
}

// ValidateSources checks that every file a package's own source tree
// declares is actually present in that package's checkout directory,
// catching a stale checkout or a typo'd path in Bender.yml before a
// renderer ever tries to read the file.
func (s *Session) ValidateSources(lf *manifest.Lockfile, manifests map[string]*manifest.Manifest, ts target.Set) error {
	passedByName := passedTargets(manifests)
	for name, m := range manifests {
		if m.Sources == nil {
			continue
		}
		exports := map[string][]string{}
		if pkg, ok := lf.Packages[name]; ok {
			for _, dep := range pkg.Dependencies {
				if dm := manifests[dep]; dm != nil {
					exports[dep] = dm.ExportIncludeDirs
				}
			}
		}
		g := srcgroup.Build(m.Sources, name, "", exports, passedByName[name])
		filtered := g.FilterTargets(ts)
		if filtered == nil {
			continue
		}
		root := s.Root
		if name != s.Manifest.Package.Name {
			root = s.checkoutDir(name)
			if pkg, ok := lf.Packages[name]; ok && pkg.Source.Kind == manifest.LockedPath {
				root = pkg.Source.Path
			}
		}
		if err := srcgroup.ValidateFilesExist(filtered.Flatten(), root); err != nil {
			return err
		}
	}
	return nil
}

// resolveSource adapts Session to resolve.Source: path dependencies
// resolve to the singleton path universe, everything else opens (or
// refreshes) the bare cache entry and reads its tags/branches.
type resolveSource struct{ s *Session }

func (r resolveSource) Versions(ctx context.Context, name string, dep manifest.Dependency) (version.Universe, error) {
	if dep.Kind == manifest.DepPath {
		return version.Path(), nil
	}
	repo, err := r.s.openRepo(ctx, name, dep)
	if err != nil {
		return version.Universe{}, err
	}
	return r.s.cache.Versions(ctx, repo)
}

func (r resolveSource) LoadManifest(ctx context.Context, name string, dep manifest.Dependency, pick resolve.Pick) (*manifest.Manifest, error) {
	return r.s.LoadManifest(ctx, name, dep, pick)
}

// ResolvePathDependency implements resolve.Source: basePkg, when set,
// is a git-sourced parent whose checkout directory path is relative to
// instead of the project root.
func (r resolveSource) ResolvePathDependency(basePkg, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	base := r.s.Root
	if basePkg != "" {
		base = r.s.checkoutDir(basePkg)
	}
	return filepath.Join(base, path)
}

// workspaceProbe implements resolve.WorkspaceProbe over the session's
// configured workspace checkout_dir: a dependency is only treated as
// user-managed when checkout_dir is set and a git checkout already
// exists on disk for it.
type workspaceProbe struct{ s *Session }

func (w workspaceProbe) Probe(name string) (head string, clean bool, ok bool) {
	if w.s.Manifest.Workspace.CheckoutDir == "" {
		return "", false, false
	}
	dir := w.s.checkoutDir(name)
	if _, err := os.Stat(dir); err != nil {
		return "", false, false
	}
	head, err := w.s.invoker.CurrentCheckout(context.Background(), dir)
	if err != nil {
		return "", false, false
	}
	return head, w.s.invoker.StatusClean(context.Background(), dir) == nil, true
}

// Resolve runs the dependency resolver over the session's root manifest,
// honoring the config layer's overrides and the manifest's frozen flag
// (a frozen manifest with no existing lockfile is a hard error, since the
// user asked for a stable build and none exists to stabilize against).
func (s *Session) Resolve(ctx context.Context, opts ResolveOptions) (*manifest.Lockfile, error) {
	existing, err := manifest.ReadLockfileFile(filepath.Join(s.Root, "Bender.lock"))
	if err != nil {
		return nil, err
	}
	if s.Manifest.Frozen && existing == nil {
		return nil, berr.New(berr.Lockfile, "manifest is frozen but no Bender.lock exists; run without frozen once to create one")
	}
	if s.Manifest.Frozen && !opts.Force {
		return existing, nil
	}

	r := resolve.New(resolveSource{s},
		resolve.WithOverrides(s.Config.Overrides),
		resolve.WithForce(opts.Force),
		resolve.WithUpdateSet(opts.Update),
		resolve.WithWorkspaceProbe(workspaceProbe{s}),
	)
	res, err := r.Resolve(ctx, s.Manifest.Package.Name, s.Manifest)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.lockfile = res.Lockfile
	s.mu.Unlock()
	return res.Lockfile, nil
}

// ResolveOptions parameterizes a resolve pass.
type ResolveOptions struct {
	Force  bool
	Update []string
}

// WriteLockfile writes lf to Bender.lock at the session root.
func (s *Session) WriteLockfile(lf *manifest.Lockfile) error {
	f, err := os.Create(filepath.Join(s.Root, "Bender.lock"))
	if err != nil {
		return berr.Wrap(berr.Io, err, "failed to write lockfile")
	}
	defer f.Close()
	return lf.Write(f, s.Root)
}
