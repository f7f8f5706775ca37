// Package gitcache implements the git object cache: a directory of bare
// git repositories, one per distinct dependency URL, keyed by a
// BLAKE2b-derived name so that two packages requiring the same URL share
// a single fetch. A sibling lock file per bare repository serializes
// mutating operations against it across process boundaries, since
// multiple bender invocations may share the same cache directory.
package gitcache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	flock "github.com/theckman/go-flock"
	"golang.org/x/crypto/blake2b"

	"github.com/pulp-platform/bender-sub000/berr"
	"github.com/pulp-platform/bender-sub000/diag"
	"github.com/pulp-platform/bender-sub000/gitproc"
	"github.com/pulp-platform/bender-sub000/log"
	"github.com/pulp-platform/bender-sub000/version"
)

const (
	tagPrefix    = "refs/tags/"
	branchPrefix = "refs/remotes/origin/"
)

// DBName returns the bare-repository directory name for a dependency
// named name fetched from url: "<name>-<16 hex chars of BLAKE2b(url)>".
func DBName(name, url string) string {
	sum := blake2b.Sum512([]byte(url))
	return fmt.Sprintf("%s-%x", name, sum[:8])
}

// Cache manages bare git repositories under root (typically
// <database>/git/db).
type Cache struct {
	root      string
	invoker   *gitproc.Invoker
	log       *log.Logger
	localOnly bool
}

// New returns a cache rooted at root.
func New(root string, invoker *gitproc.Invoker, logger *log.Logger, localOnly bool) *Cache {
	return &Cache{root: root, invoker: invoker, log: logger, localOnly: localOnly}
}

// Repo is a handle to a single bare repository in the cache.
type Repo struct {
	Path string
	Name string
	URL  string
}

// Open returns the bare repository for name/url, initializing it (init
// --bare, add origin, fetch) if this is the first time it is seen, or
// fetching it if the
// manifest is newer than the repository's last fetch. fetchRef, if
// non-empty, is additionally fetched (used to pull a specific revision
// not yet present locally).
func (c *Cache) Open(ctx context.Context, name, url string, manifestMtime time.Time, forceFetch bool, fetchRef string) (*Repo, error) {
	dbName := DBName(name, url)
	dir := filepath.Join(c.root, dbName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, berr.Wrapf(berr.Io, err, "failed to create git database directory %s", dir)
	}
	repo := &Repo{Path: dir, Name: name, URL: url}

	configPath := filepath.Join(dir, "config")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if c.localOnly {
			return nil, berr.New(berr.Offline, "--local argument set, unable to initialize git dependency "+name+
				"; please update without --local, or provide a path to the missing dependency")
		}
		c.log.Stage("Cloning", "%s (%s)", name, url)
		refs := []string{}
		if fetchRef != "" {
			refs = append(refs, fetchRef)
		}
		err := withLock(dir, func() error {
			if err := c.invoker.InitBare(ctx, dir); err != nil {
				return err
			}
			if err := c.invoker.AddRemote(ctx, dir, "origin", url); err != nil {
				return err
			}
			return c.invoker.Fetch(ctx, dir, "origin", refs, false)
		})
		if err != nil {
			diag.Emit(diag.W(diag.GitInitFailed, fmt.Sprintf("failed to fetch %s (%s): %v", name, url, err)))
			return nil, berr.Wrapf(berr.Git, err, "failed to initialize git database for %s", name)
		}
		return repo, nil
	} else if err != nil {
		return nil, berr.Wrapf(berr.Io, err, "failed to stat %s", configPath)
	}

	dbMtime, staleErr := fetchHeadMtime(dir)
	needsFetch := forceFetch || staleErr != nil || manifestMtime.After(dbMtime)
	if !needsFetch {
		return repo, nil
	}
	if c.localOnly {
		return repo, nil
	}
	c.log.Stage("Fetching", "%s (%s)", name, url)
	refs := []string{}
	if fetchRef != "" {
		refs = append(refs, fetchRef)
	}
	if err := withLock(dir, func() error {
		return c.invoker.Fetch(ctx, dir, "origin", refs, false)
	}); err != nil {
		diag.Emit(diag.W(diag.GitInitFailed, fmt.Sprintf("failed to fetch %s (%s): %v", name, url, err)))
		return nil, berr.Wrapf(berr.Git, err, "failed to fetch git database for %s", name)
	}
	return repo, nil
}

// withLock serializes mutating operations on dir's bare repository across
// process boundaries, using a sibling lock file rather than anything
// inside dir itself so it never collides with git's own lock files.
func withLock(dir string, fn func() error) error {
	fl := flock.NewFlock(dir + ".lock")
	if err := fl.Lock(); err != nil {
		return berr.Wrapf(berr.Io, err, "failed to acquire lock for %s", dir)
	}
	defer fl.Unlock()
	return fn()
}

func fetchHeadMtime(dir string) (time.Time, error) {
	info, err := os.Stat(filepath.Join(dir, "FETCH_HEAD"))
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// Versions builds the version universe for repo by listing its refs and
// revisions and merging tags/branches.
func (c *Cache) Versions(ctx context.Context, repo *Repo) (version.Universe, error) {
	allRefs, err := c.invoker.ListRefs(ctx, repo.Path, "refs/")
	if err != nil {
		return version.Universe{}, err
	}
	var revs []string
	if len(allRefs) > 0 {
		revs, err = c.invoker.ListRevs(ctx, repo.Path)
		if err != nil {
			return version.Universe{}, err
		}
	}
	revSet := make(map[string]struct{}, len(revs))
	for _, r := range revs {
		revSet[r] = struct{}{}
	}

	tags := make(map[string]string)
	branches := make(map[string]string)
	for name, hash := range allRefs {
		if _, ok := revSet[hash]; !ok {
			continue
		}
		// ListRefs trims the "refs/" it was asked for; restore it so the
		// full tag and branch prefixes match.
		name = "refs/" + name
		if stripped, ok := stripPrefix(name, tagPrefix); ok {
			tags[stripped] = hash
		} else if stripped, ok := stripPrefix(name, branchPrefix); ok {
			branches[stripped] = hash
		}
	}
	return version.NewGitUniverse(tags, branches, revs), nil
}

func stripPrefix(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && s[:len(prefix)] == prefix {
		return s[len(prefix):], true
	}
	return "", false
}

// ListFiles lists the files present at rev in repo.
func (c *Cache) ListFiles(ctx context.Context, repo *Repo, rev string) ([]string, error) {
	return c.invoker.ListFiles(ctx, repo.Path, rev)
}

// CatFile returns the content of path at rev in repo.
func (c *Cache) CatFile(ctx context.Context, repo *Repo, rev, path string) ([]byte, error) {
	return c.invoker.CatFile(ctx, repo.Path, rev, path)
}

// TagAndFetchIfMissing force-tags rev in repo so it can be used as a
// clone/checkout branch target; if the tag fails because rev is not yet
// present locally, it fetches everything from origin and retries once.
func (c *Cache) TagAndFetchIfMissing(ctx context.Context, repo *Repo, tagName, rev string) error {
	if err := c.invoker.Tag(ctx, repo.Path, tagName, rev); err == nil {
		return nil
	}
	if c.localOnly {
		return berr.Newf(berr.Offline, "revision %s of %s not found locally and --local is set", rev, repo.Name)
	}
	if err := withLock(repo.Path, func() error {
		return c.invoker.Fetch(ctx, repo.Path, "origin", nil, false)
	}); err != nil {
		return err
	}
	if err := c.invoker.Tag(ctx, repo.Path, tagName, rev); err != nil {
		diag.Emit(diag.W(diag.RevisionNotFound, fmt.Sprintf("revision %s of %s (%s) not found", rev, repo.Name, repo.URL)))
		return berr.Wrapf(berr.Git, err, "revision %s of %s not found", rev, repo.Name)
	}
	return nil
}
