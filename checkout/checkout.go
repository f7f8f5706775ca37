// Package checkout implements the checkout engine: given a dependency
// pinned to a git revision, it makes the corresponding working directory
// match that revision, cloning or re-checking-out as needed. Clone and
// checkout-to-tag against the working directory go through gitvcs;
// the bare object cache's own fetch/tag operations stay on gitproc,
// which gitvcs.GitRepo has no equivalent for.
package checkout

import (
	"context"
	"fmt"
	"os"

	"github.com/pulp-platform/bender-sub000/berr"
	"github.com/pulp-platform/bender-sub000/diag"
	"github.com/pulp-platform/bender-sub000/gitcache"
	"github.com/pulp-platform/bender-sub000/gitproc"
	"github.com/pulp-platform/bender-sub000/gitvcs"
	"github.com/pulp-platform/bender-sub000/log"
)

// State is the checkout engine's decision for a working directory.
type State int

const (
	// Clean means the directory already holds the requested revision.
	Clean State = iota
	// ToCheckout means the directory is a clone of the right remote
	// but at the wrong revision; `git checkout` suffices.
	ToCheckout
	// ToClone means the directory must be removed and re-cloned, either
	// because it does not exist or because it points at a different
	// remote/db than requested.
	ToClone
)

// Decide computes the checkout state for dir given the revision it
// should hold and the db path it should track, purely from observed
// facts (no I/O) so the decision function itself stays simple and
// testable. exists, headRev and remoteURL are probes the caller performs
// before calling Decide; headErr/remoteErr record probe failures. A
// failed HEAD probe is treated as "needs reclone"; a failed remote probe
// leads to ToClone unless HEAD already matches.
func Decide(exists bool, headRev, wantRev, remoteURL, wantRemoteURL string, headErr, remoteErr error) State {
	if !exists {
		return ToClone
	}
	if headErr != nil {
		return ToClone
	}
	if headRev == wantRev {
		return Clean
	}
	if remoteErr == nil && remoteURL == wantRemoteURL {
		return ToCheckout
	}
	return ToClone
}

// Engine drives checkouts for dependencies, given a handle to the git
// object cache that backs each checkout's origin.
type Engine struct {
	cache     *gitcache.Cache
	invoker   *gitproc.Invoker
	log       *log.Logger
	localOnly bool
}

// New returns a checkout engine.
func New(cache *gitcache.Cache, invoker *gitproc.Invoker, logger *log.Logger, localOnly bool) *Engine {
	return &Engine{cache: cache, invoker: invoker, log: logger, localOnly: localOnly}
}

// Request describes a single checkout to perform.
type Request struct {
	Name     string
	URL      string
	Revision string
	Path     string // destination working directory
	// UserManaged marks a workspace checkout_dir entry: the user owns
	// this directory, so the engine must not silently overwrite it
	// unless Force is set or Name is present in the update list.
	UserManaged bool
	Force       bool
	InUpdateList bool
}

// Checkout ensures path holds revision, cloning, fetching or checking
// out as needed; every clone or checkout it performs finishes with a
// recursive submodule update. A directory left as-is gets no update.
func (e *Engine) Checkout(ctx context.Context, db *gitcache.Repo, req Request) error {
	state, err := e.probe(ctx, db, req)
	if err != nil {
		return err
	}

	if state != Clean && req.UserManaged && !req.Force && !req.InUpdateList {
		if state == ToCheckout {
			if err := e.invoker.StatusClean(ctx, req.Path); err != nil {
				diag.Emit(diag.W(diag.CheckoutDirDirty, fmt.Sprintf("checkout directory %s for %s has local changes and was not touched", req.Path, req.Name)))
			}
		} else {
			diag.Emit(diag.W(diag.CheckoutDirURLMismatch, fmt.Sprintf("checkout directory %s for %s does not match the requested source and was not touched", req.Path, req.Name)))
		}
		state = Clean
	}

	if state == Clean {
		return nil
	}

	if state == ToClone {
		if _, err := os.Stat(req.Path); err == nil {
			if err := os.RemoveAll(req.Path); err != nil {
				return berr.Wrapf(berr.Io, err, "failed to remove stale checkout %s", req.Path)
			}
		}
	}

	e.log.Stage("Checkout", "%s (%s)", req.Name, req.Revision)
	tagName := "bender-tmp-" + req.Revision
	if err := e.cache.TagAndFetchIfMissing(ctx, db, tagName, req.Revision); err != nil {
		return err
	}

	switch state {
	case ToClone:
		if err := gitvcs.CloneAt(db.Path, req.Path, tagName); err != nil {
			return err
		}
	case ToCheckout:
		if err := e.invoker.Fetch(ctx, req.Path, "origin", nil, true); err != nil {
			return err
		}
		if err := gitvcs.CheckoutTag(req.Path, tagName); err != nil {
			return err
		}
	}

	return e.invoker.SubmoduleUpdate(ctx, req.Path)
}

func (e *Engine) probe(ctx context.Context, db *gitcache.Repo, req Request) (State, error) {
	if _, err := os.Stat(req.Path); os.IsNotExist(err) {
		return ToClone, nil
	}
	headRev, headErr := e.invoker.CurrentCheckout(ctx, req.Path)
	remoteURL, remoteErr := e.invoker.RemoteURL(ctx, req.Path, "origin")
	return Decide(true, headRev, req.Revision, remoteURL, db.Path, headErr, remoteErr), nil
}
