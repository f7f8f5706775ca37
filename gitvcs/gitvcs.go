// Package gitvcs drives the higher-level clone/checkout-to-revision
// operations of the checkout engine through github.com/Masterminds/vcs's
// GitRepo, keeping the lower-level bare-repository cache operations
// (init --bare, cat-file, ls-tree, tag, fetch into a bare db) in
// gitproc, which vcs.GitRepo has no concept of.
package gitvcs

import (
	"github.com/Masterminds/vcs"

	"github.com/pulp-platform/bender-sub000/berr"
)

// CloneAt clones src into dest and checks out branch (typically a
// bender-tmp-<rev> tag created in the object cache), equivalent to the
// engine's ToClone transition.
func CloneAt(src, dest, branch string) error {
	repo, err := vcs.NewGitRepo(src, dest)
	if err != nil {
		return berr.Wrapf(berr.Git, err, "failed to set up git repo for %s", dest)
	}
	if err := repo.Get(); err != nil {
		return berr.Wrapf(berr.Git, err, "failed to clone %s into %s", src, dest)
	}
	return CheckoutTag(dest, branch)
}

// CheckoutTag switches dir's working directory to tag, equivalent to
// the engine's ToCheckout transition once dir already tracks the right
// remote.
func CheckoutTag(dir, tag string) error {
	repo, err := vcs.NewGitRepo("", dir)
	if err != nil {
		return berr.Wrapf(berr.Git, err, "failed to open git repo at %s", dir)
	}
	if err := repo.UpdateVersion(tag); err != nil {
		return berr.Wrapf(berr.Git, err, "failed to check out %s in %s", tag, dir)
	}
	return nil
}
