// Package version wraps github.com/Masterminds/semver with the
// version-universe model: the enumeration of versions/refs available
// for a single dependency source, as built by the git object cache and
// consumed by the resolver.
package version

import (
	"sort"

	"github.com/Masterminds/semver"

	"github.com/pulp-platform/bender-sub000/berr"
)

// Requirement is a parsed semver requirement, e.g. "^1.2" or "~>2.0".
type Requirement struct {
	constraint semver.Constraint
	raw        string
}

// ParseRequirement parses a semver requirement string.
func ParseRequirement(raw string) (Requirement, error) {
	c, err := semver.NewConstraint(raw)
	if err != nil {
		return Requirement{}, berr.Wrapf(berr.Validate, err, "%q is not a valid semantic version requirement", raw)
	}
	return Requirement{constraint: c, raw: raw}, nil
}

func (r Requirement) String() string { return r.raw }

// Matches reports whether v satisfies the requirement.
func (r Requirement) Matches(v *semver.Version) bool {
	return r.constraint.Admits(v) == nil
}

// Entry pairs a parsed semantic version with the git hash of the tag that
// produced it.
type Entry struct {
	Version *semver.Version
	Hash    string
}

// Universe is the enumeration of versions/refs available for a single
// dependency source. For a path dependency it is the singleton "path"
// universe (see Path()); for a git dependency it is built by the git
// object cache from the tags and branches of the bare repository.
type Universe struct {
	// Versions is sorted newest-first by semver.
	Versions []Entry
	// Refs maps every named ref (tag or branch) to the commit hash it
	// points at; tags shadow branches of the same name.
	Refs map[string]string
	// Revs lists every known commit hash, newest first by commit date.
	Revs []string
	// isPath marks the singleton "path" universe used by path
	// dependencies, which are locked-by-construction.
	isPath bool
}

// Path returns the singleton universe for a path dependency.
func Path() Universe {
	return Universe{isPath: true}
}

// IsPath reports whether u is the path-dependency singleton universe.
func (u Universe) IsPath() bool { return u.isPath }

// NewGitUniverse builds a universe from raw tag/branch ref data as
// returned by the git object cache: tags and branches map ref name to
// commit hash, and revs lists every known commit, newest first.
//
// Tags of the form "v<semver>" are parsed into the Versions list; tags
// and branches are merged into Refs with tags shadowing branches on
// name collision.
func NewGitUniverse(tags, branches map[string]string, revs []string) Universe {
	knownRevs := make(map[string]struct{}, len(revs))
	for _, r := range revs {
		knownRevs[r] = struct{}{}
	}

	var entries []Entry
	for tag, hash := range tags {
		if _, ok := knownRevs[hash]; len(knownRevs) > 0 && !ok {
			continue
		}
		if len(tag) == 0 || tag[0] != 'v' {
			continue
		}
		v, err := semver.NewVersion(tag[1:])
		if err != nil {
			continue
		}
		entries = append(entries, Entry{Version: v, Hash: hash})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Version.Compare(entries[j].Version) > 0
	})

	refs := make(map[string]string, len(tags)+len(branches))
	for name, hash := range branches {
		refs[name] = hash
	}
	for name, hash := range tags {
		refs[name] = hash
	}

	return Universe{Versions: entries, Refs: refs, Revs: append([]string(nil), revs...)}
}

// ResolveRef resolves a branch/tag name or a raw commit hash to a commit
// hash, as the resolver does for a GitRev constraint.
func (u Universe) ResolveRef(rev string) (string, bool) {
	if hash, ok := u.Refs[rev]; ok {
		return hash, true
	}
	for _, h := range u.Revs {
		if h == rev {
			return h, true
		}
	}
	// Accept a hash prefix the same way git itself is tolerant of
	// abbreviated object names.
	for _, h := range u.Revs {
		if len(rev) >= 4 && len(rev) <= len(h) && h[:len(rev)] == rev {
			return h, true
		}
	}
	return "", false
}

// Matching returns the subset of Versions whose version satisfies req,
// in the same newest-first order.
func (u Universe) Matching(req Requirement) []Entry {
	var out []Entry
	for _, e := range u.Versions {
		if req.Matches(e.Version) {
			out = append(out, e)
		}
	}
	return out
}
