// Package interner implements the session's dependency table: an
// insertion-ordered, mutex-protected map from dependency identity to a
// small opaque handle (Ref). Go's garbage collector makes a bump
// allocator unnecessary; only the check-then-insert table shape is kept.
package interner

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Masterminds/semver"
)

// Ref is an opaque handle to an interned dependency entry. The zero value
// is never issued; the first entry added gets Ref(1).
type Ref int

func (r Ref) String() string { return fmt.Sprintf("%d", int(r)) }

// SourceKind distinguishes where a dependency may be obtained from.
type SourceKind int

const (
	SourceRegistry SourceKind = iota
	SourcePath
	SourceGit
)

// Source describes where a dependency comes from.
type Source struct {
	Kind SourceKind
	Path string // valid when Kind == SourcePath
	URL  string // valid when Kind == SourceGit
}

func (s Source) String() string {
	switch s.Kind {
	case SourcePath:
		return s.Path
	case SourceGit:
		return s.URL
	default:
		return "registry"
	}
}

// Entry is a single interned dependency: its declared identity plus the
// version the resolver has picked for it, if any.
type Entry struct {
	Name     string
	Source   Source
	Revision string          // picked git revision, set once resolved
	Version  *semver.Version // picked semver version, set once resolved
}

// key returns the value used to detect duplicate entries by structural
// equality over (name, source, revision, version).
func (e *Entry) key() string {
	v := ""
	if e.Version != nil {
		v = e.Version.String()
	}
	return e.Name + "\x00" + string(rune(e.Source.Kind)) + "\x00" + e.Source.String() + "\x00" + e.Revision + "\x00" + v
}

// PickedVersion describes the concrete version picked for an entry: a
// path dependency has no version, a git dependency is pinned to a
// revision, a registry dependency to a content hash (unimplemented).
type PickedVersion struct {
	IsPath   bool
	Revision string
}

// Picked returns the picked version descriptor for e.
func (e *Entry) Picked() PickedVersion {
	switch e.Source.Kind {
	case SourcePath:
		return PickedVersion{IsPath: true}
	default:
		return PickedVersion{Revision: e.Revision}
	}
}

// Table is the process-wide dependency interning table. It is safe for
// concurrent use.
type Table struct {
	mu      sync.Mutex
	entries []*Entry
	refs    map[string]Ref
}

// NewTable returns an empty interning table.
func NewTable() *Table {
	return &Table{refs: make(map[string]Ref)}
}

// Intern adds entry to the table, returning an existing Ref if an
// identical entry (same name, source, revision and version) was already
// added.
func (t *Table) Intern(entry *Entry) Ref {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := entry.key()
	if ref, ok := t.refs[k]; ok {
		return ref
	}
	t.entries = append(t.entries, entry)
	ref := Ref(len(t.entries))
	t.refs[k] = ref
	return ref
}

// Get returns the entry for ref. It panics if ref was never issued by
// this table: a ref that escaped this session should always resolve.
func (t *Table) Get(ref Ref) *Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	if int(ref) < 1 || int(ref) > len(t.entries) {
		panic(fmt.Sprintf("interner: invalid ref %d", ref))
	}
	return t.entries[ref-1]
}

// Name is a convenience accessor for Get(ref).Name.
func (t *Table) Name(ref Ref) string { return t.Get(ref).Name }

// WithName looks up the ref of the first entry named name, used to
// resolve a dependency name back to its ref for manifest cross-checks.
func (t *Table) WithName(name string) (Ref, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, e := range t.entries {
		if e.Name == name {
			return Ref(i + 1), true
		}
	}
	return 0, false
}

// All returns every interned ref in insertion order.
func (t *Table) All() []Ref {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Ref, len(t.entries))
	for i := range t.entries {
		out[i] = Ref(i + 1)
	}
	return out
}

// Graph is a dependency adjacency map over interned refs, built by the
// resolver and consumed by the ranker.
type Graph struct {
	mu    sync.Mutex
	edges map[Ref][]Ref
}

// NewGraph returns an empty dependency graph.
func NewGraph() *Graph { return &Graph{edges: make(map[Ref][]Ref)} }

// AddEdge records that from depends on to. Duplicate edges are ignored.
func (g *Graph) AddEdge(from, to Ref) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, existing := range g.edges[from] {
		if existing == to {
			return
		}
	}
	g.edges[from] = append(g.edges[from], to)
}

// Deps returns the dependency refs of from, sorted for determinism.
func (g *Graph) Deps(from Ref) []Ref {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := append([]Ref(nil), g.edges[from]...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of nodes that have at least one recorded edge
// list (including empty ones added via EnsureNode), used as the graph
// size in the cycle-detection bound.
func (g *Graph) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.edges)
}

// EnsureNode makes sure ref has an entry in the graph, even with no
// outgoing edges, so Len() reflects every package in the tree.
func (g *Graph) EnsureNode(ref Ref) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.edges[ref]; !ok {
		g.edges[ref] = nil
	}
}

// Plugin is a plugin declared by a package's manifest.
type Plugin struct {
	Name    string
	Package Ref
	Path    string
}
