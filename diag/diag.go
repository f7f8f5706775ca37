// Package diag is the process-wide diagnostics registry: a suppressible,
// deduplicating sink for warnings raised during resolution and checkout.
// Adapted from diagnostic.rs's Diagnostics/Warnings pair, which used a
// global OnceLock guarding a Mutex<HashSet<Warnings>>; Go has no
// direct OnceLock equivalent so a package-level sync.Once plays the same
// role.
package diag

import (
	"fmt"
	"os"
	"sync"
)

// Code identifies a warning kind, e.g. "W01".
type Code string

const (
	GitInitFailed     Code = "W06"
	CheckoutDirDirty  Code = "W07"
	CheckoutDirURLMismatch Code = "W16"
	RevisionNotFound  Code = "W19"
	PathDepInGitDep   Code = "W21"
	ManifestNotFound  Code = "W22"
	ExportDirNameIssue Code = "W24"
	DepSourcePathMissing Code = "W30"
)

// Warning is a single emitted diagnostic: a code plus its rendered
// message. Two warnings with the same Code and Message are the same
// warning for deduplication purposes.
type Warning struct {
	Code    Code
	Message string
}

// W constructs a Warning.
func W(code Code, message string) Warning { return Warning{Code: code, Message: message} }

func (w Warning) key() string { return string(w.Code) + "\x00" + w.Message }

type registry struct {
	mu         sync.Mutex
	suppressed map[string]bool
	allSupp    bool
	emitted    map[string]bool
	out        *os.File
}

var (
	once sync.Once
	reg  *registry
)

// Init configures which warning codes are suppressed, accepting "all" or
// "Wall" as a catch-all. It must be called at most once per process;
// subsequent calls are no-ops.
func Init(suppressed []string) {
	once.Do(func() {
		set := make(map[string]bool, len(suppressed))
		all := false
		for _, s := range suppressed {
			if s == "all" || s == "Wall" {
				all = true
			}
			set[s] = true
		}
		reg = &registry{suppressed: set, allSupp: all, emitted: make(map[string]bool), out: os.Stderr}
	})
}

func get() *registry {
	if reg == nil {
		Init(nil)
	}
	return reg
}

// IsSuppressed reports whether code is currently suppressed.
func IsSuppressed(code Code) bool {
	r := get()
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.allSupp || r.suppressed[string(code)]
}

// Emit prints w to stderr unless its code is suppressed or an identical
// warning (same code and message) was already emitted this process.
func Emit(w Warning) {
	r := get()
	r.mu.Lock()
	if r.allSupp || r.suppressed[string(w.Code)] {
		r.mu.Unlock()
		return
	}
	k := w.key()
	if r.emitted[k] {
		r.mu.Unlock()
		return
	}
	r.emitted[k] = true
	out := r.out
	r.mu.Unlock()

	fmt.Fprintf(out, "warning[%s]: %s\n", w.Code, w.Message)
}
