// Package gitproc is the git invoker: it runs git subprocesses under a
// process-wide concurrency throttle, tracks stdout/stderr activity to
// kill hung commands, and classifies the progress lines git prints on
// stderr during clone/fetch. Each invocation runs under the
// composition (via constext) of the caller's cancellation context and
// a hard per-command duration cap, so either one reaching Done kills
// the process.
package gitproc

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"sync"
	"time"

	"github.com/sdboyer/constext"

	"github.com/pulp-platform/bender-sub000/berr"
)

// DefaultThrottle is the default number of concurrent git subprocesses.
const DefaultThrottle = 8

// DefaultTimeout kills a git subprocess that produces no stdout/stderr
// activity for this long.
const DefaultTimeout = 2 * time.Minute

// maxDuration hard-caps any single subprocess regardless of activity, as
// a backstop against a remote that dribbles just enough bytes to dodge
// the idle-activity watchdog.
const maxDuration = 30 * time.Minute

// Invoker runs git commands with bounded concurrency.
type Invoker struct {
	sem        chan struct{}
	timeout    time.Duration
	localOnly  bool
	OnProgress func(line string)
}

// New returns an invoker allowing at most throttle concurrent git
// subprocesses. localOnly, when set, makes any operation that would
// reach out to the network (Fetch, Clone) fail immediately instead of
// running the command, mirroring the --local/offline session flag.
func New(throttle int, localOnly bool) *Invoker {
	if throttle <= 0 {
		throttle = DefaultThrottle
	}
	return &Invoker{sem: make(chan struct{}, throttle), timeout: DefaultTimeout, localOnly: localOnly}
}

func (iv *Invoker) acquire() func() {
	iv.sem <- struct{}{}
	return func() { <-iv.sem }
}

// Run executes `git <args...>` in dir, returning its stdout. It
// honors ctx cancellation and kills the process if it produces no
// output for the invoker's timeout.
func (iv *Invoker) Run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	release := iv.acquire()
	defer release()

	capCtx, cancel := context.WithTimeout(context.Background(), maxDuration)
	defer cancel()
	runCtx, cancelCons := constext.Cons(ctx, capCtx)
	defer cancelCons()

	cmd := exec.CommandContext(runCtx, "git", args...)
	cmd.Dir = dir
	out := newActivityBuffer()
	errBuf := newActivityBuffer()
	cmd.Stdout = out
	cmd.Stderr = errBuf

	mc := &monitoredCmd{cmd: cmd, timeout: iv.timeout, ctx: runCtx, stdout: out, stderr: errBuf, onProgress: iv.OnProgress}
	if err := mc.run(); err != nil {
		kind := berr.Git
		if _, ok := err.(*exec.ExitError); !ok {
			kind = berr.Io
		}
		return errBuf.buf.Bytes(), berr.Wrapf(kind, err, "git %v failed: %s", args, errBuf.buf.String())
	}
	return out.buf.Bytes(), nil
}

// networkOp runs a network-reaching git operation, refusing it outright
// when the invoker is in local-only mode.
func (iv *Invoker) networkOp(ctx context.Context, dir string, args ...string) ([]byte, error) {
	if iv.localOnly {
		return nil, berr.Newf(berr.Offline, "refusing network access for `git %v` (local-only mode)", args)
	}
	return iv.Run(ctx, dir, args...)
}

// InitBare runs `git init --bare` in dir.
func (iv *Invoker) InitBare(ctx context.Context, dir string) error {
	_, err := iv.Run(ctx, dir, "init", "--bare")
	return err
}

// AddRemote runs `git remote add <name> <url>` in dir.
func (iv *Invoker) AddRemote(ctx context.Context, dir, name, url string) error {
	_, err := iv.Run(ctx, dir, "remote", "add", name, url)
	return err
}

// Fetch runs `git fetch <remote> [refs...]` in dir, or, when tagsAndPrune
// is set, `git fetch --all --tags --prune`, which fetches every remote
// and so takes neither remote nor refs.
func (iv *Invoker) Fetch(ctx context.Context, dir, remote string, refs []string, tagsAndPrune bool) error {
	args := append([]string{"fetch", remote}, refs...)
	if tagsAndPrune {
		args = []string{"fetch", "--all", "--tags", "--prune"}
	}
	_, err := iv.networkOp(ctx, dir, args...)
	return err
}

// Tag force-tags rev as name in dir, without GPG signing.
func (iv *Invoker) Tag(ctx context.Context, dir, name, rev string) error {
	_, err := iv.Run(ctx, dir, "tag", name, rev, "--force", "--no-sign")
	return err
}

// Clone runs `git clone <src> <dest> --branch <branch>`.
func (iv *Invoker) Clone(ctx context.Context, src, dest, branch string) error {
	_, err := iv.networkOp(ctx, "", "clone", src, dest, "--branch", branch)
	return err
}

// Checkout runs `git checkout <rev> --force` in dir.
func (iv *Invoker) Checkout(ctx context.Context, dir, rev string) error {
	_, err := iv.Run(ctx, dir, "checkout", rev, "--force")
	return err
}

// SubmoduleUpdate runs `git submodule update --init --recursive` in dir.
func (iv *Invoker) SubmoduleUpdate(ctx context.Context, dir string) error {
	_, err := iv.Run(ctx, dir, "submodule", "update", "--init", "--recursive")
	return err
}

// RemoteURL returns the url configured for remote in dir.
func (iv *Invoker) RemoteURL(ctx context.Context, dir, remote string) (string, error) {
	out, err := iv.Run(ctx, dir, "remote", "get-url", remote)
	if err != nil {
		return "", err
	}
	return firstLine(out), nil
}

// CurrentCheckout returns the commit hash HEAD points at in dir.
func (iv *Invoker) CurrentCheckout(ctx context.Context, dir string) (string, error) {
	out, err := iv.Run(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return firstLine(out), nil
}

// StatusClean returns nil when `git status --porcelain` succeeds in dir
// and lists no local changes, and an error when it fails or the working
// tree has local changes.
func (iv *Invoker) StatusClean(ctx context.Context, dir string) error {
	out, err := iv.Run(ctx, dir, "status", "--porcelain")
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(out)) > 0 {
		return berr.Newf(berr.Git, "working tree %s has local changes", dir)
	}
	return nil
}

// ListRefs returns every ref in dir matching prefix (e.g. "refs/tags/")
// mapped to its commit hash.
func (iv *Invoker) ListRefs(ctx context.Context, dir, prefix string) (map[string]string, error) {
	out, err := iv.Run(ctx, dir, "for-each-ref", "--format=%(objectname) %(refname)", prefix)
	if err != nil {
		return nil, err
	}
	refs := make(map[string]string)
	for _, line := range splitLines(out) {
		var hash, name string
		if _, err := fmt.Sscanf(line, "%s %s", &hash, &name); err == nil {
			refs[trimPrefix(name, prefix)] = hash
		}
	}
	return refs, nil
}

// ListRevs returns every commit reachable from all refs in dir, newest
// first by commit date, via `git rev-list --all --date-order`.
func (iv *Invoker) ListRevs(ctx context.Context, dir string) ([]string, error) {
	out, err := iv.Run(ctx, dir, "rev-list", "--all", "--date-order")
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// ListFiles lists the files present at rev under dir.
func (iv *Invoker) ListFiles(ctx context.Context, dir, rev string) ([]string, error) {
	out, err := iv.Run(ctx, dir, "ls-tree", "-r", "--name-only", rev)
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// CatFile returns the content of path at rev under dir.
func (iv *Invoker) CatFile(ctx context.Context, dir, rev, path string) ([]byte, error) {
	return iv.Run(ctx, dir, "show", rev+":"+path)
}

func firstLine(b []byte) string {
	lines := splitLines(b)
	if len(lines) == 0 {
		return ""
	}
	return lines[0]
}

func splitLines(b []byte) []string {
	var out []string
	for _, line := range bytes.Split(bytes.TrimSpace(b), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		out = append(out, string(line))
	}
	return out
}

func trimPrefix(s, prefix string) string {
	if len(s) >= len(prefix) && s[:len(prefix)] == prefix {
		return s[len(prefix):]
	}
	return s
}

// progressPatterns recognize the stderr progress lines git prints during
// clone/fetch, forwarded to Invoker.OnProgress for CLI display.
var progressPatterns = []*regexp.Regexp{
	regexp.MustCompile(`Cloning into '([^']+)'`),
	regexp.MustCompile(`Receiving objects:\s+(\d+)%\s+\((\d+)/(\d+)\)`),
	regexp.MustCompile(`Resolving deltas:\s+(\d+)%`),
	regexp.MustCompile(`Checking out files:\s+(\d+)%`),
	regexp.MustCompile(`Submodule path '([^']+)': checked out`),
}

func isProgressLine(line string) bool {
	for _, p := range progressPatterns {
		if p.MatchString(line) {
			return true
		}
	}
	return false
}

// monitoredCmd wraps a cmd and keeps monitoring the process until it
// finishes, ctx is canceled, or no activity has been seen for timeout.
type monitoredCmd struct {
	cmd        *exec.Cmd
	timeout    time.Duration
	ctx        context.Context
	stdout     *activityBuffer
	stderr     *activityBuffer
	onProgress func(line string)
}

func (c *monitoredCmd) run() error {
	ticker := time.NewTicker(c.timeout)
	defer ticker.Stop()
	done := make(chan error, 1)
	go func() { done <- c.cmd.Run() }()

	for {
		select {
		case <-ticker.C:
			if c.hasTimedOut() {
				if c.cmd.Process != nil {
					c.cmd.Process.Kill()
				}
				return fmt.Errorf("command killed after %s of no activity", c.timeout)
			}
		case <-c.ctx.Done():
			if c.cmd.Process != nil {
				c.cmd.Process.Kill()
			}
			return c.ctx.Err()
		case err := <-done:
			if c.onProgress != nil {
				for _, line := range splitLines(c.stderr.buf.Bytes()) {
					if isProgressLine(line) {
						c.onProgress(line)
					}
				}
			}
			return err
		}
	}
}

func (c *monitoredCmd) hasTimedOut() bool {
	t := time.Now().Add(-c.timeout)
	return c.stderr.lastActivity().Before(t) && c.stdout.lastActivity().Before(t)
}

// activityBuffer is a buffer that tracks the last time it was written to.
type activityBuffer struct {
	mu                sync.Mutex
	buf               *bytes.Buffer
	lastActivityStamp time.Time
}

func newActivityBuffer() *activityBuffer {
	return &activityBuffer{buf: bytes.NewBuffer(nil), lastActivityStamp: time.Now()}
}

func (b *activityBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastActivityStamp = time.Now()
	return b.buf.Write(p)
}

func (b *activityBuffer) lastActivity() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastActivityStamp
}
