package main

import (
	"context"
	"flag"
	"fmt"
	"sort"
	"strings"

	bender "github.com/pulp-platform/bender-sub000"
	"github.com/pulp-platform/bender-sub000/manifest"
	"github.com/pulp-platform/bender-sub000/target"
)

// updateCommand resolves the dependency graph and writes Bender.lock.
type updateCommand struct {
	force bool
}

func (*updateCommand) Name() string      { return "update" }
func (*updateCommand) Args() string      { return "[package...]" }
func (*updateCommand) ShortHelp() string { return "update the locked dependency versions" }
func (*updateCommand) LongHelp() string {
	return "Re-resolves the whole dependency graph from the manifests and writes the\nresult to Bender.lock. Versions in an existing Bender.lock are not reused.\nNamed packages are resolved fresh even where a user-managed workspace\ncheckout of them exists."
}
func (c *updateCommand) Register(fs *flag.FlagSet) {
	fs.BoolVar(&c.force, "force", false, "re-resolve even if the manifest is frozen")
}

func (c *updateCommand) Run(ctx *runCtx, args []string) error {
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	lf, err := s.Resolve(context.Background(), bender.ResolveOptions{Force: c.force, Update: args})
	if err != nil {
		return err
	}
	if err := s.WriteLockfile(lf); err != nil {
		return err
	}
	ctx.Out.Printf("resolved %d packages\n", len(lf.Packages))
	return nil
}

// checkoutCommand materializes every locked git dependency's working
// directory to match Bender.lock.
type checkoutCommand struct{}

func (*checkoutCommand) Name() string      { return "checkout" }
func (*checkoutCommand) Args() string      { return "" }
func (*checkoutCommand) ShortHelp() string { return "check out locked dependencies" }
func (*checkoutCommand) LongHelp() string {
	return "Checks out every git dependency in Bender.lock to its working directory,\ncloning or fetching through the git object cache as needed."
}
func (*checkoutCommand) Register(fs *flag.FlagSet) {}

func (c *checkoutCommand) Run(ctx *runCtx, _ []string) error {
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	lf, err := manifest.ReadLockfileFile(s.Root + "/Bender.lock")
	if err != nil {
		return err
	}
	if lf == nil {
		return fmt.Errorf("no Bender.lock; run `bender update` first")
	}
	return s.CheckoutAll(context.Background(), lf, nil)
}

// pathCommand prints the checkout directory of a named dependency.
type pathCommand struct{}

func (*pathCommand) Name() string      { return "path" }
func (*pathCommand) Args() string      { return "<package>" }
func (*pathCommand) ShortHelp() string { return "print a dependency's checkout path" }
func (*pathCommand) LongHelp() string {
	return "Prints the filesystem path bender has checked out the named package to."
}
func (*pathCommand) Register(fs *flag.FlagSet) {}

func (c *pathCommand) Run(ctx *runCtx, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("expected exactly one package name")
	}
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	lf, err := manifest.ReadLockfileFile(s.Root + "/Bender.lock")
	if err != nil {
		return err
	}
	if lf == nil {
		return fmt.Errorf("no Bender.lock; run `bender update` first")
	}
	if _, ok := lf.Packages[args[0]]; !ok {
		return fmt.Errorf("package %q is not in Bender.lock", args[0])
	}
	ctx.Out.Println(s.CheckoutPath(args[0]))
	return nil
}

// configCommand prints the merged configuration.
type configCommand struct{}

func (*configCommand) Name() string      { return "config" }
func (*configCommand) Args() string      { return "" }
func (*configCommand) ShortHelp() string { return "print the merged configuration" }
func (*configCommand) LongHelp() string {
	return "Prints the configuration merged from Bender.local, .bender.yml ancestry,\n~/.config/bender.yml and /etc/bender.yml."
}
func (*configCommand) Register(fs *flag.FlagSet) {}

func (c *configCommand) Run(ctx *runCtx, _ []string) error {
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	ctx.Out.Printf("database: %s\n", s.Config.Database)
	ctx.Out.Printf("git: %s\n", s.Config.Git)
	names := make([]string, 0, len(s.Config.Overrides))
	for n := range s.Config.Overrides {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		ctx.Out.Printf("override %s: %s\n", n, s.Config.Overrides[n])
	}
	return nil
}

// sourcesCommand prints the flattened, simplified source file list for a
// target expression.
type sourcesCommand struct {
	targets string
}

func (*sourcesCommand) Name() string      { return "sources" }
func (*sourcesCommand) Args() string      { return "" }
func (*sourcesCommand) ShortHelp() string { return "print the flattened source file list" }
func (*sourcesCommand) LongHelp() string {
	return "Prints every source file reachable under the active target set, after\nfiltering, flattening and simplifying the manifest's source trees."
}
func (c *sourcesCommand) Register(fs *flag.FlagSet) {
	fs.StringVar(&c.targets, "t", "", "comma-separated list of active target names")
}

func (c *sourcesCommand) Run(ctx *runCtx, _ []string) error {
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	lf, err := manifest.ReadLockfileFile(s.Root + "/Bender.lock")
	if err != nil {
		return err
	}
	if lf == nil {
		return fmt.Errorf("no Bender.lock; run `bender update` first")
	}

	manifests := map[string]*manifest.Manifest{s.Manifest.Package.Name: s.Manifest}
	for name := range lf.Packages {
		m, err := s.LoadLockedManifest(context.Background(), lf, name)
		if err != nil {
			return err
		}
		if m != nil {
			manifests[name] = m
		}
	}

	var ts target.Set
	if c.targets != "" {
		ts = target.NewSet(strings.Split(c.targets, ",")...)
	} else {
		ts = target.Empty()
	}

	if err := s.ValidateSources(lf, manifests, ts); err != nil {
		return err
	}

	for _, flat := range s.Sources(lf, manifests, ts) {
		for _, f := range flat.Files {
			ctx.Out.Println(f.Path)
		}
	}
	return nil
}
