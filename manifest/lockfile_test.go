package manifest

import (
	"bytes"
	"testing"
)

func TestLockfileWriteReadRoundTrip(t *testing.T) {
	lf := &Lockfile{Packages: map[string]LockedPackage{
		"lib": {
			Revision:     "deadbeef",
			Source:       LockedSource{Kind: LockedGit, Git: "https://example.com/lib.git"},
			Dependencies: []string{},
		},
		"local": {
			Source:       LockedSource{Kind: LockedPath, Path: "/root/vendor/local"},
			Dependencies: []string{"lib"},
		},
	}}

	var buf bytes.Buffer
	if err := lf.Write(&buf, "/root"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := ReadLockfile(&buf, "/root")
	if err != nil {
		t.Fatalf("ReadLockfile: %v", err)
	}
	if len(got.Packages) != 2 {
		t.Fatalf("expected 2 packages, got %d", len(got.Packages))
	}
	if got.Packages["lib"].Revision != "deadbeef" {
		t.Errorf("got %+v", got.Packages["lib"])
	}
	if got.Packages["local"].Source.Path != "/root/vendor/local" {
		t.Errorf("expected path normalized to absolute, got %q", got.Packages["local"].Source.Path)
	}
}

func TestLockfileUnknownDependencyIsError(t *testing.T) {
	_, err := ReadLockfile(bytes.NewBufferString(`
packages:
  a:
    source: { Path: /a }
    dependencies: [b]
`), "/root")
	if err == nil {
		t.Fatal("expected an error for a dependency missing from the lockfile")
	}
}

func TestLockfileEmptyPackagesIsValid(t *testing.T) {
	lf, err := ReadLockfile(bytes.NewBufferString("packages: {}\n"), "/root")
	if err != nil {
		t.Fatalf("ReadLockfile: %v", err)
	}
	if len(lf.Packages) != 0 {
		t.Errorf("expected no packages, got %v", lf.Packages)
	}
}

func TestLockfileSourceMustSpecifyExactlyOne(t *testing.T) {
	_, err := ReadLockfile(bytes.NewBufferString(`
packages:
  a:
    source: { Path: /a, Git: https://example.com/a.git }
    dependencies: []
`), "/root")
	if err == nil {
		t.Fatal("expected an error when source specifies more than one variant")
	}
}
