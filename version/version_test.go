package version

import "testing"

func TestNewGitUniverseSortsDescending(t *testing.T) {
	tags := map[string]string{
		"v1.0.0": "aaa",
		"v2.0.0": "bbb",
		"v1.5.0": "ccc",
	}
	revs := []string{"aaa", "bbb", "ccc"}
	u := NewGitUniverse(tags, nil, revs)
	if len(u.Versions) != 3 {
		t.Fatalf("expected 3 versions, got %d", len(u.Versions))
	}
	if u.Versions[0].Hash != "bbb" || u.Versions[1].Hash != "ccc" || u.Versions[2].Hash != "aaa" {
		t.Errorf("not sorted descending: %+v", u.Versions)
	}
}

func TestNewGitUniverseTagsShadowBranches(t *testing.T) {
	tags := map[string]string{"main": "tag-hash"}
	branches := map[string]string{"main": "branch-hash"}
	u := NewGitUniverse(tags, branches, []string{"tag-hash", "branch-hash"})
	if u.Refs["main"] != "tag-hash" {
		t.Errorf("expected tag to shadow branch, got %s", u.Refs["main"])
	}
}

func TestNewGitUniverseIgnoresNonVTags(t *testing.T) {
	tags := map[string]string{"release-1": "xyz"}
	u := NewGitUniverse(tags, nil, []string{"xyz"})
	if len(u.Versions) != 0 {
		t.Errorf("expected non-v-prefixed tag to be excluded from Versions, got %+v", u.Versions)
	}
	if u.Refs["release-1"] != "xyz" {
		t.Errorf("expected ref to still be present")
	}
}

func TestResolveRefByPrefix(t *testing.T) {
	u := NewGitUniverse(nil, nil, []string{"abcdef1234567890"})
	hash, ok := u.ResolveRef("abcdef12")
	if !ok || hash != "abcdef1234567890" {
		t.Errorf("expected prefix match, got %q %v", hash, ok)
	}
}

func TestMatchingFiltersByRequirement(t *testing.T) {
	tags := map[string]string{"v1.0.0": "a", "v1.5.0": "b", "v2.0.0": "c"}
	u := NewGitUniverse(tags, nil, []string{"a", "b", "c"})
	req, err := ParseRequirement("^1.0")
	if err != nil {
		t.Fatal(err)
	}
	matches := u.Matching(req)
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
}
