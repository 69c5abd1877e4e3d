package resolver

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"asp/internal/gitexec"
	"asp/pkg/spaceref"
)

// setupRegistry builds a registry with tags space/base/v1.0.0, v1.0.1,
// v1.1.0, v2.0.0 and a dist-tags.json pointing "stable" at v1.1.0,
// mirroring spec.md §8's worked examples.
func setupRegistry(t *testing.T) string {
	dir := t.TempDir()
	run := func(args ...string) {
		c := exec.Command("git", args...)
		c.Dir = dir
		if err := c.Run(); err != nil {
			t.Fatalf("git %v failed: %v", args, err)
		}
	}
	run("init")
	run("config", "user.email", "test@test.com")
	run("config", "user.name", "Test User")

	if err := os.MkdirAll(filepath.Join(dir, "registry"), 0o755); err != nil {
		t.Fatal(err)
	}
	distTags := `{"base":{"stable":"v1.1.0"}}`
	if err := os.WriteFile(filepath.Join(dir, "registry", "dist-tags.json"), []byte(distTags), 0o644); err != nil {
		t.Fatal(err)
	}
	run("add", ".")
	run("commit", "-m", "dist-tags")

	for _, v := range []string{"v1.0.0", "v1.0.1", "v1.1.0", "v2.0.0"} {
		marker := filepath.Join(dir, "marker-"+v+".txt")
		if err := os.WriteFile(marker, []byte(v), 0o644); err != nil {
			t.Fatal(err)
		}
		run("add", ".")
		run("commit", "-m", "release "+v)
		run("tag", "space/base/"+v)
	}

	return dir
}

func mustSelector(t *testing.T, text string) spaceref.Selector {
	t.Helper()
	sel, err := spaceref.ParseSelector(text)
	if err != nil {
		t.Fatalf("ParseSelector(%q) failed: %v", text, err)
	}
	return sel
}

func TestResolveDistTag(t *testing.T) {
	dir := setupRegistry(t)
	r := New(gitexec.NewAdapter(dir))
	ctx := context.Background()

	resolved, err := r.Resolve(ctx, "base", mustSelector(t, "stable"), "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if resolved.Tag != "space/base/v1.1.0" {
		t.Errorf("Tag = %q, want space/base/v1.1.0", resolved.Tag)
	}
	if resolved.Semver != "1.1.0" {
		t.Errorf("Semver = %q, want 1.1.0", resolved.Semver)
	}
}

func TestResolveCaretAndTilde(t *testing.T) {
	dir := setupRegistry(t)
	r := New(gitexec.NewAdapter(dir))
	ctx := context.Background()

	cases := []struct {
		selector string
		wantTag  string
	}{
		{"^1.0.0", "space/base/v1.1.0"},
		{"~1.0.0", "space/base/v1.0.1"},
		{"^2.0.0", "space/base/v2.0.0"},
	}
	for _, c := range cases {
		resolved, err := r.Resolve(ctx, "base", mustSelector(t, c.selector), "")
		if err != nil {
			t.Fatalf("Resolve(%q) failed: %v", c.selector, err)
		}
		if resolved.Tag != c.wantTag {
			t.Errorf("Resolve(%q).Tag = %q, want %q", c.selector, resolved.Tag, c.wantTag)
		}
	}
}

func TestResolveCaretNoMatch(t *testing.T) {
	dir := setupRegistry(t)
	r := New(gitexec.NewAdapter(dir))
	ctx := context.Background()

	if _, err := r.Resolve(ctx, "base", mustSelector(t, "^3.0.0"), ""); err == nil {
		t.Fatal("expected SelectorResolutionError for ^3.0.0 with no matching tag")
	}
}

func TestResolveExactSemver(t *testing.T) {
	dir := setupRegistry(t)
	r := New(gitexec.NewAdapter(dir))
	ctx := context.Background()

	resolved, err := r.Resolve(ctx, "base", mustSelector(t, "1.0.1"), "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if resolved.Tag != "space/base/v1.0.1" {
		t.Errorf("Tag = %q, want space/base/v1.0.1", resolved.Tag)
	}
}

func TestResolveDev(t *testing.T) {
	dir := setupRegistry(t)
	r := New(gitexec.NewAdapter(dir))
	ctx := context.Background()

	resolved, err := r.Resolve(ctx, "base", mustSelector(t, "dev"), "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if resolved.Commit != "dev" {
		t.Errorf("Commit = %q, want dev", resolved.Commit)
	}
}

func TestResolveHead(t *testing.T) {
	dir := setupRegistry(t)
	adapter := gitexec.NewAdapter(dir)
	r := New(adapter)
	ctx := context.Background()

	resolved, err := r.Resolve(ctx, "base", mustSelector(t, "HEAD"), "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	head, _ := adapter.RevParse(ctx, "HEAD")
	if resolved.Commit != head {
		t.Errorf("Commit = %q, want %q", resolved.Commit, head)
	}
}

func TestResolveGitPin(t *testing.T) {
	dir := setupRegistry(t)
	r := New(gitexec.NewAdapter(dir))
	ctx := context.Background()

	resolved, err := r.Resolve(ctx, "base", mustSelector(t, "git:abc1234"), "")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if resolved.Commit != "abc1234" {
		t.Errorf("Commit = %q, want abc1234", resolved.Commit)
	}
}

func TestResolveDistTagMissing(t *testing.T) {
	dir := setupRegistry(t)
	r := New(gitexec.NewAdapter(dir))
	ctx := context.Background()

	if _, err := r.Resolve(ctx, "base", mustSelector(t, "nightly"), ""); err == nil {
		t.Fatal("expected error for missing dist-tag")
	}
}
