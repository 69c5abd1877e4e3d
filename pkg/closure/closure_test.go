package closure

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"asp/internal/gitexec"
)

func writeSpace(t *testing.T, root, id string, deps []string) {
	t.Helper()
	dir := filepath.Join(root, "spaces", id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	var depsLine string
	if len(deps) > 0 {
		quoted := make([]string, len(deps))
		for i, d := range deps {
			quoted[i] = `"` + d + `"`
		}
		depsLine = "[deps]\nspaces = [" + strings.Join(quoted, ", ") + "]\n"
	}
	content := "schema = 1\nid = \"" + id + "\"\nversion = \"1.0.0\"\n" + depsLine
	if err := os.WriteFile(filepath.Join(dir, "space.toml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func commitRepo(t *testing.T, dir, msg string) {
	t.Helper()
	run := func(args ...string) {
		c := exec.Command("git", args...)
		c.Dir = dir
		if out, err := c.CombinedOutput(); err != nil {
			t.Fatalf("git %v failed: %v: %s", args, err, out)
		}
	}
	run("add", ".")
	run("commit", "-m", msg)
}

func initRepo(t *testing.T, dir string) {
	t.Helper()
	run := func(args ...string) {
		c := exec.Command("git", args...)
		c.Dir = dir
		if out, err := c.CombinedOutput(); err != nil {
			t.Fatalf("git %v failed: %v: %s", args, err, out)
		}
	}
	run("init")
	run("config", "user.email", "test@test.com")
	run("config", "user.name", "Test User")
}

func TestBuildDiamond(t *testing.T) {
	dir := t.TempDir()
	initRepo(t, dir)

	// diamond: app -> {a, b}, a -> base, b -> base
	writeSpace(t, dir, "base", nil)
	writeSpace(t, dir, "a", []string{"space:base@dev"})
	writeSpace(t, dir, "b", []string{"space:base@dev"})
	writeSpace(t, dir, "app", []string{"space:a@dev", "space:b@dev"})
	commitRepo(t, dir, "initial")

	b := New(gitexec.NewAdapter(dir))
	ctx := context.Background()

	result, err := b.Build(ctx, []string{"space:app@dev"}, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if len(result.Roots) != 1 {
		t.Fatalf("expected 1 root, got %d", len(result.Roots))
	}

	// base must appear exactly once, before both a and b, which must both
	// appear before app.
	positions := make(map[string]int)
	for i, key := range result.LoadOrder {
		positions[strings.SplitN(key, "@", 2)[0]] = i
	}
	if positions["base"] >= positions["a"] {
		t.Error("base should precede a")
	}
	if positions["base"] >= positions["b"] {
		t.Error("base should precede b")
	}
	if positions["a"] >= positions["app"] {
		t.Error("a should precede app")
	}
	if positions["b"] >= positions["app"] {
		t.Error("b should precede app")
	}

	baseCount := 0
	for _, key := range result.LoadOrder {
		if strings.HasPrefix(key, "base@") {
			baseCount++
		}
	}
	if baseCount != 1 {
		t.Errorf("base should appear exactly once in load order, appeared %d times", baseCount)
	}
}

func TestBuildRecordsTagAndSemverProvenance(t *testing.T) {
	dir := t.TempDir()
	initRepo(t, dir)

	writeSpace(t, dir, "base", nil)
	commitRepo(t, dir, "initial")

	tag := func(args ...string) {
		c := exec.Command("git", args...)
		c.Dir = dir
		if out, err := c.CombinedOutput(); err != nil {
			t.Fatalf("git %v failed: %v: %s", args, err, out)
		}
	}
	tag("tag", "space/base/v1.0.0")

	b := New(gitexec.NewAdapter(dir))
	ctx := context.Background()

	result, err := b.Build(ctx, []string{"space:base@1.0.0"}, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	entry := result.Resolved[result.Roots[0]]
	if entry.ResolvedFrom.Tag != "space/base/v1.0.0" {
		t.Errorf("ResolvedFrom.Tag = %q, want space/base/v1.0.0", entry.ResolvedFrom.Tag)
	}
	if entry.ResolvedFrom.Semver != "1.0.0" {
		t.Errorf("ResolvedFrom.Semver = %q, want 1.0.0", entry.ResolvedFrom.Semver)
	}
}

func TestBuildCycleDetection(t *testing.T) {
	dir := t.TempDir()
	initRepo(t, dir)

	writeSpace(t, dir, "x", []string{"space:y@dev"})
	writeSpace(t, dir, "y", []string{"space:x@dev"})
	commitRepo(t, dir, "cyclic")

	b := New(gitexec.NewAdapter(dir))
	ctx := context.Background()

	if _, err := b.Build(ctx, []string{"space:x@dev"}, nil); err == nil {
		t.Fatal("expected CyclicDependencyError")
	}
}
