package gitexec

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func setupRepo(t *testing.T) string {
	tmpDir := t.TempDir()

	cmd := exec.Command("git", "init")
	cmd.Dir = tmpDir
	if err := cmd.Run(); err != nil {
		t.Fatalf("failed to init git repo: %v", err)
	}

	run := func(args ...string) {
		c := exec.Command("git", args...)
		c.Dir = tmpDir
		if err := c.Run(); err != nil {
			t.Fatalf("git %v failed: %v", args, err)
		}
	}
	run("config", "user.email", "test@test.com")
	run("config", "user.name", "Test User")

	if err := os.MkdirAll(filepath.Join(tmpDir, "spaces", "my-space"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "spaces", "my-space", "space.toml"), []byte("id = \"my-space\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "README.md"), []byte("# registry\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	run("add", ".")
	run("commit", "-m", "initial commit")
	run("tag", "space/my-space/v1.0.0")

	return tmpDir
}

func TestAdapter_RevParseAndSymbolicRef(t *testing.T) {
	dir := setupRepo(t)
	ctx := context.Background()
	a := NewAdapter(dir)

	sha, err := a.RevParse(ctx, "HEAD")
	if err != nil {
		t.Fatalf("RevParse failed: %v", err)
	}
	if len(sha) != 40 {
		t.Errorf("sha length = %d, want 40", len(sha))
	}

	ref, err := a.SymbolicRef(ctx, "HEAD")
	if err != nil {
		t.Fatalf("SymbolicRef failed: %v", err)
	}
	if ref != "refs/heads/main" && ref != "refs/heads/master" {
		t.Errorf("unexpected symbolic ref %q", ref)
	}
}

func TestAdapter_Show(t *testing.T) {
	dir := setupRepo(t)
	ctx := context.Background()
	a := NewAdapter(dir)

	content, ok, err := a.Show(ctx, "HEAD", "README.md")
	if err != nil {
		t.Fatalf("Show failed: %v", err)
	}
	if !ok {
		t.Fatal("expected README.md to exist")
	}
	if string(content) != "# registry\n" {
		t.Errorf("unexpected content %q", content)
	}

	_, ok, err = a.Show(ctx, "HEAD", "missing.txt")
	if err != nil {
		t.Fatalf("Show on missing path returned error: %v", err)
	}
	if ok {
		t.Error("expected missing.txt to not exist")
	}
}

func TestAdapter_LsTree(t *testing.T) {
	dir := setupRepo(t)
	ctx := context.Background()
	a := NewAdapter(dir)

	entries, err := a.LsTree(ctx, "HEAD", "", true)
	if err != nil {
		t.Fatalf("LsTree failed: %v", err)
	}

	var found bool
	for _, e := range entries {
		if e.Path == "spaces/my-space/space.toml" {
			found = true
			if e.Type != "blob" {
				t.Errorf("expected blob type, got %q", e.Type)
			}
			if len(e.OID) != 40 {
				t.Errorf("oid length = %d, want 40", len(e.OID))
			}
		}
	}
	if !found {
		t.Error("expected to find spaces/my-space/space.toml in ls-tree output")
	}
}

func TestAdapter_Archive(t *testing.T) {
	dir := setupRepo(t)
	ctx := context.Background()
	a := NewAdapter(dir)

	dest := t.TempDir()
	if err := a.Archive(ctx, "HEAD", "spaces/my-space", dest); err != nil {
		t.Fatalf("Archive failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dest, "space.toml"))
	if err != nil {
		t.Fatalf("expected extracted space.toml: %v", err)
	}
	if string(data) != "id = \"my-space\"\n" {
		t.Errorf("unexpected extracted content %q", data)
	}
}

func TestAdapter_TagsMatchingAndDeref(t *testing.T) {
	dir := setupRepo(t)
	ctx := context.Background()
	a := NewAdapter(dir)

	tags, err := a.TagsMatching(ctx, "space/my-space/*")
	if err != nil {
		t.Fatalf("TagsMatching failed: %v", err)
	}
	if len(tags) != 1 || tags[0] != "space/my-space/v1.0.0" {
		t.Errorf("unexpected tags %v", tags)
	}

	commit, err := a.DerefTag(ctx, "space/my-space/v1.0.0")
	if err != nil {
		t.Fatalf("DerefTag failed: %v", err)
	}
	head, _ := a.RevParse(ctx, "HEAD")
	if commit != head {
		t.Errorf("deref'd tag %q != HEAD %q", commit, head)
	}
}

func TestAdapter_StatusAndRemote(t *testing.T) {
	dir := setupRepo(t)
	ctx := context.Background()
	a := NewAdapter(dir)

	if err := os.WriteFile(filepath.Join(dir, "untracked.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	status, err := a.StatusPorcelain(ctx)
	if err != nil {
		t.Fatalf("StatusPorcelain failed: %v", err)
	}
	if status == "" {
		t.Error("expected non-empty status with untracked file present")
	}

	remotes, err := a.RemoteVerbose(ctx)
	if err != nil {
		t.Fatalf("RemoteVerbose failed: %v", err)
	}
	if remotes != "" {
		t.Errorf("expected no remotes configured, got %q", remotes)
	}
}

func TestAdapter_InitAddCommitTag(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	a := NewAdapter(dir)

	if err := a.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	cfg := exec.Command("git", "config", "user.email", "test@test.com")
	cfg.Dir = dir
	cfg.Run()
	cfg = exec.Command("git", "config", "user.name", "Test User")
	cfg.Dir = dir
	cfg.Run()

	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := a.Add(ctx, "."); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	sha, err := a.Commit(ctx, "first commit")
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if len(sha) != 40 {
		t.Errorf("sha length = %d, want 40", len(sha))
	}

	if err := a.TagCreate(ctx, "v0.0.1", sha, ""); err != nil {
		t.Fatalf("TagCreate failed: %v", err)
	}
	tags, err := a.TagsMatching(ctx, "v*")
	if err != nil {
		t.Fatalf("TagsMatching failed: %v", err)
	}
	if len(tags) != 1 || tags[0] != "v0.0.1" {
		t.Errorf("unexpected tags %v", tags)
	}

	if err := a.TagDelete(ctx, "v0.0.1"); err != nil {
		t.Fatalf("TagDelete failed: %v", err)
	}
	tags, _ = a.TagsMatching(ctx, "v*")
	if len(tags) != 0 {
		t.Errorf("expected no tags after delete, got %v", tags)
	}
}

func TestAdapter_Clone(t *testing.T) {
	src := setupRepo(t)
	ctx := context.Background()
	dest := filepath.Join(t.TempDir(), "clone")

	a := NewAdapter("")
	if err := a.Clone(ctx, src, dest, CloneOptions{Depth: 1}); err != nil {
		t.Fatalf("Clone failed: %v", err)
	}

	cloned := NewAdapter(dest)
	sha, err := cloned.RevParse(ctx, "HEAD")
	if err != nil {
		t.Fatalf("RevParse on clone failed: %v", err)
	}
	if len(sha) != 40 {
		t.Errorf("sha length = %d, want 40", len(sha))
	}
}

func TestAdapter_GitError(t *testing.T) {
	dir := setupRepo(t)
	ctx := context.Background()
	a := NewAdapter(dir)

	_, err := a.RevParse(ctx, "refs/does-not-exist")
	if err == nil {
		t.Fatal("expected error for unresolvable ref")
	}
}
