package treesource

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"asp/internal/gitexec"
)

func TestFSTreeSource(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "space.toml"), []byte("id = \"x\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, ".git", "HEAD"), []byte("ref: refs/heads/main\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	src := NewFSTreeSource(root)
	ctx := context.Background()

	blobs, err := src.ListBlobs(ctx)
	if err != nil {
		t.Fatalf("ListBlobs failed: %v", err)
	}
	if len(blobs) != 1 || blobs[0].Path != "space.toml" {
		t.Errorf("unexpected blobs %+v", blobs)
	}

	content, err := src.ReadBlob(ctx, "space.toml")
	if err != nil {
		t.Fatalf("ReadBlob failed: %v", err)
	}
	if string(content) != "id = \"x\"\n" {
		t.Errorf("unexpected content %q", content)
	}
}

func TestGitTreeSource(t *testing.T) {
	root := t.TempDir()
	run := func(args ...string) {
		c := exec.Command("git", args...)
		c.Dir = root
		if err := c.Run(); err != nil {
			t.Fatalf("git %v failed: %v", args, err)
		}
	}
	run("init")
	run("config", "user.email", "test@test.com")
	run("config", "user.name", "Test User")
	if err := os.MkdirAll(filepath.Join(root, "spaces", "tool"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "spaces", "tool", "space.toml"), []byte("id = \"tool\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	run("add", ".")
	run("commit", "-m", "init")

	adapter := gitexec.NewAdapter(root)
	ctx := context.Background()
	sha, err := adapter.RevParse(ctx, "HEAD")
	if err != nil {
		t.Fatalf("RevParse failed: %v", err)
	}

	src := NewGitTreeSource(adapter, sha, "spaces/tool")
	blobs, err := src.ListBlobs(ctx)
	if err != nil {
		t.Fatalf("ListBlobs failed: %v", err)
	}
	if len(blobs) != 1 || blobs[0].Path != "space.toml" {
		t.Errorf("unexpected blobs %+v", blobs)
	}

	content, err := src.ReadBlob(ctx, "space.toml")
	if err != nil {
		t.Fatalf("ReadBlob failed: %v", err)
	}
	if string(content) != "id = \"tool\"\n" {
		t.Errorf("unexpected content %q", content)
	}
}
