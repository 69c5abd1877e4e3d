package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"asp/internal/aspconfig"
	"asp/pkg/treesource"
)

func TestCreateAndVerifySnapshot(t *testing.T) {
	aspHome := t.TempDir()
	srcRoot := t.TempDir()

	if err := os.WriteFile(filepath.Join(srcRoot, "space.toml"), []byte("id = \"x\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(srcRoot, "prompts"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(srcRoot, "prompts", "main.md"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := New(aspHome)
	src := treesource.NewFSTreeSource(srcRoot)
	ctx := context.Background()

	i, err := s.CreateSnapshot(ctx, "x", "abc1234", src)
	if err != nil {
		t.Fatalf("CreateSnapshot failed: %v", err)
	}

	if !s.SnapshotExists(i) {
		t.Error("expected snapshot to exist after creation")
	}
	if !s.VerifySnapshot(i) {
		t.Error("expected freshly created snapshot to verify")
	}

	// idempotent: recreating with the same content must not error and must
	// yield the same integrity.
	i2, err := s.CreateSnapshot(ctx, "x", "abc1234", src)
	if err != nil {
		t.Fatalf("second CreateSnapshot failed: %v", err)
	}
	if i != i2 {
		t.Errorf("integrity changed across re-creation: %s vs %s", i, i2)
	}

	size, err := s.GetSnapshotSize(i)
	if err != nil {
		t.Fatalf("GetSnapshotSize failed: %v", err)
	}
	if size <= 0 {
		t.Error("expected positive snapshot size")
	}

	list, err := s.ListSnapshots()
	if err != nil {
		t.Fatalf("ListSnapshots failed: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("expected 1 snapshot, got %d", len(list))
	}

	if err := s.DeleteSnapshot(i); err != nil {
		t.Fatalf("DeleteSnapshot failed: %v", err)
	}
	if s.SnapshotExists(i) {
		t.Error("expected snapshot to be gone after delete")
	}
}

func TestListSnapshotsIgnoresNonHashDirectories(t *testing.T) {
	aspHome := t.TempDir()
	srcRoot := t.TempDir()
	if err := os.WriteFile(filepath.Join(srcRoot, "space.toml"), []byte("id = \"x\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := New(aspHome)
	src := treesource.NewFSTreeSource(srcRoot)
	ctx := context.Background()
	if _, err := s.CreateSnapshot(ctx, "x", "abc1234", src); err != nil {
		t.Fatalf("CreateSnapshot failed: %v", err)
	}

	stray := filepath.Join(aspconfig.SnapshotsDir(aspHome), "not-a-hash")
	if err := os.MkdirAll(stray, 0o755); err != nil {
		t.Fatal(err)
	}

	list, err := s.ListSnapshots()
	if err != nil {
		t.Fatalf("ListSnapshots failed: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("expected the stray directory to be ignored, got %d snapshots: %v", len(list), list)
	}
}

func TestVerifySnapshotDetectsTampering(t *testing.T) {
	aspHome := t.TempDir()
	srcRoot := t.TempDir()
	if err := os.WriteFile(filepath.Join(srcRoot, "space.toml"), []byte("id = \"x\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := New(aspHome)
	src := treesource.NewFSTreeSource(srcRoot)
	ctx := context.Background()

	i, err := s.CreateSnapshot(ctx, "x", "abc1234", src)
	if err != nil {
		t.Fatalf("CreateSnapshot failed: %v", err)
	}

	hex := string(i)[len("sha256:"):]
	tamperedPath := filepath.Join(aspconfig.SnapshotsDir(aspHome), hex, "space.toml")
	if err := os.WriteFile(tamperedPath, []byte("id = \"tampered\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if s.VerifySnapshot(i) {
		t.Error("expected tampered snapshot to fail verification")
	}
}

func TestVerifyMissingSnapshot(t *testing.T) {
	s := New(t.TempDir())
	if s.VerifySnapshot("sha256:0000000000000000000000000000000000000000000000000000000000000000") {
		t.Error("expected missing snapshot to fail verification")
	}
}
