package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"asp/pkg/closure"
	"asp/pkg/lockfile"
	"asp/pkg/store"
)

func snapshotSpace(t *testing.T, o *Orchestrator, id string) lockfile.SpaceEntry {
	t.Helper()
	ctx := context.Background()
	commit, err := o.Adapter.RevParse(ctx, "HEAD")
	if err != nil {
		t.Fatalf("RevParse failed: %v", err)
	}
	rs := closure.ResolvedSpace{ID: id, Commit: commit, Path: filepath.Join("spaces", id)}
	snap := store.New(o.Config.AspHome)
	entry, err := o.buildSnapshotEntry(ctx, snap, id+"@"+commit, rs)
	if err != nil {
		t.Fatalf("buildSnapshotEntry(%s) failed: %v", id, err)
	}
	return entry
}

func TestGCDeletesUnreachableSnapshots(t *testing.T) {
	registryDir := initRegistry(t)
	writeSpace(t, registryDir, "base", nil)
	writeSpace(t, registryDir, "orphan", nil)
	runGit(t, registryDir, "add", ".")
	runGit(t, registryDir, "commit", "-m", "initial")

	o := newTestOrchestrator(t, registryDir)
	baseEntry := snapshotSpace(t, o, "base")
	snapshotSpace(t, o, "orphan")

	kept := lockfile.New(registryDir, "main", "2026-01-01T00:00:00Z")
	kept.Spaces["base@"+baseEntry.Commit] = baseEntry

	result, err := o.GC(GCOptions{Locks: []*lockfile.Lock{kept}, DryRun: false})
	if err != nil {
		t.Fatalf("GC failed: %v", err)
	}
	if len(result.DeletedSnapshots) != 1 {
		t.Fatalf("expected 1 orphaned snapshot deleted, got %v", result.DeletedSnapshots)
	}

	entries, err := os.ReadDir(filepath.Join(o.Config.AspHome, "snapshots"))
	if err != nil {
		t.Fatalf("failed to list snapshots dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected exactly 1 snapshot to remain, found %d", len(entries))
	}
}

func TestGCDryRunDeletesNothing(t *testing.T) {
	registryDir := initRegistry(t)
	writeSpace(t, registryDir, "base", nil)
	runGit(t, registryDir, "add", ".")
	runGit(t, registryDir, "commit", "-m", "initial")

	o := newTestOrchestrator(t, registryDir)
	snapshotSpace(t, o, "base")

	result, err := o.GC(GCOptions{Locks: nil, DryRun: true})
	if err != nil {
		t.Fatalf("GC failed: %v", err)
	}
	if len(result.DeletedSnapshots) != 1 {
		t.Fatalf("expected dry-run to report 1 deletable snapshot, got %v", result.DeletedSnapshots)
	}

	entries, err := os.ReadDir(filepath.Join(o.Config.AspHome, "snapshots"))
	if err != nil {
		t.Fatalf("failed to list snapshots dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected dry-run to leave the snapshot on disk, found %d entries", len(entries))
	}
}
