// Package orchestrator implements the install/build/run pipeline and
// garbage collector (spec.md §4.12, C12/C13), wiring every other
// component (C1–C11) together in the sequence the CLI commands need.
//
// Grounded on the teacher's cmd/main command composition style: each
// top-level command wires several packages together in a fixed sequence
// with one function per command, rather than a generic "pipeline" object.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"asp/internal/aspconfig"
	"asp/internal/filelock"
	"asp/internal/gitexec"
	"asp/internal/index"
	"asp/pkg/closure"
	"asp/pkg/harness"
	"asp/pkg/lockfile"
	"asp/pkg/manifest"
	"asp/pkg/resolver"
	"asp/pkg/store"
	"asp/pkg/treesource"
)

// Orchestrator bundles everything install/build/run/gc need: the
// configured ASP_HOME, a registry git adapter, and the harness registry.
type Orchestrator struct {
	Config    *aspconfig.Context
	Adapter   *gitexec.Adapter
	Harnesses *harness.Registry
	FS        afero.Fs

	// Index is the optional write-through index cache (internal/index).
	// Nil is a valid, fully-functional state: store and cache queries walk
	// the filesystem directly either way, and the index only receives
	// write-through rows.
	Index *index.Index
}

// New returns an Orchestrator. A nil fs defaults to the real filesystem.
func New(cfg *aspconfig.Context, adapter *gitexec.Adapter, registry *harness.Registry, fs afero.Fs) *Orchestrator {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Orchestrator{Config: cfg, Adapter: adapter, Harnesses: registry, FS: fs}
}

// storeFor returns a Store for this orchestrator's ASP_HOME, wired to the
// write-through index cache if one is configured.
func (o *Orchestrator) storeFor() *store.Store {
	snap := store.New(o.Config.AspHome)
	if o.Index != nil {
		snap = snap.WithIndex(o.Index)
	}
	return snap
}

const lockLockTimeout = 30 * time.Second

// lockFilePath returns the path of the advisory lock guarding read-modify-
// write of lockPath itself (spec.md §5).
func lockFilePath(lockPath string) string {
	return lockPath + ".lock"
}

// withLockFile runs fn while holding an advisory lock on lockPath,
// guaranteeing only one writer mutates the lock document at a time
// (spec.md §5 "Lock file writes use a file lock around read-modify-write").
func withLockFile(lockPath string, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return err
	}
	l, err := filelock.Acquire(lockFilePath(lockPath), lockLockTimeout)
	if err != nil {
		return err
	}
	defer l.Unlock()
	return fn()
}

// readLock loads an existing lock file, returning a fresh empty Lock if
// none exists yet.
func readLock(path, registryURL, defaultBranch string) (*lockfile.Lock, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return lockfile.New(registryURL, defaultBranch, nowStamp()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return lockfile.Parse(data)
}

// writeLockAtomic persists l to path via write-tmp-then-rename (spec.md
// §4.12 install step 5).
func writeLockAtomic(path string, l *lockfile.Lock) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := lockfile.Marshal(l)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// nowStamp is the only place the orchestrator touches wall-clock time, so
// it can be swapped out in tests that need deterministic lock content.
var nowStamp = func() string { return time.Now().UTC().Format(time.RFC3339) }

// resolveManifest reads and parses space.toml at commit:path, using the
// same dev-vs-committed dispatch as pkg/closure's readDeps (spec.md §4.5).
func (o *Orchestrator) resolveManifest(ctx context.Context, commit, path string) (*manifest.SpaceManifest, error) {
	manifestPath := filepath.ToSlash(filepath.Join(path, "space.toml"))
	if commit == "dev" {
		data, err := os.ReadFile(filepath.Join(o.Adapter.Dir, filepath.FromSlash(manifestPath)))
		if err != nil {
			return nil, err
		}
		return manifest.ParseSpaceManifest(manifestPath, data)
	}
	data, ok, err := o.Adapter.Show(ctx, commit, manifestPath)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("space.toml not found at %s:%s", commit, manifestPath)
	}
	return manifest.ParseSpaceManifest(manifestPath, data)
}

// treeSourceFor builds the tree source for one resolved space, dispatching
// on its commit marker (spec.md §4.2 "dev and project keys: not
// content-addressed").
func (o *Orchestrator) treeSourceFor(rs closure.ResolvedSpace) (treesource.TreeSource, error) {
	switch rs.Commit {
	case "dev":
		return treesource.NewFSTreeSource(filepath.Join(o.Adapter.Dir, filepath.FromSlash(rs.Path))), nil
	case "project":
		return nil, fmt.Errorf("project-relative space %s has no registry tree source", rs.ID)
	default:
		return treesource.NewGitTreeSource(o.Adapter, rs.Commit, rs.Path), nil
	}
}

// snapshotPathFor returns where a resolved space's materializable content
// lives on disk: its store snapshot for a real commit, or its live
// directory for dev/project.
func (o *Orchestrator) snapshotPathFor(rs closure.ResolvedSpace, integrityHex string) string {
	switch rs.Commit {
	case "dev":
		return filepath.Join(o.Adapter.Dir, filepath.FromSlash(rs.Path))
	case "project":
		return filepath.Join(filepath.Dir(o.Adapter.Dir), filepath.FromSlash(rs.Path))
	default:
		return filepath.Join(aspconfig.SnapshotsDir(o.Config.AspHome), integrityHex)
	}
}

// closureBuilder returns the closure builder keyed to this orchestrator's
// registry adapter, shared across install/build/run.
func (o *Orchestrator) closureBuilder() *closure.Builder {
	return closure.New(o.Adapter)
}

func (o *Orchestrator) resolverFor() *resolver.Resolver {
	return resolver.New(o.Adapter)
}

// buildSpaceRefs turns a target's compose list into the root ref strings
// closure.Build expects, unchanged — compose entries already are space
// refs (spec.md §3 TargetManifest.Compose).
func buildSpaceRefs(compose []string) []string { return compose }
