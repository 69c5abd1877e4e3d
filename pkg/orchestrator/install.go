package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"asp/internal/telemetry"
	"asp/internal/workpool"
	"asp/pkg/closure"
	"asp/pkg/ids"
	"asp/pkg/lockfile"
	"asp/pkg/manifest"
	"asp/pkg/store"
)

// InstallOptions parameterizes Install (spec.md §4.12 "Install").
type InstallOptions struct {
	Targets         []string // empty means "all targets in the project manifest"
	Update          bool
	UpgradeSpaceIDs []string // restricts which ids re-resolve when Update is true
}

// InstallResult is the lock produced by an install run, plus any
// warnings collected while materializing snapshots.
type InstallResult struct {
	Lock     *lockfile.Lock
	Warnings []string
}

// Install runs the install flow against one project (spec.md §4.12 steps
// 1-5): compute each target's closure, snapshot every non-dev/non-project
// space, and persist the lock atomically under an advisory lock.
func (o *Orchestrator) Install(ctx context.Context, projectDir string, pm *manifest.ProjectManifest, opts InstallOptions) (InstallResult, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "install")
	defer span.End()

	lockPath := filepath.Join(projectDir, "asp-lock.json")

	var result InstallResult
	err := withLockFile(lockPath, func() error {
		lock, err := readLock(lockPath, o.Config.RegistryPath, "main")
		if err != nil {
			return err
		}

		targetNames := opts.Targets
		if len(targetNames) == 0 {
			for name := range pm.Targets {
				targetNames = append(targetNames, name)
			}
		}

		upgradeSet := map[string]bool{}
		for _, id := range opts.UpgradeSpaceIDs {
			upgradeSet[id] = true
		}

		snap := o.storeFor()

		for _, name := range targetNames {
			target, ok := pm.Targets[name]
			if !ok {
				return fmt.Errorf("unknown target %q", name)
			}

			pinned := pinnedSpacesFor(lock, name, opts.Update, upgradeSet)

			resolveCtx, resolveSpan := telemetry.Tracer().Start(ctx, "resolve")
			closureResult, err := o.closureBuilder().Build(resolveCtx, buildSpaceRefs(target.Compose), pinned)
			resolveSpan.End()
			if err != nil {
				return err
			}

			snapshotCtx, snapshotSpan := telemetry.Tracer().Start(ctx, "snapshot")
			err = o.ensureSnapshots(snapshotCtx, snap, closureResult.Resolved, lock)
			snapshotSpan.End()
			if err != nil {
				return err
			}

			lockTarget := lockfile.Target{
				Compose:   target.Compose,
				Roots:     closureResult.Roots,
				LoadOrder: closureResult.LoadOrder,
			}
			lockTarget.EnvHash = lockfile.EnvHash(closureResult.LoadOrder, lock.Spaces)
			lock.Targets[name] = lockTarget
		}

		lock.GeneratedAt = nowStamp()
		if err := writeLockAtomic(lockPath, lock); err != nil {
			return err
		}
		result.Lock = lock
		return nil
	})
	telemetry.Counter("install", map[string]any{
		"targets": len(opts.Targets),
		"update":  opts.Update,
		"success": err == nil,
	})
	return result, err
}

// pinnedSpacesFor builds the pinnedSpaces map closure.Build expects: every
// existing space id pinned to its lock commit, except when Update is true
// and the id is in the upgrade set (or the upgrade set is empty, meaning
// "upgrade everything", spec.md §4.12 step 2).
func pinnedSpacesFor(lock *lockfile.Lock, targetName string, update bool, upgradeSet map[string]bool) map[string]string {
	pinned := map[string]string{}
	existing, ok := lock.Targets[targetName]
	if !ok {
		return pinned
	}
	for _, key := range existing.LoadOrder {
		entry, ok := lock.Spaces[key]
		if !ok {
			continue
		}
		shouldReresolve := update && (len(upgradeSet) == 0 || upgradeSet[entry.ID])
		if !shouldReresolve {
			pinned[entry.ID] = entry.Commit
		}
	}
	return pinned
}

// ensureSnapshots creates (or reuses) every resolved space's store
// snapshot in parallel, bounded by the configured max-parallel limit
// (spec.md §5: "parallel snapshot extractions... independent and safe
// concurrently"), then inserts/updates each lock entry serially once all
// snapshots are in.
func (o *Orchestrator) ensureSnapshots(ctx context.Context, snap *store.Store, resolved map[string]closure.ResolvedSpace, lock *lockfile.Lock) error {
	type outcome struct {
		key   string
		entry lockfile.SpaceEntry
		skip  bool
	}

	keys := make([]string, 0, len(resolved))
	for key := range resolved {
		if _, exists := lock.Spaces[key]; exists {
			continue
		}
		keys = append(keys, key)
	}

	outcomes := make([]outcome, len(keys))
	var mu sync.Mutex
	pool := workpool.New(o.Config.MaxParallel)

	tasks := make([]workpool.Task, len(keys))
	for i, key := range keys {
		i, key := i, key
		tasks[i] = func() error {
			entry, err := o.buildSnapshotEntry(ctx, snap, key, resolved[key])
			if err != nil {
				return err
			}
			mu.Lock()
			outcomes[i] = outcome{key: key, entry: entry}
			mu.Unlock()
			return nil
		}
	}
	if err := pool.Run(tasks); err != nil {
		return err
	}

	for _, o := range outcomes {
		if o.skip || o.key == "" {
			continue
		}
		lock.Spaces[o.key] = o.entry
	}
	return nil
}

// buildSnapshotEntry creates (or reuses) the store snapshot for one
// resolved space and returns its lock entry (spec.md §4.12 steps 3-4).
// dev/project spaces are never snapshotted (spec.md §4.2).
func (o *Orchestrator) buildSnapshotEntry(ctx context.Context, snap *store.Store, key string, rs closure.ResolvedSpace) (lockfile.SpaceEntry, error) {
	spaceID, commit, err := ids.SpaceKey(key).Split()
	if err != nil {
		return lockfile.SpaceEntry{}, err
	}

	m, err := o.resolveManifest(ctx, rs.Commit, rs.Path)
	if err != nil {
		return lockfile.SpaceEntry{}, err
	}

	var integrityValue string
	switch commit {
	case ids.DevMarker, ids.ProjectMarker:
		integrityValue = "sha256:" + string(commit)
	default:
		src, err := o.treeSourceFor(rs)
		if err != nil {
			return lockfile.SpaceEntry{}, err
		}
		hash, err := snap.CreateSnapshot(ctx, string(spaceID), string(commit), src)
		if err != nil {
			return lockfile.SpaceEntry{}, err
		}
		integrityValue = string(hash)
	}

	entry := lockfile.SpaceEntry{
		ID:        string(spaceID),
		Commit:    string(commit),
		Path:      rs.Path,
		Integrity: integrityValue,
		Plugin: lockfile.PluginRef{
			Name:    firstNonEmpty(m.Plugin.Name, m.ID),
			Version: firstNonEmpty(m.Plugin.Version, m.Version),
		},
		ResolvedFrom: &lockfile.ResolvedFrom{
			Selector: rs.ResolvedFrom.Selector,
			Tag:      rs.ResolvedFrom.Tag,
			Semver:   rs.ResolvedFrom.Semver,
		},
	}
	entry.Deps.Spaces = rs.Deps
	return entry, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
