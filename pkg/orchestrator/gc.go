package orchestrator

import (
	"context"
	"os"
	"path/filepath"

	"asp/internal/aspconfig"
	"asp/internal/telemetry"
	"asp/pkg/lockfile"
)

// GCOptions parameterizes GC (spec.md §4.12 "GC").
type GCOptions struct {
	Locks  []*lockfile.Lock
	DryRun bool
}

// GCResult reports what GC deleted (or, in dry-run mode, would delete).
type GCResult struct {
	DeletedSnapshots []string
	DeletedCacheDirs []string
	BytesFreed       int64
}

// GC deletes every store snapshot and cache artifact not reachable from
// the union of the given locks' space entries (spec.md §4.12 "GC"):
// reachable integrities, minus present store/cache entries, gives the
// complement to delete.
func (o *Orchestrator) GC(opts GCOptions) (result GCResult, err error) {
	_, span := telemetry.Tracer().Start(context.Background(), "gc")
	defer func() {
		telemetry.Counter("gc", map[string]any{
			"dry_run": opts.DryRun,
			"success": err == nil,
		})
		span.End()
	}()

	reachableIntegrity := map[string]bool{}
	reachableEnvHash := map[string]bool{}
	for _, lock := range opts.Locks {
		if lock == nil {
			continue
		}
		for _, entry := range lock.Spaces {
			hex := stripIntegrity(entry.Integrity)
			if hex != "dev" && hex != "project" {
				reachableIntegrity[hex] = true
			}
		}
		for _, target := range lock.Targets {
			if target.EnvHash != "" {
				reachableEnvHash[target.EnvHash] = true
			}
		}
	}

	snap := o.storeFor()
	snapshots, err := snap.ListSnapshots()
	if err != nil {
		return GCResult{}, err
	}
	for _, i := range snapshots {
		hex := stripIntegrity(string(i))
		if reachableIntegrity[hex] {
			continue
		}
		size, err := snap.GetSnapshotSize(i)
		if err == nil {
			result.BytesFreed += size
		}
		result.DeletedSnapshots = append(result.DeletedSnapshots, hex)
		if !opts.DryRun {
			if err := snap.DeleteSnapshot(i); err != nil {
				return result, err
			}
		}
	}

	cacheDirs, bytes, err := o.unreachableCacheDirs(reachableEnvHash, reachableIntegrity, opts.DryRun)
	if err != nil {
		return result, err
	}
	result.DeletedCacheDirs = cacheDirs
	result.BytesFreed += bytes

	return result, nil
}

// unreachableCacheDirs walks the materialized-artifact cache
// (<cache>/<harnessId>/<envHash>/<integrityHex>/<name-version>, spec.md
// §4.8 step 1) and deletes every envHash or integrityHex directory no
// lock still references.
func (o *Orchestrator) unreachableCacheDirs(reachableEnvHash, reachableIntegrity map[string]bool, dryRun bool) ([]string, int64, error) {
	cacheRoot := aspconfig.CacheDir(o.Config.AspHome)
	harnessDirs, err := os.ReadDir(cacheRoot)
	if os.IsNotExist(err) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}

	var deleted []string
	var bytesFreed int64

	for _, h := range harnessDirs {
		if !h.IsDir() {
			continue
		}
		harnessPath := filepath.Join(cacheRoot, h.Name())
		envDirs, err := os.ReadDir(harnessPath)
		if err != nil {
			continue
		}
		for _, e := range envDirs {
			if !e.IsDir() {
				continue
			}
			envPath := filepath.Join(harnessPath, e.Name())
			if !reachableEnvHash[e.Name()] {
				size := dirSize(envPath)
				deleted = append(deleted, envPath)
				bytesFreed += size
				if !dryRun {
					if err := os.RemoveAll(envPath); err != nil {
						return deleted, bytesFreed, err
					}
				}
				continue
			}

			integrityDirs, err := os.ReadDir(envPath)
			if err != nil {
				continue
			}
			for _, it := range integrityDirs {
				if !it.IsDir() {
					continue
				}
				integrityHex := it.Name()
				if reachableIntegrity[integrityHex] {
					continue
				}
				integrityPath := filepath.Join(envPath, integrityHex)
				size := dirSize(integrityPath)
				deleted = append(deleted, integrityPath)
				bytesFreed += size
				if !dryRun {
					if err := os.RemoveAll(integrityPath); err != nil {
						return deleted, bytesFreed, err
					}
				}
			}
		}
	}

	return deleted, bytesFreed, nil
}

func dirSize(root string) int64 {
	var total int64
	_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total
}
