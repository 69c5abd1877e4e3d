package index

import (
	"os"
	"path/filepath"
)

// Rebuild repopulates the index from scratch by walking the snapshot
// store and materializer cache directly, discarding whatever rows are
// currently present first, for when index.db is missing or disagrees
// with the filesystem. `asp doctor` does not call it.
func (idx *Index) Rebuild(snapshotsDir, cacheDir string) error {
	if _, err := idx.conn.Exec(`DELETE FROM snapshots`); err != nil {
		return err
	}
	if _, err := idx.conn.Exec(`DELETE FROM cache_artifacts`); err != nil {
		return err
	}

	if err := idx.rebuildSnapshots(snapshotsDir); err != nil {
		return err
	}
	return idx.rebuildCacheArtifacts(cacheDir)
}

func (idx *Index) rebuildSnapshots(snapshotsDir string) error {
	entries, err := os.ReadDir(snapshotsDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		hex := e.Name()
		meta, err := readSnapshotMetadata(filepath.Join(snapshotsDir, hex))
		if err != nil {
			continue // unreadable sidecar: skip, doctor reports it separately
		}
		size := dirSize(filepath.Join(snapshotsDir, hex))
		if err := idx.RecordSnapshot(SnapshotRow{
			Integrity: "sha256:" + hex,
			SpaceID:   meta.SpaceID,
			Commit:    meta.Commit,
			SizeBytes: size,
			CreatedAt: meta.CreatedAt,
		}); err != nil {
			return err
		}
	}
	return nil
}

// rebuildCacheArtifacts walks <cacheDir>/<harnessId>/<envHash>/<integrityHex>
// (spec.md §4.8 step 1) and records one row per integrityHex directory.
func (idx *Index) rebuildCacheArtifacts(cacheDir string) error {
	harnessDirs, err := os.ReadDir(cacheDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, h := range harnessDirs {
		if !h.IsDir() {
			continue
		}
		harnessPath := filepath.Join(cacheDir, h.Name())
		envDirs, err := os.ReadDir(harnessPath)
		if err != nil {
			continue
		}
		for _, e := range envDirs {
			if !e.IsDir() {
				continue
			}
			envPath := filepath.Join(harnessPath, e.Name())
			integrityDirs, err := os.ReadDir(envPath)
			if err != nil {
				continue
			}
			for _, it := range integrityDirs {
				if !it.IsDir() {
					continue
				}
				integrityPath := filepath.Join(envPath, it.Name())
				if err := idx.RecordCacheArtifact(CacheArtifactRow{
					HarnessID: h.Name(),
					EnvHash:   e.Name(),
					Integrity: it.Name(),
					SizeBytes: dirSize(integrityPath),
					CreatedAt: nowStamp(),
				}); err != nil {
					return err
				}
			}
		}
	}
	return nil
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
