// Package stage implements the single write-once "stage in tmp, then
// rename into place" idiom used by the snapshot store and the
// materializer's artifact cache (spec.md §9, "Concurrent staging").
// Every write-once directory in asp goes through WriteOnce so a losing
// concurrent writer falls back to the already-correct destination instead
// of erroring.
package stage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// WriteOnce stages content under a fresh temp directory inside tmpRoot,
// invokes build to populate it, then atomically renames it to finalDir.
// If finalDir already exists by the time the rename happens (a concurrent
// writer won the race), WriteOnce treats that as success and removes its
// own staging directory — content for a given finalDir is always
// byte-identical by construction (it is keyed by a content hash), so
// either writer's output is acceptable.
func WriteOnce(tmpRoot, finalDir string, build func(stageDir string) error) error {
	if _, err := os.Stat(finalDir); err == nil {
		return nil
	}

	if err := os.MkdirAll(tmpRoot, 0o755); err != nil {
		return fmt.Errorf("failed to create staging root %s: %w", tmpRoot, err)
	}

	stageDir := filepath.Join(tmpRoot, "stage-"+uuid.NewString())
	if err := os.MkdirAll(stageDir, 0o755); err != nil {
		return fmt.Errorf("failed to create staging dir %s: %w", stageDir, err)
	}
	cleanStage := func() { _ = os.RemoveAll(stageDir) }

	if err := build(stageDir); err != nil {
		cleanStage()
		return err
	}

	if err := os.MkdirAll(filepath.Dir(finalDir), 0o755); err != nil {
		cleanStage()
		return fmt.Errorf("failed to create parent of %s: %w", finalDir, err)
	}

	if err := os.Rename(stageDir, finalDir); err != nil {
		// A concurrent writer may have already created finalDir; that is
		// success, not failure, because content is addressed by hash.
		if _, statErr := os.Stat(finalDir); statErr == nil {
			cleanStage()
			return nil
		}
		cleanStage()
		return fmt.Errorf("failed to rename %s to %s: %w", stageDir, finalDir, err)
	}
	return nil
}
