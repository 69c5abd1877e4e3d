package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"asp/internal/aspconfig"
	"asp/pkg/lockfile"
)

var pathCmd = &cobra.Command{
	Use:   "path <spaceId>",
	Short: "Print the on-disk path of a resolved space",
	Args:  cobra.ExactArgs(1),
	RunE:  pathRunE,
}

func init() {
	pathCmd.Flags().String("project", ".", "project directory")
}

func pathRunE(cmd *cobra.Command, args []string) error {
	spaceID := args[0]
	projectDir, _ := cmd.Flags().GetString("project")

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	candidates := []string{
		filepath.Join(projectDir, "asp-lock.json"),
		aspconfig.GlobalLockPath(a.cfg.AspHome),
	}

	for _, p := range candidates {
		lock := readLockQuiet(p)
		if lock == nil {
			continue
		}
		if entry, ok := findSpaceEntry(lock, spaceID); ok {
			fmt.Println(spaceArtifactPath(a, entry))
			return nil
		}
	}
	return fmt.Errorf("path: %s is not in the project lock or the global lock", spaceID)
}

func findSpaceEntry(lock *lockfile.Lock, spaceID string) (lockfile.SpaceEntry, bool) {
	for _, entry := range lock.Spaces {
		if entry.ID == spaceID {
			return entry, true
		}
	}
	return lockfile.SpaceEntry{}, false
}

// spaceArtifactPath mirrors pkg/orchestrator's snapshotPathFor: dev spaces
// live in the registry working tree, project spaces live relative to the
// project root, everything else lives in the content-addressed store.
func spaceArtifactPath(a *app, entry lockfile.SpaceEntry) string {
	switch entry.Commit {
	case "dev":
		return filepath.Join(a.adapter.Dir, filepath.FromSlash(entry.Path))
	case "project":
		return filepath.Join(filepath.Dir(a.adapter.Dir), filepath.FromSlash(entry.Path))
	default:
		return filepath.Join(aspconfig.SnapshotsDir(a.cfg.AspHome), pathStripIntegrity(entry.Integrity))
	}
}

// pathStripIntegrity strips the "sha256:" prefix off an integrity string,
// duplicated from pkg/orchestrator's unexported helper of the same shape.
func pathStripIntegrity(integrity string) string {
	const prefix = "sha256:"
	if strings.HasPrefix(integrity, prefix) {
		return strings.TrimPrefix(integrity, prefix)
	}
	return integrity
}
