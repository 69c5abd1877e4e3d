package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"asp/internal/aspconfig"
	"asp/internal/filelock"
	"asp/pkg/lockfile"
	"asp/pkg/orchestrator"
)

var repoCmd = &cobra.Command{
	Use:   "repo",
	Short: "Manage the registry git repository",
}

var repoInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the registry directory as a git repository",
	RunE:  repoInitRunE,
}

var repoStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the registry's working tree status and remote",
	RunE:  repoStatusRunE,
}

var repoTagsCmd = &cobra.Command{
	Use:   "tags [spaceId]",
	Short: "List registry tags, optionally filtered to one space",
	Args:  cobra.MaximumNArgs(1),
	RunE:  repoTagsRunE,
}

var repoPublishCmd = &cobra.Command{
	Use:   "publish <spaceId> <version>",
	Short: "Commit, tag, and push a new version of a space",
	Args:  cobra.ExactArgs(2),
	RunE:  repoPublishRunE,
}

var repoGCCmd = &cobra.Command{
	Use:   "gc",
	Short: "Delete store snapshots and cache artifacts unreachable from any given lock",
	RunE:  repoGCRunE,
}

func init() {
	repoTagsCmd.Flags().Bool("json", false, "emit tags as JSON")
	repoPublishCmd.Flags().String("dist-tag", "", "dist-tag channel to point at this version (e.g. stable)")
	repoPublishCmd.Flags().String("remote", "origin", "git remote to push the tag to")
	repoGCCmd.Flags().StringSlice("lock", nil, "asp-lock.json paths whose reachable spaces are kept (default: this project's and the global lock)")
	repoGCCmd.Flags().String("project", ".", "project directory")
	repoGCCmd.Flags().Bool("dry-run", false, "report what would be deleted without deleting")
}

// registryLockPath is the advisory lock file guarding serial repo mutation
// (spec.md §5: "run serially under the same file-lock discipline").
func registryLockPath(registryDir string) string { return registryDir + ".repo.lock" }

func repoInitRunE(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if err := os.MkdirAll(a.adapter.Dir, 0o755); err != nil {
		return err
	}
	return a.adapter.Init(context.Background())
}

func repoStatusRunE(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := context.Background()
	status, err := a.adapter.StatusPorcelain(ctx)
	if err != nil {
		return err
	}
	remote, err := a.adapter.RemoteVerbose(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("registry: %s\n", a.adapter.Dir)
	if status == "" {
		fmt.Println("working tree clean")
	} else {
		fmt.Print(status)
	}
	if remote != "" {
		fmt.Print(remote)
	}
	return nil
}

func repoTagsRunE(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	asJSON, _ := cmd.Flags().GetBool("json")
	pattern := "space/*"
	if len(args) == 1 {
		pattern = fmt.Sprintf("space/%s/*", args[0])
	}

	tags, err := a.adapter.TagsMatching(context.Background(), pattern)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(tags)
	}
	for _, t := range tags {
		fmt.Println(t)
	}
	return nil
}

func repoPublishRunE(cmd *cobra.Command, args []string) error {
	spaceID, version := args[0], args[1]
	distTag, _ := cmd.Flags().GetString("dist-tag")
	remote, _ := cmd.Flags().GetString("remote")

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := context.Background()
	lock, err := filelock.Acquire(registryLockPath(a.adapter.Dir), 30*time.Second)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	spacePath := filepath.Join("spaces", spaceID)
	if _, err := os.Stat(filepath.Join(a.adapter.Dir, spacePath)); err != nil {
		return fmt.Errorf("repo publish: %s: %w", spacePath, err)
	}

	if err := a.adapter.Add(ctx, spacePath); err != nil {
		return err
	}
	message := fmt.Sprintf("publish %s v%s", spaceID, version)
	if distTag != "" {
		if err := updateDistTag(a.adapter.Dir, spaceID, distTag, version); err != nil {
			return err
		}
		if err := a.adapter.Add(ctx, "registry/dist-tags.json"); err != nil {
			return err
		}
	}
	commit, err := a.adapter.Commit(ctx, message)
	if err != nil {
		return err
	}

	tag := fmt.Sprintf("space/%s/v%s", spaceID, version)
	if err := a.adapter.TagCreate(ctx, tag, commit, message); err != nil {
		return err
	}
	if err := a.adapter.TagPush(ctx, remote, tag); err != nil {
		return err
	}

	fmt.Printf("published %s at %s (%s)\n", tag, commit, message)
	return nil
}

// updateDistTag reads, updates, and rewrites registry/dist-tags.json's
// {spaceId: {tagName: "vX.Y.Z"}} mapping (spec.md §4.2 "Dist-tags file").
func updateDistTag(registryDir, spaceID, distTag, version string) error {
	path := filepath.Join(registryDir, "registry", "dist-tags.json")
	data, err := os.ReadFile(path)
	tags := map[string]map[string]string{}
	if err == nil {
		if jsonErr := json.Unmarshal(data, &tags); jsonErr != nil {
			return fmt.Errorf("parsing %s: %w", path, jsonErr)
		}
	} else if !os.IsNotExist(err) {
		return err
	}
	if tags[spaceID] == nil {
		tags[spaceID] = map[string]string{}
	}
	tags[spaceID][distTag] = "v" + version

	out, err := json.MarshalIndent(tags, "", "  ")
	if err != nil {
		return err
	}
	out = append(out, '\n')
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}

func repoGCRunE(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	projectDir, _ := cmd.Flags().GetString("project")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	lockPaths, _ := cmd.Flags().GetStringSlice("lock")
	if len(lockPaths) == 0 {
		lockPaths = []string{
			filepath.Join(projectDir, "asp-lock.json"),
			aspconfig.GlobalLockPath(a.cfg.AspHome),
		}
	}

	opts := orchestrator.GCOptions{DryRun: dryRun}
	for _, p := range lockPaths {
		if l := readLockQuiet(p); l != nil {
			opts.Locks = append(opts.Locks, l)
		}
	}

	o := a.orchestrator(nil)
	result, err := o.GC(opts)
	if err != nil {
		return err
	}

	fmt.Printf("deleted %d snapshots, %d cache dirs, %d bytes freed\n",
		len(result.DeletedSnapshots), len(result.DeletedCacheDirs), result.BytesFreed)
	if dryRun {
		for _, s := range result.DeletedSnapshots {
			fmt.Printf("  would delete snapshot %s\n", s)
		}
		for _, c := range result.DeletedCacheDirs {
			fmt.Printf("  would delete cache dir %s\n", c)
		}
	}
	return nil
}

// readLockQuiet reads and parses a lock file, returning nil if it does
// not exist or fails to parse (GC treats an absent/unreadable lock as
// "nothing reachable from it", never as a fatal error).
func readLockQuiet(path string) *lockfile.Lock {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	l, err := lockfile.Parse(data)
	if err != nil {
		return nil
	}
	return l
}
