package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"asp/pkg/lockfile"
)

var explainCmd = &cobra.Command{
	Use:   "explain [target]",
	Short: "Render a target's resolved load order from the lock file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  explainRunE,
}

func init() {
	explainCmd.Flags().String("project", ".", "project directory")
	explainCmd.Flags().Bool("json", false, "emit the result as JSON")
}

// explainResult is explain's rendered view of one target: its roots, its
// load order, and the resolved facts (commit, integrity, deps) behind
// each load-order entry.
type explainResult struct {
	Target    string               `json:"target"`
	Roots     []string             `json:"roots"`
	LoadOrder []string             `json:"loadOrder"`
	Spaces    map[string]lockfile.SpaceEntry `json:"spaces"`
	EnvHash   string               `json:"envHash"`
}

func explainRunE(cmd *cobra.Command, args []string) error {
	projectDir, _ := cmd.Flags().GetString("project")
	asJSON, _ := cmd.Flags().GetBool("json")

	data, err := os.ReadFile(filepath.Join(projectDir, "asp-lock.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no asp-lock.json in %s (run `asp install` first)", projectDir)
		}
		return err
	}
	lock, err := lockfile.Parse(data)
	if err != nil {
		return err
	}

	targetNames := args
	if len(targetNames) == 0 {
		for name := range lock.Targets {
			targetNames = append(targetNames, name)
		}
	}

	var results []explainResult
	for _, name := range targetNames {
		target, ok := lock.Targets[name]
		if !ok {
			return fmt.Errorf("unknown target %q in lock", name)
		}
		spaces := map[string]lockfile.SpaceEntry{}
		for _, key := range target.LoadOrder {
			spaces[key] = lock.Spaces[key]
		}
		results = append(results, explainResult{
			Target:    name,
			Roots:     target.Roots,
			LoadOrder: target.LoadOrder,
			Spaces:    spaces,
			EnvHash:   target.EnvHash,
		})
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	for _, r := range results {
		fmt.Printf("%s:\n", r.Target)
		for i, key := range r.LoadOrder {
			entry := r.Spaces[key]
			fmt.Printf("  %d. %s  commit=%s  integrity=%s\n", i+1, entry.ID, entry.Commit, entry.Integrity)
		}
	}
	return nil
}
