package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"asp/pkg/orchestrator"
	"asp/pkg/spaceref"
)

var removeCmd = &cobra.Command{
	Use:   "remove <spaceId>",
	Short: "Remove a space from a target's compose list",
	Args:  cobra.ExactArgs(1),
	RunE:  removeRunE,
}

func init() {
	removeCmd.Flags().String("target", "", "target name (required)")
	removeCmd.Flags().String("project", ".", "project directory")
	removeCmd.Flags().Bool("no-install", false, "do not re-resolve the lock after removing")
	removeCmd.MarkFlagRequired("target")
}

func removeRunE(cmd *cobra.Command, args []string) error {
	spaceID := args[0]
	targetName, _ := cmd.Flags().GetString("target")
	projectDir, _ := cmd.Flags().GetString("project")
	noInstall, _ := cmd.Flags().GetBool("no-install")

	pm, err := loadProjectManifest(projectDir)
	if err != nil {
		return err
	}
	target, ok := pm.Targets[targetName]
	if !ok {
		return fmt.Errorf("unknown target %q", targetName)
	}

	remaining := make([]string, 0, len(target.Compose))
	found := false
	for _, ref := range target.Compose {
		id := ref
		if parsed, err := spaceref.Parse(ref); err == nil {
			id = parsed.ID
		}
		if id == spaceID {
			found = true
			continue
		}
		remaining = append(remaining, ref)
	}
	if !found {
		return fmt.Errorf("remove: %s is not in target %q", spaceID, targetName)
	}
	if len(remaining) == 0 {
		return fmt.Errorf("remove: target %q would have an empty compose list; targets must declare at least one space reference", targetName)
	}

	target.Compose = remaining
	pm.Targets[targetName] = target

	if err := writeProjectManifest(projectDir, pm); err != nil {
		return err
	}

	if noInstall {
		return nil
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	o := a.orchestrator(nil)
	_, err = o.Install(context.Background(), projectDir, pm, orchestrator.InstallOptions{Targets: []string{targetName}, Update: true})
	return err
}
