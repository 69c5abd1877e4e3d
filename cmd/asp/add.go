package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"asp/pkg/orchestrator"
	"asp/pkg/spaceref"
)

var addCmd = &cobra.Command{
	Use:   "add <spaceRef>",
	Short: "Add a space reference to a target's compose list",
	Args:  cobra.ExactArgs(1),
	RunE:  addRunE,
}

func init() {
	addCmd.Flags().String("target", "", "target name (required)")
	addCmd.Flags().String("project", ".", "project directory")
	addCmd.Flags().Bool("no-install", false, "do not re-resolve the lock after adding")
	addCmd.MarkFlagRequired("target")
}

func addRunE(cmd *cobra.Command, args []string) error {
	ref := args[0]
	if _, err := spaceref.Parse(ref); err != nil {
		return fmt.Errorf("add: %w", err)
	}

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
	for _, existing := range target.Compose {
		if existing == ref {
			return fmt.Errorf("add: %s is already in target %q", ref, targetName)
		}
	}
	target.Compose = append(target.Compose, ref)
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
	_, err = o.Install(context.Background(), projectDir, pm, orchestrator.InstallOptions{Targets: []string{targetName}})
	return err
}
