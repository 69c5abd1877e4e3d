package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"asp/pkg/orchestrator"
)

var upgradeCmd = &cobra.Command{
	Use:   "upgrade [spaceId...]",
	Short: "Re-resolve a target's pinned spaces to their current selectors",
	RunE:  upgradeRunE,
}

func init() {
	upgradeCmd.Flags().String("target", "", "target name (required)")
	upgradeCmd.Flags().String("project", ".", "project directory")
	upgradeCmd.MarkFlagRequired("target")
}

func upgradeRunE(cmd *cobra.Command, args []string) error {
	targetName, _ := cmd.Flags().GetString("target")
	projectDir, _ := cmd.Flags().GetString("project")

	pm, err := loadProjectManifest(projectDir)
	if err != nil {
		return err
	}
	if _, ok := pm.Targets[targetName]; !ok {
		return fmt.Errorf("unknown target %q", targetName)
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	o := a.orchestrator(nil)
	result, err := o.Install(context.Background(), projectDir, pm, orchestrator.InstallOptions{
		Targets:         []string{targetName},
		Update:          true,
		UpgradeSpaceIDs: args,
	})
	if err != nil {
		return err
	}

	target := result.Lock.Targets[targetName]
	fmt.Printf("%s: %d spaces (envHash %s)\n", targetName, len(target.LoadOrder), target.EnvHash)
	return nil
}
