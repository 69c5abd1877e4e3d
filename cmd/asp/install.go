package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"asp/pkg/orchestrator"
)

var installCmd = &cobra.Command{
	Use:   "install [target...]",
	Short: "Resolve every target's closure and write the lock file",
	RunE:  installRunE,
}

func init() {
	installCmd.Flags().String("harness", "", "harness id (default from config)")
	installCmd.Flags().String("project", ".", "project directory")
	installCmd.Flags().Bool("update", false, "re-resolve pinned spaces instead of reusing the lock")
	installCmd.Flags().StringSlice("upgrade", nil, "restrict --update re-resolution to these space ids")
	installCmd.Flags().Bool("json", false, "emit the resulting lock as JSON")
}

func installRunE(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	projectDir, _ := cmd.Flags().GetString("project")
	update, _ := cmd.Flags().GetBool("update")
	upgrade, _ := cmd.Flags().GetStringSlice("upgrade")
	asJSON, _ := cmd.Flags().GetBool("json")

	pm, err := loadProjectManifest(projectDir)
	if err != nil {
		return err
	}

	o := a.orchestrator(nil)
	result, err := o.Install(context.Background(), projectDir, pm, orchestrator.InstallOptions{
		Targets:         args,
		Update:          update,
		UpgradeSpaceIDs: upgrade,
	})
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result.Lock)
	}

	for name, target := range result.Lock.Targets {
		fmt.Printf("%s: %d spaces\n", name, len(target.LoadOrder))
	}
	for _, w := range result.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
	return nil
}
