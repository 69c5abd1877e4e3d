package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"asp/pkg/orchestrator"
)

var buildCmd = &cobra.Command{
	Use:   "build [target]",
	Short: "Materialize and compose a target's harness bundle",
	Args:  cobra.MaximumNArgs(1),
	RunE:  buildRunE,
}

func init() {
	buildCmd.Flags().String("output", "", "output directory override (default: .asp/modules)")
	buildCmd.Flags().String("harness", "", "harness id (default from config)")
	buildCmd.Flags().Bool("no-clean", false, "do not wipe the target's output dir before composing")
	buildCmd.Flags().Bool("no-install", false, "do not auto-install when the lock is missing")
	buildCmd.Flags().Bool("no-lint", false, "skip running the lint engine over the build")
	buildCmd.Flags().String("project", ".", "project directory")
	buildCmd.Flags().Bool("json", false, "emit the result as JSON")
}

func buildRunE(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	projectDir, _ := cmd.Flags().GetString("project")
	output, _ := cmd.Flags().GetString("output")
	harnessID, _ := cmd.Flags().GetString("harness")
	noClean, _ := cmd.Flags().GetBool("no-clean")
	noInstall, _ := cmd.Flags().GetBool("no-install")
	noLint, _ := cmd.Flags().GetBool("no-lint")
	asJSON, _ := cmd.Flags().GetBool("json")

	pm, err := loadProjectManifest(projectDir)
	if err != nil {
		return err
	}

	targets := args
	if len(targets) == 0 {
		for name := range pm.Targets {
			targets = append(targets, name)
		}
	}

	o := a.orchestrator(nil)
	ctx := context.Background()

	if !noInstall {
		if _, err := os.Stat(filepath.Join(projectDir, "asp-lock.json")); os.IsNotExist(err) {
			if _, err := o.Install(ctx, projectDir, pm, orchestrator.InstallOptions{Targets: targets}); err != nil {
				return err
			}
		}
	}

	results := map[string]orchestrator.BuildResult{}
	for _, name := range targets {
		result, err := o.Build(ctx, projectDir, pm, name, orchestrator.BuildOptions{
			HarnessID: harnessID,
			Clean:     !noClean,
			RunLint:   !noLint,
			OutputDir: output,
		})
		if err != nil {
			return fmt.Errorf("build %s: %w", name, err)
		}
		results[name] = result
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	for name, result := range results {
		fmt.Printf("%s: built (%d warnings", name, len(result.Warnings))
		if len(result.Lint) > 0 {
			fmt.Printf(", %d lint findings", len(result.Lint))
		}
		fmt.Println(")")
		for _, w := range result.Warnings {
			fmt.Printf("  warning: %s\n", w)
		}
		for _, w := range result.Lint {
			fmt.Printf("  lint %s: %s\n", w.Code, w.Message)
		}
	}
	return nil
}
