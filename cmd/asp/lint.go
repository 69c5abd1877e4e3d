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

var lintCmd = &cobra.Command{
	Use:   "lint [target]",
	Short: "Materialize a target and report lint findings (never fails on findings)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  lintRunE,
}

func init() {
	lintCmd.Flags().String("project", ".", "project directory")
	lintCmd.Flags().String("harness", "", "harness id (default from config)")
	lintCmd.Flags().Bool("json", false, "emit findings as JSON")
}

// lintRunE materializes a target the same way build does, but always
// exits 0: lint findings are never fatal (spec.md §7, "the lint command
// always exits 0 and renders the list"). Only a resolve/materialize/
// compose failure unrelated to lint itself returns a non-nil error.
func lintRunE(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	projectDir, _ := cmd.Flags().GetString("project")
	harnessID, _ := cmd.Flags().GetString("harness")
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

	tmpOut, err := os.MkdirTemp("", "asp-lint-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmpOut)

	if _, err := os.Stat(filepath.Join(projectDir, "asp-lock.json")); os.IsNotExist(err) {
		if _, err := o.Install(ctx, projectDir, pm, orchestrator.InstallOptions{Targets: targets}); err != nil {
			return err
		}
	}

	findings := map[string][]string{}
	for _, name := range targets {
		result, err := o.Build(ctx, projectDir, pm, name, orchestrator.BuildOptions{
			HarnessID: harnessID,
			Clean:     true,
			RunLint:   true,
			OutputDir: tmpOut,
		})
		if err != nil {
			return fmt.Errorf("lint %s: %w", name, err)
		}
		lines := make([]string, 0, len(result.Lint))
		for _, w := range result.Lint {
			lines = append(lines, fmt.Sprintf("[%s] %s: %s", w.Code, w.Severity, w.Message))
		}
		findings[name] = lines
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(findings)
	}

	for name, lines := range findings {
		if len(lines) == 0 {
			fmt.Printf("%s: clean\n", name)
			continue
		}
		fmt.Printf("%s:\n", name)
		for _, l := range lines {
			fmt.Printf("  %s\n", l)
		}
	}
	return nil
}
