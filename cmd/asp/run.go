package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"asp/pkg/orchestrator"
)

var runCmd = &cobra.Command{
	Use:   "run <targetOrRefOrPath> [prompt] [-- extra args]",
	Short: "Build a target (or a single space) and launch the harness against it",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRunE,
}

func init() {
	runCmd.Flags().String("harness", "", "harness id (default from config)")
	runCmd.Flags().Bool("dry-run", false, "print the argv that would be executed instead of running it")
	runCmd.Flags().String("project", ".", "project directory")
	runCmd.Flags().String("model", "", "override the harness model")
	runCmd.Flags().String("permission-mode", "", "override the harness permission mode")
	runCmd.Flags().Bool("no-interactive", false, "capture output instead of inheriting stdio")
	runCmd.Flags().Bool("no-warnings", false, "suppress lint warnings in output")
	runCmd.Flags().StringSlice("extra-args", nil, "additional pass-through args for the harness")
}

func runRunE(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	harnessID, _ := cmd.Flags().GetString("harness")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	projectDir, _ := cmd.Flags().GetString("project")
	model, _ := cmd.Flags().GetString("model")
	permissionMode, _ := cmd.Flags().GetString("permission-mode")
	noInteractive, _ := cmd.Flags().GetBool("no-interactive")
	extraFlagArgs, _ := cmd.Flags().GetStringSlice("extra-args")

	target := args[0]
	extraArgs := append(append([]string{}, extraFlagArgs...), args[1:]...)

	opts := orchestrator.RunOptions{
		HarnessID:      harnessID,
		Model:          model,
		PermissionMode: permissionMode,
		Interactive:    !noInteractive && !dryRun,
		ExtraArgs:      extraArgs,
		DryRun:         dryRun,
	}

	o := a.orchestrator(nil)

	switch {
	case strings.HasPrefix(target, "space:"):
		opts.Mode = orchestrator.RunGlobal
		opts.SpaceRef = target
	default:
		if pm, pmErr := loadProjectManifest(projectDir); pmErr == nil {
			if _, ok := pm.Targets[target]; ok {
				opts.Mode = orchestrator.RunProject
				opts.ProjectDir = projectDir
				opts.Target = target
				opts.Project = pm
				break
			}
		}
		if _, statErr := os.Stat(target); statErr == nil {
			opts.Mode = orchestrator.RunDev
			opts.SpaceRef = fmt.Sprintf("space:path:%s@dev", target)
			break
		}
		return fmt.Errorf("run: %q is not a known target, space reference, or path", target)
	}

	result, err := o.Run(context.Background(), opts)
	if err != nil {
		return err
	}

	if dryRun {
		fmt.Fprintln(os.Stdout, renderArgv(result.Args))
		return nil
	}
	if result.ExitCode != 0 {
		os.Exit(result.ExitCode)
	}
	return nil
}

// renderArgv quotes a harness argv for dry-run display (spec.md §6):
// single-quote any argument containing a character outside
// [A-Za-z0-9_./-], escaping embedded single quotes by closing-quote,
// backslash-quote, reopening.
func renderArgv(argv []string) string {
	parts := make([]string, len(argv))
	for i, a := range argv {
		parts[i] = quoteArg(a)
	}
	return strings.Join(parts, " ")
}

func quoteArg(s string) string {
	if s == "" {
		return "''"
	}
	needsQuote := false
	for _, r := range s {
		if !isSafeArgRune(r) {
			needsQuote = true
			break
		}
	}
	if !needsQuote {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func isSafeArgRune(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		return true
	case r == '_' || r == '.' || r == '/' || r == '-':
		return true
	}
	return false
}
