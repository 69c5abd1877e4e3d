// Command asp is the CLI front end for the package manager and composer
// described in SPEC_FULL.md: install/build/run/add/remove/upgrade/lint/
// explain/harnesses/doctor/repo/path, one subcommand per spec.md §6 CLI
// surface entry.
//
// Grounded on the teacher's cmd/main/main.go composition style:
// rootCmd.AddCommand(...) in init(), persistent flags for config/telemetry,
// a cobra.OnInitialize chain building config -> logging -> telemetry in
// sequence.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"asp/internal/aspconfig"
	"asp/internal/logging"
	"asp/internal/telemetry"
	"asp/internal/version"
)

var (
	cfgFile        string
	aspHomeFlag    string
	registryFlag   string
	debugFlag      bool
	enableTelemetry bool
	otelEndpoint   string

	cfg *aspconfig.Context

	rootCmd = &cobra.Command{
		Use:           "asp",
		Short:         "asp - a package manager and composer for coding-agent spaces",
		Version:       version.GetVersionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig, initLogging, initTelemetry)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $XDG_CONFIG_HOME/asp/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&aspHomeFlag, "asp-home", "", "override ASP_HOME")
	rootCmd.PersistentFlags().StringVar(&registryFlag, "registry", "", "path to the registry git clone")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&enableTelemetry, "enable-telemetry", false, "enable OpenTelemetry tracing export")
	rootCmd.PersistentFlags().StringVar(&otelEndpoint, "otel-endpoint", "", "OTLP endpoint override (default http://localhost:4318)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(explainCmd)
	rootCmd.AddCommand(lintCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(upgradeCmd)
	rootCmd.AddCommand(harnessesCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(repoCmd)
	rootCmd.AddCommand(pathCmd)

	repoCmd.AddCommand(repoInitCmd)
	repoCmd.AddCommand(repoStatusCmd)
	repoCmd.AddCommand(repoTagsCmd)
	repoCmd.AddCommand(repoPublishCmd)
	repoCmd.AddCommand(repoGCCmd)
}

func initConfig() {
	c, err := aspconfig.NewContext(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "asp: failed to load config: %v\n", err)
		os.Exit(1)
	}
	if aspHomeFlag != "" {
		c.AspHome = aspHomeFlag
	}
	if registryFlag != "" {
		c.RegistryPath = registryFlag
	}
	if debugFlag {
		c.Debug = true
	}
	cfg = c
}

func initLogging() {
	logging.Initialize(cfg.Debug)
}

func initTelemetry() {
	enabled := enableTelemetry || telemetry.EnabledFromEnv()
	if !enabled {
		return
	}
	endpoint := otelEndpoint
	if err := telemetry.Setup(context.Background(), telemetry.Config{Enabled: true, Endpoint: endpoint}); err != nil {
		logging.Debug("telemetry setup failed: %v", err)
	}
}

func main() {
	err := rootCmd.Execute()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	telemetry.Shutdown(shutdownCtx)
	telemetry.CloseCounter()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}
