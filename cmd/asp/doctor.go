package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"asp/internal/doctorsrv"
	"asp/pkg/doctor"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run read-only health checks over ASP_HOME and the registry",
	RunE:  doctorRunE,
}

func init() {
	doctorCmd.Flags().Bool("json", false, "emit the report as JSON")
	doctorCmd.Flags().Bool("serve", false, "serve the report over HTTP on 127.0.0.1 instead of printing once")
	doctorCmd.Flags().Int("port", 0, "port to bind --serve to (0 = OS-assigned)")
}

func doctorRunE(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	asJSON, _ := cmd.Flags().GetBool("json")
	serve, _ := cmd.Flags().GetBool("serve")
	port, _ := cmd.Flags().GetInt("port")

	report := func(ctx context.Context) doctor.Report {
		return doctor.Run(ctx, a.cfg, a.harnesses, a.adapter, a.idx)
	}

	if serve {
		return serveDoctor(port, report)
	}

	r := report(context.Background())
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	printDoctorReport(r)
	if !r.Healthy {
		return fmt.Errorf("doctor: one or more checks failed")
	}
	return nil
}

// serveDoctor starts the loopback HTTP doctor server and blocks until
// SIGINT/SIGTERM triggers a graceful shutdown (SPEC_FULL.md A7).
func serveDoctor(port int, report doctorsrv.ReportFunc) error {
	srv, boundPort, err := doctorsrv.Listen(port, report)
	if err != nil {
		return err
	}
	fmt.Printf("doctor: serving on http://127.0.0.1:%d\n", boundPort)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Serve(ctx)
}

func printDoctorReport(r doctor.Report) {
	fmt.Printf("ASP_HOME: %s (writable: %v)\n", r.AspHome, r.AspHomeWritable)
	if r.RegistryPath != "" {
		fmt.Printf("registry: %s (ready: %v)\n", r.RegistryPath, r.RegistryReady)
		if r.RegistryError != "" {
			fmt.Printf("  error: %s\n", r.RegistryError)
		}
	}
	for _, h := range r.Harnesses {
		status := "not found"
		if h.Available {
			status = h.Path
		}
		fmt.Printf("harness %-10s %s\n", h.ID, status)
	}
	fmt.Printf("snapshots: %d (verified %d", r.Snapshots.Count, r.Snapshots.Verified)
	if len(r.Snapshots.CorruptSamples) > 0 {
		fmt.Printf(", %d corrupt", len(r.Snapshots.CorruptSamples))
	}
	fmt.Println(")")
	fmt.Printf("index: enabled=%v\n", r.Index.Enabled)
	fmt.Printf("healthy: %v\n", r.Healthy)
}
