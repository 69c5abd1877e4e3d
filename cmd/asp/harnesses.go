package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"asp/pkg/harness"
)

var harnessesCmd = &cobra.Command{
	Use:   "harnesses",
	Short: "List registered harness adapters and whether their binary was detected",
	RunE:  harnessesRunE,
}

func init() {
	harnessesCmd.Flags().Bool("json", false, "emit the result as JSON")
}

type harnessStatus struct {
	ID        string                `json:"id"`
	Name      string                `json:"name"`
	Default   bool                  `json:"default"`
	Detection harness.DetectResult  `json:"detection"`
}

func harnessesRunE(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	asJSON, _ := cmd.Flags().GetBool("json")
	ctx := context.Background()

	def, _ := a.harnesses.Default()
	var statuses []harnessStatus
	for _, id := range a.harnesses.IDs() {
		adapter, err := a.harnesses.Get(id)
		if err != nil {
			continue
		}
		statuses = append(statuses, harnessStatus{
			ID:        adapter.ID(),
			Name:      adapter.Name(),
			Default:   def != nil && adapter.ID() == def.ID(),
			Detection: adapter.Detect(ctx),
		})
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(statuses)
	}

	for _, s := range statuses {
		marker := " "
		if s.Default {
			marker = "*"
		}
		available := "not found"
		if s.Detection.Available {
			available = s.Detection.Path
			if s.Detection.Version != "" {
				available += " (" + s.Detection.Version + ")"
			}
		}
		fmt.Printf("%s %-10s %s\n", marker, s.ID, available)
	}
	return nil
}
