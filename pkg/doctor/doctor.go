// Package doctor runs a handful of health checks over an ASP_HOME: is
// ASP_HOME writable, is the registry reachable, are harness binaries on
// PATH, does a bounded sample of snapshots still hash-verify, is the index
// cache open. It does not inspect any project. Its only writes are the
// writability check's (creating ASP_HOME if missing, then writing and
// removing a probe file); it does not rebuild the index. `asp doctor
// --serve` and the `doctor` CLI command both just render this report
// differently.
package doctor

import (
	"context"
	"os"
	"path/filepath"

	"asp/internal/aspconfig"
	"asp/internal/gitexec"
	"asp/internal/index"
	"asp/pkg/harness"
	"asp/pkg/store"
)

// HarnessStatus reports one registered harness adapter's availability.
type HarnessStatus struct {
	ID        string `json:"id"`
	Available bool   `json:"available"`
	Path      string `json:"path,omitempty"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SnapshotStatus summarizes the store's content-addressed snapshots.
type SnapshotStatus struct {
	Count           int      `json:"count"`
	Verified        int      `json:"verified"`
	CorruptSamples  []string `json:"corruptSamples,omitempty"`
}

// IndexStatus reports whether the derived SQLite index cache is present.
type IndexStatus struct {
	Enabled bool `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// Report is the full payload `doctor` renders and `doctor --serve` serves
// at GET /healthz.
type Report struct {
	AspHome         string          `json:"aspHome"`
	AspHomeWritable bool            `json:"aspHomeWritable"`
	RegistryPath    string          `json:"registryPath,omitempty"`
	RegistryReady   bool            `json:"registryReady"`
	RegistryError   string          `json:"registryError,omitempty"`
	Harnesses       []HarnessStatus `json:"harnesses"`
	Snapshots       SnapshotStatus  `json:"snapshots"`
	Index           IndexStatus     `json:"index"`
	Healthy         bool            `json:"healthy"`
}

// sampleVerifyLimit caps how many snapshots doctor re-hashes per run, so
// a large store doesn't turn `doctor` into a slow full-store walk.
const sampleVerifyLimit = 25

// Run executes every check against cfg and returns the aggregate report.
// registry and adapter may be nil (harness and registry checks are then
// skipped, Healthy still reflects what was checked).
func Run(ctx context.Context, cfg *aspconfig.Context, registry *harness.Registry, adapter *gitexec.Adapter, idx *index.Index) Report {
	report := Report{
		AspHome:      cfg.AspHome,
		RegistryPath: cfg.RegistryPath,
		Healthy:      true,
	}

	report.AspHomeWritable = checkWritable(cfg.AspHome)
	if !report.AspHomeWritable {
		report.Healthy = false
	}

	if adapter != nil {
		if _, err := adapter.RevParse(ctx, "HEAD"); err != nil {
			report.RegistryError = err.Error()
			report.Healthy = false
		} else {
			report.RegistryReady = true
		}
	}

	if registry != nil {
		for _, id := range registry.IDs() {
			a, err := registry.Get(id)
			if err != nil {
				report.Harnesses = append(report.Harnesses, HarnessStatus{ID: id, Error: err.Error()})
				continue
			}
			detect := a.Detect(ctx)
			status := HarnessStatus{
				ID:        id,
				Available: detect.Available,
				Path:      detect.Path,
				Version:   detect.Version,
				Error:     detect.Error,
			}
			report.Harnesses = append(report.Harnesses, status)
		}
	}

	snap := store.New(cfg.AspHome)
	if ids, err := snap.ListSnapshots(); err == nil {
		report.Snapshots.Count = len(ids)
		sampled := 0
		for _, i := range ids {
			if sampled >= sampleVerifyLimit {
				break
			}
			sampled++
			if snap.VerifySnapshot(i) {
				report.Snapshots.Verified++
			} else {
				report.Snapshots.CorruptSamples = append(report.Snapshots.CorruptSamples, string(i))
				report.Healthy = false
			}
		}
	}

	report.Index.Enabled = idx != nil
	if idx != nil {
		report.Index.Path = aspconfig.IndexDBPath(cfg.AspHome)
	}

	return report
}

// checkWritable reports whether dir exists (creating it if missing) and
// accepts a throwaway file write.
func checkWritable(dir string) bool {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false
	}
	probe := filepath.Join(dir, ".asp-doctor-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return false
	}
	_ = os.Remove(probe)
	return true
}
