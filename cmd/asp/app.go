package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"asp/internal/aspconfig"
	"asp/internal/gitexec"
	"asp/internal/index"
	"asp/pkg/harness"
	"asp/pkg/harness/claude"
	"asp/pkg/harness/codex"
	"asp/pkg/harness/pi"
	"asp/pkg/manifest"
	"asp/pkg/orchestrator"
)

// app bundles everything a command handler needs once the cobra init
// chain has run: the resolved config, the registry git adapter, the
// harness registry, and (lazily) the orchestrator and optional index.
type app struct {
	cfg       *aspconfig.Context
	adapter   *gitexec.Adapter
	harnesses *harness.Registry
	idx       *index.Index
}

// newApp builds the shared context for one CLI invocation. It never opens
// the registry clone itself — gitexec.Adapter shells out lazily per call —
// but it does open the index cache, which callers must Close.
func newApp(cfg *aspconfig.Context) (*app, error) {
	registryDir := cfg.RegistryPath
	if registryDir == "" {
		registryDir = aspconfig.DefaultRegistryDir(cfg.AspHome)
	}

	registry := harness.NewRegistry()
	registry.Register(claude.New(cfg.ClaudeBinPath, nil))
	registry.Register(codex.New(cfg.CodexBinPath, nil))
	registry.Register(pi.New(cfg.PiBinPath, nil))
	registry.SetDefault(cfg.DefaultHarness)

	idx, err := index.Open(aspconfig.IndexDBPath(cfg.AspHome))
	if err != nil {
		// The index is a pure accelerator (SPEC_FULL.md A5): a failure to
		// open it (e.g. a corrupt index.db) degrades to "no index" rather
		// than failing the command; `doctor` surfaces the condition.
		idx = nil
	}

	return &app{
		cfg:       cfg,
		adapter:   gitexec.NewAdapter(registryDir),
		harnesses: registry,
		idx:       idx,
	}, nil
}

func (a *app) close() {
	if a.idx != nil {
		a.idx.Close()
	}
}

func (a *app) orchestrator(fs afero.Fs) *orchestrator.Orchestrator {
	o := orchestrator.New(a.cfg, a.adapter, a.harnesses, fs)
	o.Index = a.idx
	return o
}

// projectManifestPath returns asp-targets.toml under dir.
func projectManifestPath(dir string) string {
	return filepath.Join(dir, "asp-targets.toml")
}

// loadProjectManifest reads and parses asp-targets.toml from dir.
func loadProjectManifest(dir string) (*manifest.ProjectManifest, error) {
	path := projectManifestPath(dir)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no asp-targets.toml in %s (run `asp repo init` or create one)", dir)
		}
		return nil, err
	}
	return manifest.ParseProjectManifest(path, data)
}

func writeProjectManifest(dir string, pm *manifest.ProjectManifest) error {
	data, err := manifest.EncodeProjectManifest(pm)
	if err != nil {
		return err
	}
	return os.WriteFile(projectManifestPath(dir), data, 0o644)
}
