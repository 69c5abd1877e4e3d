// Package codex implements the Codex harness adapter: the agent-home
// shape (spec.md §4.10). The composed target is a single directory
// (exported via CODEX_HOME) containing concatenated instructions, a
// generated config, prompts/, skills/, and an optional mcp.json.
package codex

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/spf13/afero"

	"asp/pkg/harness"
	"asp/pkg/manifest"
	"asp/pkg/materializer"
)

// Adapter implements harness.Adapter for Codex.
type Adapter struct {
	BinPath string
	fs      afero.Fs
}

// New returns a codex Adapter. A nil fs defaults to the real filesystem.
func New(binPath string, fs afero.Fs) *Adapter {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Adapter{BinPath: binPath, fs: fs}
}

func (a *Adapter) ID() string       { return "codex" }
func (a *Adapter) Name() string     { return "Codex" }
func (a *Adapter) Models() []string { return []string{"gpt-5-codex"} }

func (a *Adapter) Detect(ctx context.Context) harness.DetectResult {
	path, err := exec.LookPath(a.BinPath)
	if err != nil {
		return harness.DetectResult{Available: false, Error: err.Error()}
	}
	return harness.DetectResult{Available: true, Path: path}
}

// ValidateSpace flags any space that declares it does not support codex
// in harness.supports, per the per-space harness-support declaration.
func (a *Adapter) ValidateSpace(m *manifest.SpaceManifest) harness.ValidateResult {
	if len(m.Harness.Supports) == 0 {
		return harness.ValidateResult{Valid: true}
	}
	for _, id := range m.Harness.Supports {
		if id == a.ID() {
			return harness.ValidateResult{Valid: true}
		}
	}
	return harness.ValidateResult{
		Valid:  false,
		Errors: []string{fmt.Sprintf("space %s declares support for %v, not %s", m.ID, m.Harness.Supports, a.ID())},
	}
}

func (a *Adapter) MaterializeSpace(ctx context.Context, in harness.MaterializeInput, cacheDir string) (string, error) {
	mz := materializer.New(cacheDir, a.fs)
	result, err := mz.Materialize(materializer.Input{
		SpaceKey:       in.Artifact.Key,
		Manifest:       in.Artifact.Manifest,
		SnapshotPath:   in.Artifact.SnapshotPath,
		Integrity:      in.Integrity,
		HarnessID:      a.ID(),
		HarnessEnvHash: in.HarnessEnvHash,
		UseHardlinks:   in.UseHardlinks,
		Force:          in.Force,
	})
	if err != nil {
		return "", err
	}
	return result.ArtifactPath, nil
}

// ComposeTarget reports the single home directory pkg/composer built
// (AGENTS.md, config, prompts/, skills/, optional mcp.json), all written
// before this call; the adapter just describes the resulting layout.
func (a *Adapter) ComposeTarget(ctx context.Context, in harness.ComposeInput, outputDir string) (harness.Bundle, error) {
	bundle := harness.Bundle{HarnessID: a.ID(), HomeDir: outputDir}
	mcpPath := filepath.Join(outputDir, "mcp.json")
	if ok, _ := afero.Exists(a.fs, mcpPath); ok {
		bundle.MCPConfigPath = mcpPath
	}
	return bundle, nil
}

// BuildRunArgs points CODEX_HOME at the composed directory via env rather
// than argv (spec.md §4.10 "agent-home" shape); the home dir itself is
// threaded through opts.ExtraArgs's caller via the process env, so argv
// here is only an optional --model flag followed by the pass-through user
// args.
func (a *Adapter) BuildRunArgs(bundle harness.Bundle, opts harness.RunOptions) []string {
	var args []string
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	args = append(args, opts.ExtraArgs...)
	return args
}

// Env returns the environment variables buildRunArgs's caller must set
// before invoking the codex binary (spec.md §4.10: "environment variable
// points at the composed directory").
func (a *Adapter) Env(bundle harness.Bundle) map[string]string {
	return map[string]string{"CODEX_HOME": bundle.HomeDir}
}

func (a *Adapter) GetTargetOutputPath(aspModulesDir, targetName string) string {
	return filepath.Join(aspModulesDir, targetName, a.ID())
}
