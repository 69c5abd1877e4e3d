// Package claude implements the Claude Code harness adapter: the
// plugin-dir shape (spec.md §4.10). Each space's materialized artifact is
// a standalone plugin directory; composeTarget just orders those
// directories and points at an aggregated MCP config and settings file.
package claude

import (
	"context"
	"os/exec"
	"path/filepath"

	"github.com/spf13/afero"

	"asp/pkg/harness"
	"asp/pkg/manifest"
	"asp/pkg/materializer"
)

// Adapter implements harness.Adapter for Claude Code.
type Adapter struct {
	BinPath string
	fs      afero.Fs
}

// New returns a claude Adapter. A nil fs defaults to the real filesystem.
func New(binPath string, fs afero.Fs) *Adapter {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Adapter{BinPath: binPath, fs: fs}
}

func (a *Adapter) ID() string       { return "claude" }
func (a *Adapter) Name() string     { return "Claude Code" }
func (a *Adapter) Models() []string { return []string{"claude-opus-4-6", "claude-sonnet-4-6"} }

func (a *Adapter) Detect(ctx context.Context) harness.DetectResult {
	path, err := exec.LookPath(a.BinPath)
	if err != nil {
		return harness.DetectResult{Available: false, Error: err.Error()}
	}
	out, err := exec.CommandContext(ctx, path, "--version").Output()
	version := ""
	if err == nil {
		version = string(out)
	}
	return harness.DetectResult{Available: true, Path: path, Version: version}
}

// ValidateSpace reports no claude-specific restrictions today; Claude
// Code honors blocking hooks natively (unlike the Pi extension-bundle
// shape, spec.md §4.11 W301).
func (a *Adapter) ValidateSpace(m *manifest.SpaceManifest) harness.ValidateResult {
	return harness.ValidateResult{Valid: true}
}

// MaterializeSpace delegates to the shared materializer; claude's cache
// layout is exactly what pkg/materializer already produces (plugin.json +
// component directories).
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

// ComposeTarget lists the per-space artifact directories in load order and
// points at the composer-built aggregated mcp.json/settings.json, both
// written by pkg/composer before this is called.
func (a *Adapter) ComposeTarget(ctx context.Context, in harness.ComposeInput, outputDir string) (harness.Bundle, error) {
	var dirs []string
	for _, key := range in.LoadOrder {
		if dir, ok := in.ArtifactDir[key]; ok {
			dirs = append(dirs, dir)
		}
	}

	bundle := harness.Bundle{HarnessID: a.ID(), PluginDirs: dirs}

	mcpPath := filepath.Join(outputDir, "mcp.json")
	if ok, _ := afero.Exists(a.fs, mcpPath); ok {
		bundle.MCPConfigPath = mcpPath
	}
	settingsPath := filepath.Join(outputDir, "settings.json")
	if ok, _ := afero.Exists(a.fs, settingsPath); ok {
		bundle.SettingsPath = settingsPath
	}
	return bundle, nil
}

// BuildRunArgs builds the claude CLI flag-list invocation (spec.md §4.10):
// one --plugin-dir per space, optional --mcp-config/--settings, model and
// permission-mode flags, then pass-through args.
func (a *Adapter) BuildRunArgs(bundle harness.Bundle, opts harness.RunOptions) []string {
	var args []string
	for _, dir := range bundle.PluginDirs {
		args = append(args, "--plugin-dir", dir)
	}
	if bundle.MCPConfigPath != "" {
		args = append(args, "--mcp-config", bundle.MCPConfigPath)
	}
	if bundle.SettingsPath != "" {
		args = append(args, "--setting-sources", bundle.SettingsPath)
		args = append(args, "--settings", bundle.SettingsPath)
	}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	if opts.PermissionMode != "" {
		args = append(args, "--permission-mode", opts.PermissionMode)
	}
	args = append(args, opts.ExtraArgs...)
	return args
}

func (a *Adapter) GetTargetOutputPath(aspModulesDir, targetName string) string {
	return filepath.Join(aspModulesDir, targetName, a.ID())
}
