// Package pi implements the Pi harness adapter: the extension-bundle
// shape (spec.md §4.10). Pi cannot honor blocking hooks; its Detect reports
// no "blocking-hooks" capability, which is what the lint engine's W301
// rule keys on.
package pi

import (
	"context"
	"os/exec"
	"path/filepath"

	"github.com/spf13/afero"

	"asp/pkg/harness"
	"asp/pkg/manifest"
	"asp/pkg/materializer"
)

// Adapter implements harness.Adapter for Pi.
type Adapter struct {
	BinPath string
	fs      afero.Fs
}

// New returns a pi Adapter. A nil fs defaults to the real filesystem.
func New(binPath string, fs afero.Fs) *Adapter {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Adapter{BinPath: binPath, fs: fs}
}

func (a *Adapter) ID() string       { return "pi" }
func (a *Adapter) Name() string     { return "Pi" }
func (a *Adapter) Models() []string { return []string{"pi-default"} }

func (a *Adapter) Detect(ctx context.Context) harness.DetectResult {
	path, err := exec.LookPath(a.BinPath)
	if err != nil {
		return harness.DetectResult{Available: false, Error: err.Error()}
	}
	return harness.DetectResult{Available: true, Path: path, Capabilities: []string{"non-blocking-hooks"}}
}

// ValidateSpace accepts every space and returns no errors or warnings; it
// does not inspect hooks, so a blocking hook is not rejected here. Blocking
// hooks are reported only by lint rule W301.
func (a *Adapter) ValidateSpace(m *manifest.SpaceManifest) harness.ValidateResult {
	return harness.ValidateResult{Valid: true}
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

// ComposeTarget reports the bundle directory, run manifest, and optional
// hook-bridge script pkg/composer already wrote for the extension-bundle
// shape.
func (a *Adapter) ComposeTarget(ctx context.Context, in harness.ComposeInput, outputDir string) (harness.Bundle, error) {
	bundle := harness.Bundle{
		HarnessID:   a.ID(),
		BundleDir:   outputDir,
		RunManifest: filepath.Join(outputDir, "run-manifest.json"),
	}
	bridgePath := filepath.Join(outputDir, "hook-bridge.sh")
	if ok, _ := afero.Exists(a.fs, bridgePath); ok {
		bundle.HookBridgePath = bridgePath
	}
	return bundle, nil
}

// BuildRunArgs names the bundle directory via a single flag (spec.md
// §4.10: "a flag names the bundle directory").
func (a *Adapter) BuildRunArgs(bundle harness.Bundle, opts harness.RunOptions) []string {
	args := []string{"--bundle", bundle.BundleDir}
	args = append(args, opts.ExtraArgs...)
	return args
}

func (a *Adapter) GetTargetOutputPath(aspModulesDir, targetName string) string {
	return filepath.Join(aspModulesDir, targetName, a.ID())
}
