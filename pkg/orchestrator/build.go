package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"asp/internal/aspconfig"
	"asp/internal/telemetry"
	"asp/pkg/closure"
	"asp/pkg/composer"
	"asp/pkg/harness"
	"asp/pkg/lint"
	"asp/pkg/lockfile"
	"asp/pkg/manifest"
	"asp/pkg/materializer"
)

// BuildOptions parameterizes Build (spec.md §4.12 "Build").
type BuildOptions struct {
	HarnessID string // defaults to o.Config.DefaultHarness
	Clean     bool   // wipe the target's output dir before composing
	RunLint   bool
	OutputDir string // overrides the default .asp/modules root; the adapter's per-target path is still appended
}

// BuildResult is one target's materialized, composed bundle.
type BuildResult struct {
	Bundle   harness.Bundle
	Warnings []string
	Lint     []lint.Warning
}

// Build runs install-if-missing, then materializes every space in a
// target's load order and composes them into one harness bundle
// (spec.md §4.12 steps 1-4): read the lock, materialize each resolved
// space's artifact under the harness cache, compose the target.
func (o *Orchestrator) Build(ctx context.Context, projectDir string, pm *manifest.ProjectManifest, targetName string, opts BuildOptions) (result BuildResult, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "build")
	defer func() {
		telemetry.Counter("build", map[string]any{
			"target":   targetName,
			"clean":    opts.Clean,
			"run_lint": opts.RunLint,
			"success":  err == nil,
		})
		span.End()
	}()

	harnessID := opts.HarnessID
	if harnessID == "" {
		harnessID = o.Config.DefaultHarness
	}
	adapter, err := o.Harnesses.Get(harnessID)
	if err != nil {
		return BuildResult{}, err
	}

	lockPath := filepath.Join(projectDir, "asp-lock.json")
	lock, err := readLock(lockPath, o.Config.RegistryPath, "main")
	if err != nil {
		return BuildResult{}, err
	}
	if _, ok := pm.Targets[targetName]; !ok {
		return BuildResult{}, fmt.Errorf("unknown target %q", targetName)
	}
	lockTarget, ok := lock.Targets[targetName]
	if !ok {
		installResult, err := o.Install(ctx, projectDir, pm, InstallOptions{Targets: []string{targetName}})
		if err != nil {
			return BuildResult{}, err
		}
		lock = installResult.Lock
		lockTarget = lock.Targets[targetName]
	}

	modulesRoot := aspconfig.ModulesDir(projectDir)
	if opts.OutputDir != "" {
		modulesRoot = opts.OutputDir
	}
	outputDir := adapter.GetTargetOutputPath(modulesRoot, targetName)
	if opts.Clean {
		if err := os.RemoveAll(outputDir); err != nil {
			return BuildResult{}, err
		}
	}

	artifacts := map[string]harness.SpaceArtifact{}
	artifactDirs := map[string]string{}
	var warnings []string
	lintSpaces := make([]lint.SpaceContext, 0, len(lockTarget.LoadOrder))

	materializeCtx, materializeSpan := telemetry.Tracer().Start(ctx, "materialize")
	for _, key := range lockTarget.LoadOrder {
		entry, ok := lock.Spaces[key]
		if !ok {
			return BuildResult{}, fmt.Errorf("space %s missing from lock", key)
		}
		m, rs, err := o.manifestAndSourceFor(materializeCtx, entry)
		if err != nil {
			return BuildResult{}, err
		}

		result, err := materializer.New(o.Config.AspHome, o.FS).Materialize(materializer.Input{
			SpaceKey:       key,
			Manifest:       m,
			SnapshotPath:   o.snapshotPathFor(rs, stripIntegrity(entry.Integrity)),
			Integrity:      entry.Integrity,
			HarnessID:      harnessID,
			HarnessEnvHash: lockTarget.EnvHash,
			UseHardlinks:   entry.Commit != "dev" && entry.Commit != "project",
		})
		if err != nil {
			return BuildResult{}, err
		}
		warnings = append(warnings, result.Warnings...)

		identity := materializer.DerivePluginIdentity(m, entry.ID)
		artifacts[key] = harness.SpaceArtifact{
			Key:          key,
			Manifest:     m,
			SnapshotPath: result.ArtifactPath,
			PluginName:   identity.Name,
			PluginVer:    identity.Version,
		}
		artifactDirs[key] = result.ArtifactPath
		lintSpaces = append(lintSpaces, lint.SpaceContext{Key: key, Manifest: m, PluginPath: result.ArtifactPath})
	}
	materializeSpan.End()

	_, composeSpan := telemetry.Tracer().Start(ctx, "compose")
	composeResult, err := composer.Compose(o.FS, composer.Input{
		TargetName:  targetName,
		LoadOrder:   lockTarget.LoadOrder,
		Artifacts:   artifacts,
		ArtifactDir: artifactDirs,
		Adapter:     adapter,
		TmpRoot:     aspconfig.TmpDir(o.Config.AspHome),
		OutputDir:   outputDir,
		Force:       opts.Clean,
	})
	composeSpan.End()
	if err != nil {
		return BuildResult{}, err
	}
	warnings = append(warnings, composeResult.Warnings...)

	result = BuildResult{Bundle: composeResult.Bundle, Warnings: warnings}
	if opts.RunLint {
		_, lintSpan := telemetry.Tracer().Start(ctx, "lint")
		result.Lint = lint.Run(o.FS, lint.Context{
			Spaces:       lintSpaces,
			LockPresent:  true,
			HarnessID:    harnessID,
			HooksBlocked: !hasCapability(adapter, "blocking-hooks"),
		})
		lintSpan.End()
	}
	return result, nil
}

// manifestAndSourceFor reconstructs the resolved-space view a lock entry
// implies, for re-resolving its manifest and source tree at build time
// (the lock only stores the derived facts, not the live manifest).
func (o *Orchestrator) manifestAndSourceFor(ctx context.Context, entry lockfile.SpaceEntry) (*manifest.SpaceManifest, closure.ResolvedSpace, error) {
	rs := closure.ResolvedSpace{
		ID:     entry.ID,
		Commit: entry.Commit,
		Path:   entry.Path,
		Deps:   entry.Deps.Spaces,
	}
	if entry.ResolvedFrom != nil {
		rs.ResolvedFrom.Selector = entry.ResolvedFrom.Selector
		rs.ResolvedFrom.Tag = entry.ResolvedFrom.Tag
		rs.ResolvedFrom.Semver = entry.ResolvedFrom.Semver
	}
	m, err := o.resolveManifest(ctx, entry.Commit, entry.Path)
	if err != nil {
		return nil, closure.ResolvedSpace{}, err
	}
	return m, rs, nil
}

func stripIntegrity(integrity string) string {
	const prefix = "sha256:"
	if len(integrity) > len(prefix) && integrity[:len(prefix)] == prefix {
		return integrity[len(prefix):]
	}
	return integrity
}

func hasCapability(adapter harness.Adapter, capability string) bool {
	for _, c := range adapter.Detect(context.Background()).Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}
