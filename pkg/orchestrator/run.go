package orchestrator

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"asp/internal/aspconfig"
	"asp/internal/telemetry"
	"asp/pkg/composer"
	"asp/pkg/harness"
	"asp/pkg/lockfile"
	"asp/pkg/manifest"
	"asp/pkg/materializer"
)

// globalTargetKey is the target key Run writes into the global lock when
// run in global mode, since there is no project target name to key by
// (spec.md §4.12 "Run", global sub-mode).
const globalTargetKey = "_global"

// RunMode selects one of Run's three sub-modes (spec.md §4.12 "Run").
type RunMode int

const (
	RunProject RunMode = iota
	RunGlobal
	RunDev
)

// RunOptions parameterizes Run.
type RunOptions struct {
	Mode RunMode

	// Project mode.
	ProjectDir string
	Target     string
	Project    *manifest.ProjectManifest

	// Global and dev mode: a full "space:..." reference string.
	SpaceRef string

	HarnessID      string
	Model          string
	PermissionMode string
	Interactive    bool
	ExtraArgs      []string

	// DryRun skips invoking the harness binary: Run still resolves,
	// snapshots, materializes, and composes, then returns the argv that
	// would have been executed (spec.md §6 "run ... [--dry-run]").
	DryRun bool
}

// RunResult is what Run produced: the composed bundle, the argv the
// harness was (or would be) invoked with, and its exit code.
type RunResult struct {
	Bundle   harness.Bundle
	Args     []string
	ExitCode int
}

// envProvider is implemented by adapters that need environment variables
// set around the harness process rather than passed as argv (codex's
// CODEX_HOME), an optional interface since most adapters need nothing.
type envProvider interface {
	Env(bundle harness.Bundle) map[string]string
}

// Run builds a target (or a single space, in global/dev mode) into a
// fresh run- directory under aspconfig.TmpDir (ASP_HOME's tmp/, or
// $TMPDIR/asp when TMPDIR is set) and executes the harness binary
// against it (spec.md §4.12 "Run").
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (result RunResult, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "run")
	defer func() {
		telemetry.Counter("run", map[string]any{
			"mode":    opts.Mode,
			"success": err == nil,
		})
		span.End()
	}()

	harnessID := opts.HarnessID
	if harnessID == "" {
		harnessID = o.Config.DefaultHarness
	}
	adapter, err := o.Harnesses.Get(harnessID)
	if err != nil {
		return RunResult{}, err
	}

	var rootRefs []string
	var lock *lockfile.Lock
	var targetKey string
	var persist func(*lockfile.Lock) error

	switch opts.Mode {
	case RunProject:
		if opts.Project == nil {
			return RunResult{}, fmt.Errorf("run: project mode requires a project manifest")
		}
		target, ok := opts.Project.Targets[opts.Target]
		if !ok {
			return RunResult{}, fmt.Errorf("unknown target %q", opts.Target)
		}
		rootRefs = target.Compose
		targetKey = opts.Target
		lockPath := filepath.Join(opts.ProjectDir, "asp-lock.json")
		lock, err = readLock(lockPath, o.Config.RegistryPath, "main")
		if err != nil {
			return RunResult{}, err
		}
		persist = func(l *lockfile.Lock) error {
			l.GeneratedAt = nowStamp()
			return writeLockAtomic(lockPath, l)
		}

	case RunGlobal:
		rootRefs = []string{opts.SpaceRef}
		targetKey = globalTargetKey
		globalPath := aspconfig.GlobalLockPath(o.Config.AspHome)
		lock, err = readLock(globalPath, o.Config.RegistryPath, "main")
		if err != nil {
			return RunResult{}, err
		}
		persist = func(l *lockfile.Lock) error {
			l.GeneratedAt = nowStamp()
			return writeLockAtomic(globalPath, l)
		}

	case RunDev:
		rootRefs = []string{opts.SpaceRef}
		targetKey = globalTargetKey
		lock = lockfile.New(o.Config.RegistryPath, "main", nowStamp())
		persist = func(*lockfile.Lock) error { return nil }

	default:
		return RunResult{}, fmt.Errorf("run: unknown mode %d", opts.Mode)
	}

	pinned := pinnedSpacesFor(lock, targetKey, false, nil)
	resolveCtx, resolveSpan := telemetry.Tracer().Start(ctx, "resolve")
	closureResult, err := o.closureBuilder().Build(resolveCtx, rootRefs, pinned)
	resolveSpan.End()
	if err != nil {
		return RunResult{}, err
	}

	snap := o.storeFor()
	snapshotCtx, snapshotSpan := telemetry.Tracer().Start(ctx, "snapshot")
	err = o.ensureSnapshots(snapshotCtx, snap, closureResult.Resolved, lock)
	snapshotSpan.End()
	if err != nil {
		return RunResult{}, err
	}

	lockTarget := lockfile.Target{
		Compose:   rootRefs,
		Roots:     closureResult.Roots,
		LoadOrder: closureResult.LoadOrder,
	}
	lockTarget.EnvHash = lockfile.EnvHash(closureResult.LoadOrder, lock.Spaces)
	lock.Targets[targetKey] = lockTarget
	if err := persist(lock); err != nil {
		return RunResult{}, err
	}

	tmpRoot := aspconfig.TmpDir(o.Config.AspHome)
	if err := os.MkdirAll(tmpRoot, 0o755); err != nil {
		return RunResult{}, err
	}
	runDir, err := os.MkdirTemp(tmpRoot, "run-")
	if err != nil {
		return RunResult{}, err
	}
	outputDir := adapter.GetTargetOutputPath(runDir, targetKey)

	artifacts := map[string]harness.SpaceArtifact{}
	artifactDirs := map[string]string{}
	materializeCtx, materializeSpan := telemetry.Tracer().Start(ctx, "materialize")
	for _, key := range lockTarget.LoadOrder {
		entry := lock.Spaces[key]
		m, rs, err := o.manifestAndSourceFor(materializeCtx, entry)
		if err != nil {
			return RunResult{}, err
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
			return RunResult{}, err
		}
		identity := materializer.DerivePluginIdentity(m, entry.ID)
		artifacts[key] = harness.SpaceArtifact{
			Key:          key,
			Manifest:     m,
			SnapshotPath: result.ArtifactPath,
			PluginName:   identity.Name,
			PluginVer:    identity.Version,
		}
		artifactDirs[key] = result.ArtifactPath
	}
	materializeSpan.End()

	_, composeSpan := telemetry.Tracer().Start(ctx, "compose")
	composeResult, err := composer.Compose(o.FS, composer.Input{
		TargetName:  targetKey,
		LoadOrder:   lockTarget.LoadOrder,
		Artifacts:   artifacts,
		ArtifactDir: artifactDirs,
		Adapter:     adapter,
		TmpRoot:     runDir,
		OutputDir:   outputDir,
		Force:       true,
	})
	composeSpan.End()
	if err != nil {
		return RunResult{}, err
	}

	args := adapter.BuildRunArgs(composeResult.Bundle, harness.RunOptions{
		Model:          opts.Model,
		PermissionMode: opts.PermissionMode,
		Interactive:    opts.Interactive,
		ExtraArgs:      opts.ExtraArgs,
	})

	if opts.DryRun {
		return RunResult{Bundle: composeResult.Bundle, Args: args}, nil
	}

	binPath := adapter.Detect(ctx).Path
	if binPath == "" {
		binPath = adapter.ID()
	}
	cmd := exec.CommandContext(ctx, binPath, args...)
	cmd.Env = os.Environ()
	if provider, ok := adapter.(envProvider); ok {
		for k, v := range provider.Env(composeResult.Bundle) {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
	}
	if opts.Interactive {
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}

	runErr := cmd.Run()
	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return RunResult{Bundle: composeResult.Bundle, Args: args}, runErr
		}
	}

	return RunResult{Bundle: composeResult.Bundle, Args: args, ExitCode: exitCode}, nil
}
