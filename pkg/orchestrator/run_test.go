package orchestrator

import (
	"context"
	"os/exec"
	"testing"

	"asp/internal/aspconfig"
	"asp/pkg/harness"
	"asp/pkg/manifest"
)

// echoAdapter is a harness.Adapter stub whose BuildRunArgs produces a
// real, harmless command line so Run can exercise actual process
// execution without depending on a Claude/Codex/Pi binary being
// installed on the test machine.
type echoAdapter struct{ binPath string }

func (a *echoAdapter) ID() string       { return "echo" }
func (a *echoAdapter) Name() string     { return "Echo" }
func (a *echoAdapter) Models() []string { return nil }
func (a *echoAdapter) Detect(ctx context.Context) harness.DetectResult {
	return harness.DetectResult{Available: true, Path: a.binPath}
}
func (a *echoAdapter) ValidateSpace(m *manifest.SpaceManifest) harness.ValidateResult {
	return harness.ValidateResult{Valid: true}
}
func (a *echoAdapter) MaterializeSpace(ctx context.Context, in harness.MaterializeInput, cacheDir string) (string, error) {
	return cacheDir, nil
}
func (a *echoAdapter) ComposeTarget(ctx context.Context, in harness.ComposeInput, outputDir string) (harness.Bundle, error) {
	return harness.Bundle{HarnessID: "echo", PluginDirs: in.LoadOrder}, nil
}
func (a *echoAdapter) BuildRunArgs(bundle harness.Bundle, opts harness.RunOptions) []string {
	return []string{"ran"}
}
func (a *echoAdapter) GetTargetOutputPath(aspModulesDir, targetName string) string {
	return aspModulesDir + "/" + targetName + "/echo"
}

func TestRunDevModeWritesNoLock(t *testing.T) {
	echoPath, err := exec.LookPath("echo")
	if err != nil {
		t.Skip("echo not found on PATH")
	}

	registryDir := initRegistry(t)
	writeSpace(t, registryDir, "base", nil)
	runGit(t, registryDir, "add", ".")
	runGit(t, registryDir, "commit", "-m", "initial")

	o := newTestOrchestrator(t, registryDir)
	o.Harnesses.Register(&echoAdapter{binPath: echoPath})

	result, err := o.Run(context.Background(), RunOptions{
		Mode:      RunDev,
		SpaceRef:  "space:base@dev",
		HarnessID: "echo",
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %d", result.ExitCode)
	}
	if len(result.Args) == 0 {
		t.Error("expected BuildRunArgs output to be non-empty")
	}
}

func TestRunGlobalModePersistsToGlobalLock(t *testing.T) {
	echoPath, err := exec.LookPath("echo")
	if err != nil {
		t.Skip("echo not found on PATH")
	}

	registryDir := initRegistry(t)
	writeSpace(t, registryDir, "base", nil)
	runGit(t, registryDir, "add", ".")
	runGit(t, registryDir, "commit", "-m", "initial")

	o := newTestOrchestrator(t, registryDir)
	o.Harnesses.Register(&echoAdapter{binPath: echoPath})

	_, err = o.Run(context.Background(), RunOptions{
		Mode:      RunGlobal,
		SpaceRef:  "space:base@dev",
		HarnessID: "echo",
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	globalPath := aspconfig.GlobalLockPath(o.Config.AspHome)
	lock, err := readLock(globalPath, o.Config.RegistryPath, "main")
	if err != nil {
		t.Fatalf("failed to read global lock: %v", err)
	}
	if _, ok := lock.Targets[globalTargetKey]; !ok {
		t.Error("expected the global lock to contain the _global target")
	}
}
