package orchestrator

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"asp/internal/aspconfig"
	"asp/internal/gitexec"
	"asp/pkg/harness"
	"asp/pkg/manifest"
)

func writeSpace(t *testing.T, registryDir, id string, deps []string) {
	t.Helper()
	dir := filepath.Join(registryDir, "spaces", id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	var depsLine string
	if len(deps) > 0 {
		quoted := make([]string, len(deps))
		for i, d := range deps {
			quoted[i] = `"` + d + `"`
		}
		depsLine = "[deps]\nspaces = [" + strings.Join(quoted, ", ") + "]\n"
	}
	content := "schema = 1\nid = \"" + id + "\"\nversion = \"1.0.0\"\n" + depsLine
	if err := os.WriteFile(filepath.Join(dir, "space.toml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	c := exec.Command("git", args...)
	c.Dir = dir
	if out, err := c.CombinedOutput(); err != nil {
		t.Fatalf("git %v failed: %v: %s", args, err, out)
	}
}

func initRegistry(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	runGit(t, dir, "init")
	runGit(t, dir, "config", "user.email", "test@test.com")
	runGit(t, dir, "config", "user.name", "Test User")
	return dir
}

func newTestOrchestrator(t *testing.T, registryDir string) *Orchestrator {
	t.Helper()
	cfg := &aspconfig.Context{
		AspHome:        t.TempDir(),
		RegistryPath:   registryDir,
		DefaultHarness: "claude",
		MaxParallel:    4,
	}
	registry := harness.NewRegistry()
	return New(cfg, gitexec.NewAdapter(registryDir), registry, nil)
}

func TestInstallCreatesLockWithLoadOrder(t *testing.T) {
	registryDir := initRegistry(t)
	writeSpace(t, registryDir, "base", nil)
	writeSpace(t, registryDir, "app", []string{"space:base@dev"})
	runGit(t, registryDir, "add", ".")
	runGit(t, registryDir, "commit", "-m", "initial")

	o := newTestOrchestrator(t, registryDir)
	pm := &manifest.ProjectManifest{
		Schema: 1,
		Targets: map[string]manifest.TargetManifest{
			"default": {Compose: []string{"space:app@dev"}},
		},
	}

	projectDir := t.TempDir()
	result, err := o.Install(context.Background(), projectDir, pm, InstallOptions{})
	if err != nil {
		t.Fatalf("Install failed: %v", err)
	}

	target, ok := result.Lock.Targets["default"]
	if !ok {
		t.Fatal("expected target \"default\" in lock")
	}
	if len(target.LoadOrder) != 2 {
		t.Fatalf("expected 2 spaces in load order, got %v", target.LoadOrder)
	}
	if target.EnvHash == "" {
		t.Error("expected a non-empty env hash")
	}
	if _, err := os.Stat(filepath.Join(projectDir, "asp-lock.json")); err != nil {
		t.Errorf("expected asp-lock.json to be written: %v", err)
	}
}

func TestInstallUpdateReusesPinsUnlessUpgraded(t *testing.T) {
	registryDir := initRegistry(t)
	writeSpace(t, registryDir, "base", nil)
	runGit(t, registryDir, "add", ".")
	runGit(t, registryDir, "commit", "-m", "v1")

	o := newTestOrchestrator(t, registryDir)
	pm := &manifest.ProjectManifest{
		Schema: 1,
		Targets: map[string]manifest.TargetManifest{
			"default": {Compose: []string{"space:base@dev"}},
		},
	}
	projectDir := t.TempDir()

	first, err := o.Install(context.Background(), projectDir, pm, InstallOptions{})
	if err != nil {
		t.Fatalf("first install failed: %v", err)
	}
	firstEnvHash := first.Lock.Targets["default"].EnvHash

	second, err := o.Install(context.Background(), projectDir, pm, InstallOptions{Update: true, UpgradeSpaceIDs: []string{"nonexistent"}})
	if err != nil {
		t.Fatalf("second install failed: %v", err)
	}
	if second.Lock.Targets["default"].EnvHash != firstEnvHash {
		t.Error("expected env hash to stay stable when the upgrade set excludes every pinned space")
	}
}
