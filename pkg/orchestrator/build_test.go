package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"asp/internal/aspconfig"
	"asp/pkg/harness/claude"
	"asp/pkg/manifest"
)

func newClaudeOrchestrator(t *testing.T, registryDir string) *Orchestrator {
	t.Helper()
	o := newTestOrchestrator(t, registryDir)
	o.Harnesses.Register(claude.New("claude", nil))
	o.Harnesses.SetDefault("claude")
	return o
}

func TestBuildComposesPluginDirsInLoadOrder(t *testing.T) {
	registryDir := initRegistry(t)
	writeSpace(t, registryDir, "base", nil)
	writeSpace(t, registryDir, "app", []string{"space:base@dev"})
	if err := os.MkdirAll(filepath.Join(registryDir, "spaces", "app", "commands"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(registryDir, "spaces", "app", "commands", "deploy.md"), []byte("do it"), 0o644); err != nil {
		t.Fatal(err)
	}
	runGit(t, registryDir, "add", ".")
	runGit(t, registryDir, "commit", "-m", "initial")

	o := newClaudeOrchestrator(t, registryDir)
	pm := &manifest.ProjectManifest{
		Schema: 1,
		Targets: map[string]manifest.TargetManifest{
			"default": {Compose: []string{"space:app@dev"}},
		},
	}
	projectDir := t.TempDir()

	result, err := o.Build(context.Background(), projectDir, pm, "default", BuildOptions{RunLint: true})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(result.Bundle.PluginDirs) != 2 {
		t.Fatalf("expected 2 plugin dirs, got %v", result.Bundle.PluginDirs)
	}
	if _, err := os.Stat(filepath.Join(result.Bundle.PluginDirs[1], "commands", "deploy.md")); err != nil {
		t.Errorf("expected app's commands/deploy.md materialized: %v", err)
	}

	for _, w := range result.Lint {
		if w.Code == "W101" {
			t.Error("did not expect a missing-lock warning once installed")
		}
	}
}

func TestBuildCleanRemovesPriorOutput(t *testing.T) {
	registryDir := initRegistry(t)
	writeSpace(t, registryDir, "base", nil)
	runGit(t, registryDir, "add", ".")
	runGit(t, registryDir, "commit", "-m", "initial")

	o := newClaudeOrchestrator(t, registryDir)
	pm := &manifest.ProjectManifest{
		Schema: 1,
		Targets: map[string]manifest.TargetManifest{
			"default": {Compose: []string{"space:base@dev"}},
		},
	}
	projectDir := t.TempDir()

	if _, err := o.Build(context.Background(), projectDir, pm, "default", BuildOptions{}); err != nil {
		t.Fatalf("first build failed: %v", err)
	}

	outputDir := claude.New("claude", nil).GetTargetOutputPath(aspconfig.ModulesDir(projectDir), "default")
	stray := filepath.Join(outputDir, "stray-leftover.txt")
	if err := os.WriteFile(stray, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := o.Build(context.Background(), projectDir, pm, "default", BuildOptions{Clean: true}); err != nil {
		t.Fatalf("second build failed: %v", err)
	}
	if _, err := os.Stat(stray); !os.IsNotExist(err) {
		t.Error("expected clean build to remove the stray leftover file")
	}
}
