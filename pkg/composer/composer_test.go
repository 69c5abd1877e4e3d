package composer

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"

	"asp/pkg/harness"
	"asp/pkg/manifest"
)

type stubAdapter struct{ id string }

func (s *stubAdapter) ID() string       { return s.id }
func (s *stubAdapter) Name() string     { return s.id }
func (s *stubAdapter) Models() []string { return nil }
func (s *stubAdapter) Detect(ctx context.Context) harness.DetectResult {
	return harness.DetectResult{Available: true}
}
func (s *stubAdapter) ValidateSpace(m *manifest.SpaceManifest) harness.ValidateResult {
	return harness.ValidateResult{Valid: true}
}
func (s *stubAdapter) MaterializeSpace(ctx context.Context, in harness.MaterializeInput, cacheDir string) (string, error) {
	return cacheDir, nil
}
func (s *stubAdapter) ComposeTarget(ctx context.Context, in harness.ComposeInput, outputDir string) (harness.Bundle, error) {
	return harness.Bundle{HarnessID: s.id, PluginDirs: in.LoadOrder}, nil
}
func (s *stubAdapter) BuildRunArgs(bundle harness.Bundle, opts harness.RunOptions) []string { return nil }
func (s *stubAdapter) GetTargetOutputPath(aspModulesDir, targetName string) string {
	return filepath.Join(aspModulesDir, targetName, s.id)
}

func writeMCP(t *testing.T, dir string, servers map[string]interface{}) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(dir, "mcp"), 0o755); err != nil {
		t.Fatal(err)
	}
	data, _ := json.Marshal(map[string]interface{}{"mcpServers": servers})
	if err := os.WriteFile(filepath.Join(dir, "mcp", "mcp.json"), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestComposeMergesMCPWithDuplicateWarning(t *testing.T) {
	base := t.TempDir()
	app := t.TempDir()
	writeMCP(t, base, map[string]interface{}{"search": map[string]interface{}{"cmd": "base-search"}})
	writeMCP(t, app, map[string]interface{}{"search": map[string]interface{}{"cmd": "app-search"}})

	in := Input{
		TargetName: "dev",
		LoadOrder:  []string{"base@abc", "app@def"},
		Artifacts: map[string]harness.SpaceArtifact{
			"base@abc": {Key: "base@abc", Manifest: &manifest.SpaceManifest{ID: "base"}, SnapshotPath: base, PluginName: "base"},
			"app@def":  {Key: "app@def", Manifest: &manifest.SpaceManifest{ID: "app"}, SnapshotPath: app, PluginName: "app"},
		},
		ArtifactDir: map[string]string{"base@abc": base, "app@def": app},
		Adapter:     &stubAdapter{id: "claude"},
		TmpRoot:     t.TempDir(),
		OutputDir:   filepath.Join(t.TempDir(), "out"),
	}

	result, err := Compose(afero.NewOsFs(), in)
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}

	foundDupWarning := false
	for _, w := range result.Warnings {
		if w != "" && filepath.Base(w) != "" {
			foundDupWarning = foundDupWarning || (len(w) > 0 && contains(w, "search"))
		}
	}
	if !foundDupWarning {
		t.Errorf("expected a duplicate mcp server warning, got: %v", result.Warnings)
	}

	data, err := os.ReadFile(filepath.Join(in.OutputDir, "mcp.json"))
	if err != nil {
		t.Fatalf("expected merged mcp.json: %v", err)
	}
	var doc mcpDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("mcp.json invalid json: %v", err)
	}
	server := doc.MCPServers["search"].(map[string]interface{})
	if server["cmd"] != "app-search" {
		t.Errorf("expected later space to win, got %v", server)
	}
}

func TestComposeWritesAgentHomeConfigTOML(t *testing.T) {
	base := t.TempDir()
	writeMCP(t, base, map[string]interface{}{"search": map[string]interface{}{"cmd": "base-search"}})

	in := Input{
		TargetName: "dev",
		LoadOrder:  []string{"base@abc"},
		Artifacts: map[string]harness.SpaceArtifact{
			"base@abc": {Key: "base@abc", Manifest: &manifest.SpaceManifest{ID: "base"}, SnapshotPath: base, PluginName: "base"},
		},
		ArtifactDir: map[string]string{"base@abc": base},
		Adapter:     &stubAdapter{id: "codex"},
		TmpRoot:     t.TempDir(),
		OutputDir:   filepath.Join(t.TempDir(), "out"),
	}

	if _, err := Compose(afero.NewOsFs(), in); err != nil {
		t.Fatalf("Compose failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(in.OutputDir, "config.toml"))
	if err != nil {
		t.Fatalf("expected config.toml: %v", err)
	}
	var cfg agentHomeConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("config.toml invalid toml: %v", err)
	}
	if cfg.SandboxMode == "" || cfg.ApprovalPolicy == "" {
		t.Errorf("expected sandbox_mode and approval_policy set, got %+v", cfg)
	}
	want := []string{"AGENTS.md", "AGENT.md"}
	if len(cfg.ProjectDocFallbackFilenames) != 2 || cfg.ProjectDocFallbackFilenames[0] != want[0] || cfg.ProjectDocFallbackFilenames[1] != want[1] {
		t.Errorf("project_doc_fallback_filenames = %v, want %v", cfg.ProjectDocFallbackFilenames, want)
	}
	if _, ok := cfg.MCPServers["search"]; !ok {
		t.Errorf("expected mcp_servers to carry merged servers, got %v", cfg.MCPServers)
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
