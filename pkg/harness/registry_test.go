package harness

import (
	"context"
	"strings"
	"testing"

	"asp/pkg/manifest"
)

type fakeAdapter struct{ id string }

func (f *fakeAdapter) ID() string       { return f.id }
func (f *fakeAdapter) Name() string     { return f.id }
func (f *fakeAdapter) Models() []string { return nil }
func (f *fakeAdapter) Detect(ctx context.Context) DetectResult { return DetectResult{Available: true} }
func (f *fakeAdapter) ValidateSpace(m *manifest.SpaceManifest) ValidateResult {
	return ValidateResult{Valid: true}
}
func (f *fakeAdapter) MaterializeSpace(ctx context.Context, in MaterializeInput, cacheDir string) (string, error) {
	return cacheDir, nil
}
func (f *fakeAdapter) ComposeTarget(ctx context.Context, in ComposeInput, outputDir string) (Bundle, error) {
	return Bundle{HarnessID: f.id}, nil
}
func (f *fakeAdapter) BuildRunArgs(bundle Bundle, opts RunOptions) []string { return nil }
func (f *fakeAdapter) GetTargetOutputPath(aspModulesDir, targetName string) string {
	return aspModulesDir + "/" + targetName + "/" + f.id
}

func TestRegistryUnknownIDListsKnown(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeAdapter{id: "claude"})
	r.Register(&fakeAdapter{id: "codex"})

	_, err := r.Get("nope")
	if err == nil {
		t.Fatal("expected error for unknown harness id")
	}
	if !strings.Contains(err.Error(), "claude") || !strings.Contains(err.Error(), "codex") {
		t.Errorf("expected error to list known ids, got: %v", err)
	}
}

func TestRegistryDefault(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeAdapter{id: "claude"})
	a, err := r.Default()
	if err != nil {
		t.Fatalf("Default failed: %v", err)
	}
	if a.ID() != "claude" {
		t.Errorf("expected default claude, got %s", a.ID())
	}
}

func TestQuoteArgs(t *testing.T) {
	out := QuoteArgs([]string{"--plugin-dir", "/tmp/has space", "plain"})
	if out != `--plugin-dir '/tmp/has space' plain` {
		t.Errorf("unexpected quoting: %q", out)
	}
}
