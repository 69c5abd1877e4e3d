// Package harness defines the single extension seam for coding-agent
// targets (spec.md §4.10, C10): the Adapter interface every harness
// implements, and a Registry dispatching by harness id. Outside this
// package and its per-harness subpackages (claude, codex, pi), the only
// switch on a harness id is pkg/composer's writeHarnessShapeFiles.
package harness

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"asp/internal/asperr"
	"asp/pkg/manifest"
)

// DetectResult reports whether a harness binary is available on the host.
type DetectResult struct {
	Available    bool
	Version      string
	Path         string
	Capabilities []string
	Error        string
}

// ValidateResult reports whether a space is usable with a harness.
type ValidateResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// SpaceArtifact is one resolved space's materialized input to a harness
// adapter: its manifest, the directory its snapshot lives in, and its
// derived plugin identity fields.
type SpaceArtifact struct {
	Key          string
	Manifest     *manifest.SpaceManifest
	SnapshotPath string
	PluginName   string
	PluginVer    string
}

// MaterializeInput is what an adapter needs to build its own per-harness
// artifact directory for one space (spec.md §4.10 "materializeSpace").
type MaterializeInput struct {
	Artifact       SpaceArtifact
	Integrity      string
	HarnessEnvHash string
	UseHardlinks   bool
	Force          bool
}

// ComposeInput is what an adapter needs to assemble a full target bundle
// (spec.md §4.10 "composeTarget").
type ComposeInput struct {
	TargetName  string
	LoadOrder   []string
	Artifacts   map[string]SpaceArtifact
	ArtifactDir map[string]string // space key -> materialized artifact path
	Settings    manifest.Settings
}

// Bundle is the discriminated output of composeTarget: only the fields
// relevant to the adapter's shape are populated (spec.md §4.9).
type Bundle struct {
	HarnessID string

	// plugin-dir shape
	PluginDirs     []string
	MCPConfigPath  string
	SettingsPath   string

	// agent-home shape
	HomeDir string

	// extension-bundle shape
	BundleDir      string
	RunManifest    string
	HookBridgePath string
}

// RunOptions parameterizes buildRunArgs (spec.md §6): the prompt/args the
// user passed through, plus any interactive vs. captured-output choice.
type RunOptions struct {
	Model         string
	PermissionMode string
	Interactive   bool
	ExtraArgs     []string
}

// Adapter is the harness extension seam (spec.md §4.10).
type Adapter interface {
	ID() string
	Name() string
	Models() []string
	Detect(ctx context.Context) DetectResult
	ValidateSpace(m *manifest.SpaceManifest) ValidateResult
	MaterializeSpace(ctx context.Context, in MaterializeInput, cacheDir string) (string, error)
	ComposeTarget(ctx context.Context, in ComposeInput, outputDir string) (Bundle, error)
	BuildRunArgs(bundle Bundle, opts RunOptions) []string
	GetTargetOutputPath(aspModulesDir, targetName string) string
}

// Registry stores adapters by id, in registration order for listing.
type Registry struct {
	adapters map[string]Adapter
	order    []string
	defaultID string
}

// NewRegistry returns an empty registry with "claude" as the default
// harness id (spec.md §4.10).
func NewRegistry() *Registry {
	return &Registry{adapters: map[string]Adapter{}, defaultID: "claude"}
}

// Register adds an adapter, keyed by its own ID().
func (r *Registry) Register(a Adapter) {
	id := a.ID()
	if _, exists := r.adapters[id]; !exists {
		r.order = append(r.order, id)
	}
	r.adapters[id] = a
}

// Get looks up an adapter by id, returning a HarnessNotFoundError listing
// every registered id when the lookup misses.
func (r *Registry) Get(id string) (Adapter, error) {
	if a, ok := r.adapters[id]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("%w (known harnesses: %s)", asperr.HarnessNotFoundError(id), strings.Join(r.IDs(), ", "))
}

// Default returns the default harness adapter ("claude" unless overridden).
func (r *Registry) Default() (Adapter, error) {
	return r.Get(r.defaultID)
}

// SetDefault overrides which harness id Default() resolves to.
func (r *Registry) SetDefault(id string) {
	r.defaultID = id
}

// IDs returns every registered harness id, sorted for stable error/listing
// output.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	sort.Strings(ids)
	return ids
}

// QuoteArgs renders argv for dry-run display: an argument that is empty or
// contains a character outside [A-Za-z0-9_./-] is single-quoted, escaping
// embedded single quotes by closing-quote, backslash-quote, reopening.
func QuoteArgs(argv []string) string {
	parts := make([]string, len(argv))
	for i, a := range argv {
		parts[i] = a
		if a == "" || strings.IndexFunc(a, func(r rune) bool {
			return !(r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || strings.ContainsRune("_./-", r))
		}) >= 0 {
			parts[i] = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
		}
	}
	return strings.Join(parts, " ")
}
