// Package manifest holds the validated record types for the two on-disk
// TOML documents asp reads: the space manifest (space.toml) and the
// project manifest (asp-targets.toml), plus their single parsing entry
// points. Downstream code never touches raw maps — only these structs,
// per spec.md §9 ("Dynamic typing of manifests").
package manifest

// SpaceManifest is the parsed, validated form of space.toml.
type SpaceManifest struct {
	Schema      int               `toml:"schema"`
	ID          string            `toml:"id"`
	Version     string            `toml:"version"`
	Description string            `toml:"description"`
	Plugin      PluginOverrides   `toml:"plugin"`
	Deps        Deps              `toml:"deps"`
	Settings    Settings          `toml:"settings"`
	Harness     HarnessSupport    `toml:"harness"`
	// PerHarness holds any top-level [<harnessId>] sections other than the
	// well-known ones above, keyed by harness id, populated by Parse from a
	// secondary raw decode so harness adapters can read adapter-specific
	// overrides without this package knowing about every harness.
	PerHarness map[string]map[string]interface{} `toml:"-"`
}

// PluginOverrides mirrors the plugin identity fields a space may override;
// zero values mean "inherit from the space itself" (see §4.8 plugin
// identity derivation).
type PluginOverrides struct {
	Name        string   `toml:"name"`
	Version     string   `toml:"version"`
	Description string   `toml:"description"`
	Author      string   `toml:"author"`
	Homepage    string   `toml:"homepage"`
	Repository  string   `toml:"repository"`
	License     string   `toml:"license"`
	Keywords    []string `toml:"keywords"`
}

// Deps lists a space's transitive dependencies as reference strings,
// parsed further by pkg/spaceref.
type Deps struct {
	Spaces []string `toml:"spaces"`
}

// Settings carries the per-space defaults merged into a composed target.
type Settings struct {
	Permissions Permissions       `toml:"permissions"`
	Env         map[string]string `toml:"env"`
	Model       string            `toml:"model"`
}

// Permissions holds allow/deny tool-permission rules.
type Permissions struct {
	Allow []string `toml:"allow"`
	Deny  []string `toml:"deny"`
}

// HarnessSupport declares which harness ids a space is compatible with.
type HarnessSupport struct {
	Supports []string `toml:"supports"`
}

// ProjectManifest is the parsed, validated form of asp-targets.toml.
type ProjectManifest struct {
	Schema  int                      `toml:"schema"`
	Targets map[string]TargetManifest `toml:"targets"`
}

// TargetManifest is one [targets.<name>] block.
type TargetManifest struct {
	Compose     []string `toml:"compose"`
	Description string   `toml:"description"`
}
