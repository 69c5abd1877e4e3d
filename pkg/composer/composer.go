// Package composer implements the target composer (spec.md §4.9, C9):
// turning an ordered set of materialized per-space artifacts into the
// bundle shape a harness adapter expects, including the cross-space
// concerns that don't belong to any single space's artifact — settings
// aggregation and MCP server composition across loadOrder.
//
// Grounded on the teacher's layered config-merge discipline in
// internal/config (later source wins, conflicts surfaced rather than
// silently dropped), generalized from "merge config layers" to "merge
// per-space settings/MCP servers across a dependency-ordered list."
package composer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"

	"asp/internal/stage"
	"asp/pkg/harness"
	"asp/pkg/manifest"
)

// Input is what the composer needs for one target (spec.md §4.9).
type Input struct {
	TargetName  string
	LoadOrder   []string
	Artifacts   map[string]harness.SpaceArtifact
	ArtifactDir map[string]string
	Adapter     harness.Adapter
	TmpRoot     string
	OutputDir   string
	Force       bool
}

// Result is the composer's own report, separate from the harness bundle:
// warnings accumulated during cross-space merges (duplicate plugin names,
// duplicate MCP server names) that the caller attaches to the build
// result (spec.md §4.12 step 5 "attach warnings").
type Result struct {
	Bundle   harness.Bundle
	Warnings []string
}

type mcpServers = map[string]interface{}

type mcpDoc struct {
	MCPServers mcpServers `json:"mcpServers"`
}

// Compose writes the cross-space aggregates (settings.json, mcp.json, and
// for agent-home harnesses the concatenated AGENTS.md / prompts / skills),
// then calls the harness adapter's ComposeTarget to get the final
// discriminated bundle.
func Compose(fs afero.Fs, in Input) (Result, error) {
	var warnings []string

	if fs == nil {
		fs = afero.NewOsFs()
	}

	mergedMCP, mcpWarnings, err := mergeMCP(fs, in)
	if err != nil {
		return Result{}, fmt.Errorf("failed to merge mcp.json across %s: %w", in.TargetName, err)
	}
	warnings = append(warnings, mcpWarnings...)

	pluginWarnings := warnAboutDuplicatePlugins(in)
	warnings = append(warnings, pluginWarnings...)

	settings := mergeSettings(in)

	err = stage.WriteOnce(in.TmpRoot, in.OutputDir, func(stageDir string) error {
		if len(mergedMCP) > 0 {
			data, jerr := json.MarshalIndent(mcpDoc{MCPServers: mergedMCP}, "", "  ")
			if jerr != nil {
				return jerr
			}
			if werr := afero.WriteFile(fs, filepath.Join(stageDir, "mcp.json"), data, 0o644); werr != nil {
				return werr
			}
		}

		data, jerr := json.MarshalIndent(settings, "", "  ")
		if jerr != nil {
			return jerr
		}
		if werr := afero.WriteFile(fs, filepath.Join(stageDir, "settings.json"), data, 0o644); werr != nil {
			return werr
		}

		return writeHarnessShapeFiles(fs, stageDir, in, mergedMCP)
	})
	if err != nil {
		return Result{}, err
	}

	composeInput := harness.ComposeInput{
		TargetName:  in.TargetName,
		LoadOrder:   in.LoadOrder,
		Artifacts:   in.Artifacts,
		ArtifactDir: in.ArtifactDir,
		Settings:    settings,
	}
	bundle, err := in.Adapter.ComposeTarget(context.Background(), composeInput, in.OutputDir)
	if err != nil {
		return Result{}, err
	}
	return Result{Bundle: bundle, Warnings: warnings}, nil
}

// mergeMCP reads each space's mcp/mcp.json (if present in its snapshot)
// and merges servers across loadOrder, later entry wins, warning on every
// duplicate server name and naming all owning spaces (spec.md §4.8's MCP
// composition paragraph).
func mergeMCP(fs afero.Fs, in Input) (mcpServers, []string, error) {
	merged := mcpServers{}
	owners := map[string][]string{}
	var warnings []string

	for _, key := range in.LoadOrder {
		artifact, ok := in.Artifacts[key]
		if !ok {
			continue
		}
		path := filepath.Join(artifact.SnapshotPath, "mcp", "mcp.json")
		exists, err := afero.Exists(fs, path)
		if err != nil {
			return nil, nil, err
		}
		if !exists {
			continue
		}
		data, err := afero.ReadFile(fs, path)
		if err != nil {
			return nil, nil, err
		}
		var doc mcpDoc
		if err := json.Unmarshal(data, &doc); err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: malformed mcp/mcp.json, skipped: %v", key, err))
			continue
		}
		for name, cfg := range doc.MCPServers {
			owners[name] = append(owners[name], key)
			merged[name] = cfg
		}
	}

	for name, spaces := range owners {
		if len(spaces) > 1 {
			warnings = append(warnings, fmt.Sprintf("mcp server %q declared by multiple spaces (%s); last in load order wins", name, strings.Join(spaces, ", ")))
		}
	}
	sort.Strings(warnings)
	return merged, warnings, nil
}

// warnAboutDuplicatePlugins flags when two spaces in the same target
// derive the same plugin name (spec.md §4.11 W205's condition, surfaced
// here too since the composer is where the full target's plugin set is
// known at once).
func warnAboutDuplicatePlugins(in Input) []string {
	owners := map[string][]string{}
	for _, key := range in.LoadOrder {
		a, ok := in.Artifacts[key]
		if !ok {
			continue
		}
		owners[a.PluginName] = append(owners[a.PluginName], key)
	}
	var warnings []string
	for name, spaces := range owners {
		if len(spaces) > 1 {
			warnings = append(warnings, fmt.Sprintf("plugin name %q used by multiple spaces (%s)", name, strings.Join(spaces, ", ")))
		}
	}
	sort.Strings(warnings)
	return warnings
}

// mergeSettings folds every space's settings in loadOrder, later entry
// wins per scalar field; env maps merge key-by-key (later wins per key);
// permission allow/deny lists concatenate and dedup.
func mergeSettings(in Input) manifest.Settings {
	var out manifest.Settings
	out.Env = map[string]string{}
	seenAllow := map[string]bool{}
	seenDeny := map[string]bool{}

	for _, key := range in.LoadOrder {
		a, ok := in.Artifacts[key]
		if !ok || a.Manifest == nil {
			continue
		}
		s := a.Manifest.Settings
		if s.Model != "" {
			out.Model = s.Model
		}
		for k, v := range s.Env {
			out.Env[k] = v
		}
		for _, rule := range s.Permissions.Allow {
			if !seenAllow[rule] {
				seenAllow[rule] = true
				out.Permissions.Allow = append(out.Permissions.Allow, rule)
			}
		}
		for _, rule := range s.Permissions.Deny {
			if !seenDeny[rule] {
				seenDeny[rule] = true
				out.Permissions.Deny = append(out.Permissions.Deny, rule)
			}
		}
	}
	return out
}

// writeHarnessShapeFiles writes the parts of the bundle specific to the
// agent-home and extension-bundle shapes (plugin-dir needs nothing beyond
// settings.json/mcp.json, already written above). Detecting the shape by
// adapter id keeps this the one place that knows about all three, rather
// than leaking shape knowledge into the adapters' own ComposeTarget
// (which only describes what's already on disk).
func writeHarnessShapeFiles(fs afero.Fs, stageDir string, in Input, mergedMCP mcpServers) error {
	switch in.Adapter.ID() {
	case "codex":
		return writeAgentHome(fs, stageDir, in, mergedMCP)
	case "pi":
		return writeExtensionBundle(fs, stageDir, in)
	default:
		return nil
	}
}

// agentHomeConfig is the agent-home harness's config.toml shape (spec.md
// §4.10, §6): sandbox/approval defaults plus the project-doc fallback
// chain and the same merged MCP servers mcp.json carries.
type agentHomeConfig struct {
	SandboxMode                 string     `toml:"sandbox_mode"`
	ApprovalPolicy              string     `toml:"approval_policy"`
	ProjectDocFallbackFilenames []string   `toml:"project_doc_fallback_filenames"`
	MCPServers                  mcpServers `toml:"mcp_servers"`
}

const (
	defaultSandboxMode    = "workspace-write"
	defaultApprovalPolicy = "on-failure"
)

// writeAgentHome concatenates each space's instructions file (AGENTS.md,
// falling back to README.md) in loadOrder, and mirrors commands/ and
// skills/ into prompts//skills (spec.md §4.9 "home-dir style").
func writeAgentHome(fs afero.Fs, stageDir string, in Input, mergedMCP mcpServers) error {
	var instructions strings.Builder
	for _, key := range in.LoadOrder {
		a, ok := in.Artifacts[key]
		if !ok {
			continue
		}
		for _, name := range []string{"AGENTS.md", "README.md"} {
			path := filepath.Join(a.SnapshotPath, name)
			if exists, _ := afero.Exists(fs, path); exists {
				data, err := afero.ReadFile(fs, path)
				if err != nil {
					return err
				}
				instructions.WriteString(fmt.Sprintf("<!-- %s -->\n", key))
				instructions.Write(data)
				instructions.WriteString("\n\n")
				break
			}
		}

		if err := mirrorComponentDir(fs, filepath.Join(a.SnapshotPath, "commands"), filepath.Join(stageDir, "prompts")); err != nil {
			return err
		}
		if err := mirrorComponentDir(fs, filepath.Join(a.SnapshotPath, "skills"), filepath.Join(stageDir, "skills")); err != nil {
			return err
		}
	}

	if err := afero.WriteFile(fs, filepath.Join(stageDir, "AGENTS.md"), []byte(instructions.String()), 0o644); err != nil {
		return err
	}

	config := agentHomeConfig{
		SandboxMode:                 defaultSandboxMode,
		ApprovalPolicy:              defaultApprovalPolicy,
		ProjectDocFallbackFilenames: []string{"AGENTS.md", "AGENT.md"},
		MCPServers:                  mergedMCP,
	}
	data, err := toml.Marshal(config)
	if err != nil {
		return err
	}
	return afero.WriteFile(fs, filepath.Join(stageDir, "config.toml"), data, 0o644)
}

func mirrorComponentDir(fs afero.Fs, srcDir, dstDir string) error {
	exists, err := afero.DirExists(fs, srcDir)
	if err != nil || !exists {
		return nil
	}
	return afero.Walk(fs, srcDir, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, relErr := filepath.Rel(srcDir, path)
		if relErr != nil {
			return relErr
		}
		dstPath := filepath.Join(dstDir, rel)
		if info.IsDir() {
			return fs.MkdirAll(dstPath, 0o755)
		}
		if err := fs.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
			return err
		}
		data, err := afero.ReadFile(fs, path)
		if err != nil {
			return err
		}
		return afero.WriteFile(fs, dstPath, data, info.Mode())
	})
}

// runManifestEntry describes one space's contribution to an
// extension-bundle run manifest.
type runManifestEntry struct {
	SpaceKey     string `json:"spaceKey"`
	ArtifactPath string `json:"artifactPath"`
}

// writeExtensionBundle writes the run manifest and, when any space
// declares hooks, a hook-bridge script that Pi can shell out to even
// though it cannot block on hook results (spec.md §4.9 "extension-bundle
// style", §4.11 W301).
func writeExtensionBundle(fs afero.Fs, stageDir string, in Input) error {
	var entries []runManifestEntry
	hasHooks := false
	for _, key := range in.LoadOrder {
		dir, ok := in.ArtifactDir[key]
		if !ok {
			continue
		}
		entries = append(entries, runManifestEntry{SpaceKey: key, ArtifactPath: dir})
		if exists, _ := afero.DirExists(fs, filepath.Join(dir, "hooks")); exists {
			hasHooks = true
		}
	}

	data, err := json.MarshalIndent(map[string]interface{}{"spaces": entries}, "", "  ")
	if err != nil {
		return err
	}
	if err := afero.WriteFile(fs, filepath.Join(stageDir, "run-manifest.json"), data, 0o644); err != nil {
		return err
	}

	if hasHooks {
		script := "#!/bin/sh\n# non-blocking hook bridge: invokes each space's hook commands\n# best-effort, result ignored (pi cannot honor blocking hooks)\n"
		if err := afero.WriteFile(fs, filepath.Join(stageDir, "hook-bridge.sh"), []byte(script), 0o755); err != nil {
			return err
		}
	}
	return nil
}
