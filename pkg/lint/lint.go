// Package lint implements the lint engine (spec.md §4.11, C11): a fixed
// set of independent, non-fatal rules over a composed target's spaces,
// concatenated and sorted by code for stable output.
//
// Grounded on the teacher's request-validation pattern in internal/api/v1
// handlers (collecting independent field errors into one response object
// rather than failing fast on the first problem), generalized from "one
// HTTP request" to "one target's set of materialized spaces."
package lint

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"asp/pkg/manifest"
	"asp/pkg/materializer"
)

// Severity is a warning's importance; none of them are fatal (spec.md §4.11).
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// Warning is one lint finding.
type Warning struct {
	Code     string
	Severity Severity
	Message  string
}

// SpaceContext is one space's materialized view, as the lint engine needs
// it (spec.md §4.11's LintContext.spaces).
type SpaceContext struct {
	Key        string
	Manifest   *manifest.SpaceManifest
	PluginPath string // the materialized artifact directory
}

// Context is the full input to the lint engine.
type Context struct {
	Spaces       []SpaceContext
	LockPresent  bool
	HarnessID    string // for W301; empty means "don't check"
	HooksBlocked bool   // true when the harness cannot honor blocking hooks
}

type rule func(fs afero.Fs, ctx Context) []Warning

var rules = []rule{
	ruleW101LockMissing,
	ruleW201DuplicateCommandNames,
	ruleW202ReservedNames,
	ruleW203UnsafeHookPaths,
	ruleW204MissingOrMalformedHooksDoc,
	ruleW205DuplicatePluginNames,
	ruleW206NonExecutableHookScripts,
	ruleW207MisplacedComponentDir,
	ruleW301UnsupportedBlockingHooks,
}

// Run executes every rule independently and returns their findings
// concatenated and sorted by code (spec.md §4.11). The engine always
// produces a result; no rule failure is fatal to the run.
func Run(fs afero.Fs, ctx Context) []Warning {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	var all []Warning
	for _, r := range rules {
		all = append(all, r(fs, ctx)...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Code < all[j].Code })
	return all
}

func ruleW101LockMissing(fs afero.Fs, ctx Context) []Warning {
	if ctx.LockPresent {
		return nil
	}
	return []Warning{{Code: "W101", Severity: SeverityInfo, Message: "lock file absent"}}
}

var reservedCommandNames = map[string]bool{"help": true, "exit": true, "clear": true}

func ruleW201DuplicateCommandNames(fs afero.Fs, ctx Context) []Warning {
	owners := map[string][]string{}
	for _, s := range ctx.Spaces {
		names, _ := listComponentBaseNames(fs, s.PluginPath, "commands")
		for _, name := range names {
			owners[name] = append(owners[name], s.Key)
		}
	}
	var warnings []Warning
	for name, spaces := range owners {
		if len(spaces) <= 1 {
			continue
		}
		sort.Strings(spaces)
		suggestion := make([]string, 0, len(spaces))
		for _, key := range spaces {
			plugin := spacePluginName(ctx, key)
			suggestion = append(suggestion, "/"+plugin+":"+strings.TrimSuffix(name, filepath.Ext(name)))
		}
		warnings = append(warnings, Warning{
			Code:     "W201",
			Severity: SeverityWarning,
			Message:  "command " + name + " declared by multiple spaces (" + strings.Join(spaces, ", ") + "); use " + strings.Join(suggestion, " or "),
		})
	}
	return warnings
}

func ruleW202ReservedNames(fs afero.Fs, ctx Context) []Warning {
	var warnings []Warning
	for _, s := range ctx.Spaces {
		for _, component := range []string{"commands", "agents"} {
			names, _ := listComponentBaseNames(fs, s.PluginPath, component)
			for _, name := range names {
				base := strings.TrimSuffix(name, filepath.Ext(name))
				if reservedCommandNames[base] {
					warnings = append(warnings, Warning{
						Code:     "W202",
						Severity: SeverityWarning,
						Message:  s.Key + ": " + component + "/" + name + " uses reserved non-namespaced name " + base,
					})
				}
			}
		}
	}
	return warnings
}

func ruleW203UnsafeHookPaths(fs afero.Fs, ctx Context) []Warning {
	var warnings []Warning
	for _, s := range ctx.Spaces {
		doc, ok := readHooksDoc(fs, s.PluginPath)
		if !ok {
			continue
		}
		for _, entry := range doc.Hook {
			if strings.Contains(entry.Command, "..") || filepath.IsAbs(entry.Command) {
				warnings = append(warnings, Warning{
					Code:     "W203",
					Severity: SeverityWarning,
					Message:  s.Key + ": hook command " + entry.Command + " is not root-relative",
				})
			}
		}
	}
	return warnings
}

func ruleW204MissingOrMalformedHooksDoc(fs afero.Fs, ctx Context) []Warning {
	var warnings []Warning
	for _, s := range ctx.Spaces {
		hooksDir := filepath.Join(s.PluginPath, "hooks")
		exists, _ := afero.DirExists(fs, hooksDir)
		if !exists {
			continue
		}
		if _, ok := readHooksDoc(fs, s.PluginPath); !ok {
			warnings = append(warnings, Warning{
				Code:     "W204",
				Severity: SeverityWarning,
				Message:  s.Key + ": hooks/ exists but hooks.json/hooks.toml is missing or malformed",
			})
		}
	}
	return warnings
}

func ruleW205DuplicatePluginNames(fs afero.Fs, ctx Context) []Warning {
	owners := map[string][]string{}
	for _, s := range ctx.Spaces {
		if s.Manifest == nil {
			continue
		}
		name := s.Manifest.Plugin.Name
		if name == "" {
			name = s.Manifest.ID
		}
		owners[name] = append(owners[name], s.Key)
	}
	var warnings []Warning
	for name, spaces := range owners {
		if len(spaces) > 1 {
			sort.Strings(spaces)
			warnings = append(warnings, Warning{
				Code:     "W205",
				Severity: SeverityWarning,
				Message:  "plugin name " + name + " used by multiple spaces (" + strings.Join(spaces, ", ") + ")",
			})
		}
	}
	return warnings
}

func ruleW206NonExecutableHookScripts(fs afero.Fs, ctx Context) []Warning {
	var warnings []Warning
	for _, s := range ctx.Spaces {
		hooksDir := filepath.Join(s.PluginPath, "hooks")
		doc, ok := readHooksDoc(fs, s.PluginPath)
		if !ok {
			continue
		}
		for _, entry := range doc.Hook {
			scriptPath := filepath.Join(hooksDir, entry.Command)
			info, err := fs.Stat(scriptPath)
			if err != nil {
				continue
			}
			if info.Mode()&0o100 == 0 {
				warnings = append(warnings, Warning{
					Code:     "W206",
					Severity: SeverityWarning,
					Message:  s.Key + ": hook script " + entry.Command + " lacks user-execute bit",
				})
			}
		}
	}
	return warnings
}

func ruleW207MisplacedComponentDir(fs afero.Fs, ctx Context) []Warning {
	var warnings []Warning
	for _, s := range ctx.Spaces {
		wrongRoot := filepath.Join(s.PluginPath, ".claude-plugin")
		for _, component := range []string{"commands", "skills", "agents", "hooks", "mcp"} {
			exists, _ := afero.DirExists(fs, filepath.Join(wrongRoot, component))
			if exists {
				warnings = append(warnings, Warning{
					Code:     "W207",
					Severity: SeverityWarning,
					Message:  s.Key + ": " + component + "/ found inside .claude-plugin/, expected at the artifact root",
				})
			}
		}
	}
	return warnings
}

func ruleW301UnsupportedBlockingHooks(fs afero.Fs, ctx Context) []Warning {
	if !ctx.HooksBlocked {
		return nil
	}
	var warnings []Warning
	for _, s := range ctx.Spaces {
		doc, ok := readHooksDoc(fs, s.PluginPath)
		if !ok {
			continue
		}
		for _, entry := range doc.Hook {
			if entry.Blocking {
				warnings = append(warnings, Warning{
					Code:     "W301",
					Severity: SeverityWarning,
					Message:  s.Key + ": harness " + ctx.HarnessID + " cannot honor blocking hook for event " + entry.Event,
				})
				break
			}
		}
	}
	return warnings
}

func spacePluginName(ctx Context, key string) string {
	for _, s := range ctx.Spaces {
		if s.Key == key && s.Manifest != nil {
			if s.Manifest.Plugin.Name != "" {
				return s.Manifest.Plugin.Name
			}
			return s.Manifest.ID
		}
	}
	return key
}

func listComponentBaseNames(fs afero.Fs, pluginPath, component string) ([]string, error) {
	dir := filepath.Join(pluginPath, component)
	exists, err := afero.DirExists(fs, dir)
	if err != nil || !exists {
		return nil, nil
	}
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func readHooksDoc(fs afero.Fs, pluginPath string) (materializer.HooksDoc, bool) {
	return materializer.ReadHooksDoc(fs, filepath.Join(pluginPath, "hooks"))
}
