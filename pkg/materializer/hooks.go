package materializer

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
)

// HookEntry is one declaration in the canonical abstract-event hooks.toml
// format (spec.md §4.8 step 3).
type HookEntry struct {
	Event    string `toml:"event"`
	Matcher  string `toml:"matcher"`
	Command  string `toml:"command"`
	Blocking bool   `toml:"blocking"`
}

// HooksDoc is the parsed content of hooks.toml: a flat list of entries.
type HooksDoc struct {
	Hook []HookEntry `toml:"hook"`
}

// harnessHookAction is one harness-specific hooks.json action.
type harnessHookAction struct {
	Type    string `json:"type"`
	Command string `json:"command"`
}

// harnessHookGroup is one matcher group within a harness event.
type harnessHookGroup struct {
	Matcher string              `json:"matcher"`
	Hooks   []harnessHookAction `json:"hooks"`
}

// TranslateHooksTOML converts the canonical abstract-event format into the
// harness-specific hooks.json shape: grouped by event, matcher defaulting
// to "*" when unset (spec.md §4.8 step 3).
func TranslateHooksTOML(data []byte) ([]byte, error) {
	var doc HooksDoc
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid hooks.toml: %w", err)
	}

	byEvent := map[string][]harnessHookGroup{}
	for _, entry := range doc.Hook {
		matcher := entry.Matcher
		if matcher == "" {
			matcher = "*"
		}
		group := harnessHookGroup{
			Matcher: matcher,
			Hooks:   []harnessHookAction{{Type: "command", Command: entry.Command}},
		}
		byEvent[entry.Event] = append(byEvent[entry.Event], group)
	}

	events := make([]string, 0, len(byEvent))
	for event := range byEvent {
		events = append(events, event)
	}
	sort.Strings(events)

	ordered := make(map[string][]harnessHookGroup, len(byEvent))
	for _, event := range events {
		ordered[event] = byEvent[event]
	}

	return json.MarshalIndent(ordered, "", "  ")
}

// translateHooks looks for hooks.toml in dstDir and, if present, writes a
// translated hooks.json alongside it. A legacy hooks.json with no
// hooks.toml is tolerated and left as-is on disk; it's already in the
// harness-consumable shape, so nothing needs rewriting there, but callers
// that need the canonical abstract-event view use ReadHooksDoc below.
func translateHooks(fs afero.Fs, dstDir string) ([]string, error) {
	tomlPath := dstDir + "/hooks.toml"
	data, err := afero.ReadFile(fs, tomlPath)
	if err != nil {
		return nil, nil
	}

	jsonData, err := TranslateHooksTOML(data)
	if err != nil {
		return []string{fmt.Sprintf("failed to translate %s: %v", tomlPath, err)}, nil
	}

	if err := afero.WriteFile(fs, dstDir+"/hooks.json", jsonData, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write translated hooks.json: %w", err)
	}
	return nil, nil
}

// ReadHooksDoc reads a space's hooks directory back into the canonical
// abstract-event HooksDoc shape, for callers needing structured access
// (lint's W203/W204/W206/W301 rules). hooks.toml wins when present;
// otherwise a legacy hooks.json is tolerated and normalized in memory
// (spec.md §4.8: "When hooks.toml is absent, tolerate legacy hooks.json
// and normalize in memory"). Returns false only when neither file exists
// or the one that does exist fails to parse.
func ReadHooksDoc(fs afero.Fs, hooksDir string) (HooksDoc, bool) {
	tomlPath := filepath.Join(hooksDir, "hooks.toml")
	if data, err := afero.ReadFile(fs, tomlPath); err == nil {
		var doc HooksDoc
		if err := toml.Unmarshal(data, &doc); err != nil {
			return HooksDoc{}, false
		}
		return doc, true
	}

	jsonPath := filepath.Join(hooksDir, "hooks.json")
	data, err := afero.ReadFile(fs, jsonPath)
	if err != nil {
		return HooksDoc{}, false
	}
	return parseLegacyHooksJSON(data)
}

// parseLegacyHooksJSON reverses TranslateHooksTOML: harness-shaped
// {event: [{matcher, hooks: [{type, command}]}]} back into a flat
// HooksDoc. Legacy hooks.json carries no blocking flag, so every
// reconstructed entry defaults to non-blocking.
func parseLegacyHooksJSON(data []byte) (HooksDoc, bool) {
	var raw map[string][]harnessHookGroup
	if err := json.Unmarshal(data, &raw); err != nil {
		return HooksDoc{}, false
	}

	events := make([]string, 0, len(raw))
	for event := range raw {
		events = append(events, event)
	}
	sort.Strings(events)

	var doc HooksDoc
	for _, event := range events {
		for _, group := range raw[event] {
			for _, action := range group.Hooks {
				doc.Hook = append(doc.Hook, HookEntry{
					Event:   event,
					Matcher: group.Matcher,
					Command: action.Command,
				})
			}
		}
	}
	return doc, true
}
