package manifest

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"

	"asp/internal/asperr"
	"asp/internal/schemavalidate"
)

var reservedSpaceManifestKeys = map[string]bool{
	"schema": true, "id": true, "version": true, "description": true,
	"plugin": true, "deps": true, "settings": true, "harness": true,
}

// ParseSpaceManifest decodes and validates space.toml content. path is
// used only for error messages.
func ParseSpaceManifest(path string, data []byte) (*SpaceManifest, error) {
	if err := schemavalidate.ValidateTOML(schemavalidate.SpaceManifestSchema, data); err != nil {
		return nil, asperr.ConfigValidationError(path, "", err.Error())
	}

	var m SpaceManifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, asperr.ConfigParseError(path, err)
	}

	var raw map[string]interface{}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, asperr.ConfigParseError(path, err)
	}
	m.PerHarness = map[string]map[string]interface{}{}
	for k, v := range raw {
		if reservedSpaceManifestKeys[k] {
			continue
		}
		if section, ok := v.(map[string]interface{}); ok {
			m.PerHarness[k] = section
		}
	}

	if m.Schema != 1 {
		return nil, asperr.ConfigValidationError(path, "schema", fmt.Sprintf("unsupported schema %d, expected 1", m.Schema))
	}
	if m.ID == "" {
		return nil, asperr.ConfigValidationError(path, "id", "must not be empty")
	}
	return &m, nil
}

// ParseProjectManifest decodes and validates asp-targets.toml content.
func ParseProjectManifest(path string, data []byte) (*ProjectManifest, error) {
	if err := schemavalidate.ValidateTOML(schemavalidate.ProjectManifestSchema, data); err != nil {
		return nil, asperr.ConfigValidationError(path, "", err.Error())
	}

	var m ProjectManifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, asperr.ConfigParseError(path, err)
	}
	if m.Schema != 1 {
		return nil, asperr.ConfigValidationError(path, "schema", fmt.Sprintf("unsupported schema %d, expected 1", m.Schema))
	}
	if len(m.Targets) == 0 {
		return nil, asperr.ConfigValidationError(path, "targets", "must declare at least one target")
	}
	for name, t := range m.Targets {
		if len(t.Compose) == 0 {
			return nil, asperr.ConfigValidationError(path, fmt.Sprintf("targets.%s.compose", name), "must list at least one space reference")
		}
	}
	return &m, nil
}

// EncodeProjectManifest serializes a ProjectManifest back to TOML, used by
// `add`/`remove`/`upgrade` to rewrite asp-targets.toml.
func EncodeProjectManifest(m *ProjectManifest) ([]byte, error) {
	return toml.Marshal(m)
}
