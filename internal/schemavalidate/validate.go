// Package schemavalidate runs embedded JSON Schemas over decoded manifest
// and lock documents before they are trusted by the rest of asp, using the
// teacher's own github.com/xeipuuv/gojsonschema dependency (used elsewhere
// in the pack for tool-call schema validation).
package schemavalidate

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Schema identifies one of the embedded schema documents.
type Schema string

const (
	SpaceManifestSchema   Schema = "space-manifest.json"
	ProjectManifestSchema Schema = "project-manifest.json"
	LockFileSchema        Schema = "lock-file.json"
)

func loader(schema Schema) (gojsonschema.JSONLoader, error) {
	data, err := schemaFS.ReadFile("schemas/" + string(schema))
	if err != nil {
		return nil, fmt.Errorf("embedded schema %s missing: %w", schema, err)
	}
	return gojsonschema.NewBytesLoader(data), nil
}

// ValidateJSON validates raw JSON bytes against the named embedded schema.
func ValidateJSON(schema Schema, data []byte) error {
	schemaLoader, err := loader(schema)
	if err != nil {
		return err
	}
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	return collectErrors(result)
}

// ValidateTOML decodes TOML into a generic map, re-encodes it as JSON, and
// validates that against the named embedded schema, so both on-disk
// document formats share one validation path.
func ValidateTOML(schema Schema, data []byte) error {
	var generic map[string]interface{}
	if err := toml.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("invalid TOML: %w", err)
	}
	jsonBytes, err := json.Marshal(generic)
	if err != nil {
		return fmt.Errorf("failed to re-encode TOML as JSON for validation: %w", err)
	}
	return ValidateJSON(schema, jsonBytes)
}

func collectErrors(result *gojsonschema.Result) error {
	if result.Valid() {
		return nil
	}
	var msgs []string
	for _, e := range result.Errors() {
		msgs = append(msgs, fmt.Sprintf("%s: %s", e.Field(), e.Description()))
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}
