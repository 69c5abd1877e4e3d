// Package lockfile implements the lock file model (spec.md §4.7, C7):
// deterministic JSON (de)serialization of asp-lock.json, validation of its
// grammar-constrained fields, and the env-hash computation that ties a
// target's load order to a reproducible cache key.
package lockfile

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"

	"asp/internal/asperr"
)

const (
	LockfileVersion  = 1
	ResolverVersion  = 1
)

// Registry describes where the registry lives.
type Registry struct {
	Type          string `json:"type"`
	URL           string `json:"url"`
	DefaultBranch string `json:"defaultBranch,omitempty"`
}

// ResolvedFrom records provenance for traceability (spec.md §3).
type ResolvedFrom struct {
	Selector string `json:"selector"`
	Tag      string `json:"tag,omitempty"`
	Semver   string `json:"semver,omitempty"`
}

// PluginRef names a space's derived plugin identity.
type PluginRef struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// SpaceEntry is one entry in lock.spaces (spec.md §3).
type SpaceEntry struct {
	ID        string    `json:"id"`
	Commit    string    `json:"commit"`
	Path      string    `json:"path"`
	Integrity string    `json:"integrity"`
	Plugin    PluginRef `json:"plugin"`
	Deps      struct {
		Spaces []string `json:"spaces"`
	} `json:"deps"`
	ResolvedFrom *ResolvedFrom `json:"resolvedFrom,omitempty"`
}

// HarnessTargetInfo is a per-harness sub-record within a target.
type HarnessTargetInfo struct {
	EnvHash  string   `json:"envHash"`
	Warnings []string `json:"warnings,omitempty"`
}

// Target is one entry in lock.targets (spec.md §3).
type Target struct {
	Compose   []string                     `json:"compose"`
	Roots     []string                     `json:"roots"`
	LoadOrder []string                     `json:"loadOrder"`
	EnvHash   string                       `json:"envHash"`
	Warnings  []string                     `json:"warnings,omitempty"`
	Harnesses map[string]HarnessTargetInfo `json:"harnesses,omitempty"`
}

// Lock is the full parsed content of asp-lock.json.
type Lock struct {
	LockfileVersion int                   `json:"lockfileVersion"`
	ResolverVersion int                   `json:"resolverVersion"`
	GeneratedAt     string                `json:"generatedAt"`
	Registry        Registry              `json:"registry"`
	Spaces          map[string]SpaceEntry `json:"spaces"`
	Targets         map[string]Target     `json:"targets"`
}

var (
	commitPattern    = regexp.MustCompile(`^([0-9a-f]{7,64}|dev|project)$`)
	integrityPattern = regexp.MustCompile(`^(sha256:[0-9a-f]{64}|sha256:dev|sha256:project)$`)
)

// New returns an empty Lock for the given registry, with the current
// fixed version numbers.
func New(registryURL, defaultBranch, generatedAt string) *Lock {
	return &Lock{
		LockfileVersion: LockfileVersion,
		ResolverVersion: ResolverVersion,
		GeneratedAt:     generatedAt,
		Registry:        Registry{Type: "git", URL: registryURL, DefaultBranch: defaultBranch},
		Spaces:          map[string]SpaceEntry{},
		Targets:         map[string]Target{},
	}
}

// Parse decodes and validates lock file JSON per spec.md §4.7's grammar
// constraints.
func Parse(data []byte) (*Lock, error) {
	var l Lock
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, asperr.ConfigParseError("asp-lock.json", err)
	}

	if l.LockfileVersion != LockfileVersion {
		return nil, asperr.ConfigValidationError("asp-lock.json", "lockfileVersion", fmt.Sprintf("unsupported lockfileVersion %d, expected %d", l.LockfileVersion, LockfileVersion))
	}
	if l.ResolverVersion != ResolverVersion {
		return nil, asperr.ConfigValidationError("asp-lock.json", "resolverVersion", fmt.Sprintf("unsupported resolverVersion %d, expected %d", l.ResolverVersion, ResolverVersion))
	}
	if l.Registry.Type != "git" {
		return nil, asperr.ConfigValidationError("asp-lock.json", "registry.type", fmt.Sprintf("unsupported registry type %q, expected \"git\"", l.Registry.Type))
	}
	for key, entry := range l.Spaces {
		if !commitPattern.MatchString(entry.Commit) {
			return nil, asperr.ConfigValidationError("asp-lock.json", fmt.Sprintf("spaces.%s.commit", key), fmt.Sprintf("invalid commit %q", entry.Commit))
		}
		if !integrityPattern.MatchString(entry.Integrity) {
			return nil, asperr.ConfigValidationError("asp-lock.json", fmt.Sprintf("spaces.%s.integrity", key), fmt.Sprintf("invalid integrity %q", entry.Integrity))
		}
	}
	return &l, nil
}

// Marshal serializes the lock to deterministic pretty JSON: 2-space indent,
// trailing newline (spec.md §4.7).
func Marshal(l *Lock) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(l); err != nil {
		return nil, fmt.Errorf("failed to encode lock file: %w", err)
	}
	return buf.Bytes(), nil
}

// EnvHash computes a target's environment hash per spec.md §4.7:
// sha256("v1\0" || for key in loadOrder: key || "\0" || integrity || "\n").
func EnvHash(loadOrder []string, spaces map[string]SpaceEntry) string {
	h := sha256.New()
	h.Write([]byte("v1\x00"))
	for _, key := range loadOrder {
		entry := spaces[key]
		h.Write([]byte(key))
		h.Write([]byte{0})
		h.Write([]byte(entry.Integrity))
		h.Write([]byte{'\n'})
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil))
}

// HarnessEnvHash computes the per-harness subhash: the target's EnvHash
// stream, plus a second stable field block with the harness id and
// detected version, before the final newline (spec.md §4.7).
func HarnessEnvHash(loadOrder []string, spaces map[string]SpaceEntry, harnessID, harnessVersion string) string {
	h := sha256.New()
	h.Write([]byte("v1\x00"))
	for _, key := range loadOrder {
		entry := spaces[key]
		h.Write([]byte(key))
		h.Write([]byte{0})
		h.Write([]byte(entry.Integrity))
		h.Write([]byte{'\n'})
	}
	h.Write([]byte(harnessID))
	h.Write([]byte{0})
	h.Write([]byte(harnessVersion))
	h.Write([]byte{'\n'})
	return "sha256:" + hex.EncodeToString(h.Sum(nil))
}

// FindCompatiblePin reports whether id has a pinned commit in the lock
// whose space entry still exists, for reuse during a non-update install
// (spec.md §4.7, "install (no update)").
func (l *Lock) FindCompatiblePin(id string) (commit string, ok bool) {
	for _, entry := range l.Spaces {
		if entry.ID == id {
			return entry.Commit, true
		}
	}
	return "", false
}
