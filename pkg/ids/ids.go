// Package ids defines asp's branded primitive types: SpaceID, CommitSHA,
// and SpaceKey. Each has exactly one validating constructor; nothing else
// in the module is allowed to build one by string concatenation (spec.md
// §9, "Dynamic typing of manifests" / branded primitives).
package ids

import (
	"fmt"
	"regexp"
)

var spaceIDPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
var commitSHAPattern = regexp.MustCompile(`^[0-9a-f]{7,64}$`)

// SpaceID is a validated kebab-case space identifier, length 1..64.
type SpaceID string

// NewSpaceID validates s and returns it as a SpaceID.
func NewSpaceID(s string) (SpaceID, error) {
	if len(s) < 1 || len(s) > 64 {
		return "", fmt.Errorf("space id %q must be 1..64 characters", s)
	}
	if !spaceIDPattern.MatchString(s) {
		return "", fmt.Errorf("space id %q must match [a-z0-9]+(-[a-z0-9]+)*", s)
	}
	return SpaceID(s), nil
}

// CommitSHA is a validated lowercase-hex commit hash, length 7..64, or one
// of the reserved markers "dev"/"project".
type CommitSHA string

const (
	DevMarker     CommitSHA = "dev"
	ProjectMarker CommitSHA = "project"
)

// ParseCommitSHA validates s as a real commit SHA or a reserved marker.
func ParseCommitSHA(s string) (CommitSHA, error) {
	if s == string(DevMarker) || s == string(ProjectMarker) {
		return CommitSHA(s), nil
	}
	if len(s) < 7 || len(s) > 64 {
		return "", fmt.Errorf("commit sha %q must be 7..64 hex characters (or dev/project)", s)
	}
	if !commitSHAPattern.MatchString(s) {
		return "", fmt.Errorf("commit sha %q must be lowercase hex", s)
	}
	return CommitSHA(s), nil
}

// IsMarker reports whether c is the dev or project marker rather than a
// real commit.
func (c CommitSHA) IsMarker() bool {
	return c == DevMarker || c == ProjectMarker
}

// SpaceKey uniquely identifies a materialization input: <id>@<commit-or-marker>.
type SpaceKey string

// NewSpaceKey builds the canonical "<id>@<commit>" key string.
func NewSpaceKey(id SpaceID, commit CommitSHA) SpaceKey {
	return SpaceKey(string(id) + "@" + string(commit))
}

// Split parses a SpaceKey back into its id and commit components.
func (k SpaceKey) Split() (SpaceID, CommitSHA, error) {
	s := string(k)
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '@' {
			id, err := NewSpaceID(s[:i])
			if err != nil {
				return "", "", err
			}
			commit, err := ParseCommitSHA(s[i+1:])
			if err != nil {
				return "", "", err
			}
			return id, commit, nil
		}
	}
	return "", "", fmt.Errorf("space key %q missing '@'", s)
}
