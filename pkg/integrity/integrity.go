// Package integrity implements the canonical content hash of a space tree
// (spec.md §4.3): a SHA-256 stream over the sorted, filtered blob listing
// of a git tree, keyed by git's own blob OIDs so the result is invariant
// under re-extraction.
package integrity

import (
	"crypto/sha256"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Integrity is a validated "sha256:<hex>" string, or one of the two
// reserved non-hash markers.
type Integrity string

const (
	DevIntegrity     Integrity = "sha256:dev"
	ProjectIntegrity Integrity = "sha256:project"
)

var integrityPattern = regexp.MustCompile(`^sha256:[0-9a-f]{64}$`)

// Parse validates s as an Integrity value.
func Parse(s string) (Integrity, error) {
	if s == string(DevIntegrity) || s == string(ProjectIntegrity) {
		return Integrity(s), nil
	}
	if !integrityPattern.MatchString(s) {
		return "", fmt.Errorf("invalid integrity %q: expected sha256:<64-hex> or sha256:dev/sha256:project", s)
	}
	return Integrity(s), nil
}

// Entry is one blob in a space tree, as produced by git ls-tree -r.
type Entry struct {
	Path string
	OID  string // git blob OID, hex
	Mode string // raw git mode, e.g. "100644" or "100755"
}

var excludedPrefixes = []string{".git", ".asp", "node_modules", "dist"}

// excluded reports whether path falls under one of the excluded prefixes
// (spec.md §4.3 step 2).
func excluded(path string) bool {
	for _, prefix := range excludedPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

// normalizeMode maps a raw git file mode to the two canonical forms the
// hash feeds on: 100755 if any execute bit is set, else 100644. Non-blob
// modes (trees, submodules) should never reach here; Hash filters them.
func normalizeMode(mode string) string {
	if len(mode) >= 3 {
		lastThree := mode[len(mode)-3:]
		for _, c := range lastThree {
			if c == '7' || c == '5' || c == '3' || c == '1' {
				return "100755"
			}
		}
	}
	return "100644"
}

// Hash computes the canonical integrity over a sequence of blob entries
// (already filtered to the files under the space's path by the caller).
// It is deterministic: same (path, oid, mode) set in any input order
// produces the same hash, because entries are sorted before hashing.
func Hash(entries []Entry) Integrity {
	filtered := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if excluded(e.Path) {
			continue
		}
		filtered = append(filtered, e)
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Path < filtered[j].Path })

	h := sha256.New()
	h.Write([]byte("v1\x00"))
	for _, e := range filtered {
		mode := normalizeMode(e.Mode)
		h.Write([]byte(e.Path))
		h.Write([]byte{0})
		h.Write([]byte("blob"))
		h.Write([]byte{0})
		h.Write([]byte(e.OID))
		h.Write([]byte{0})
		h.Write([]byte(mode))
		h.Write([]byte{'\n'})
	}
	return Integrity("sha256:" + hex.EncodeToString(h.Sum(nil)))
}

// GitBlobOID recomputes the canonical git blob object id for raw file
// content, "sha1(\"blob \" + len + \"\\0\" + content)", so a filesystem
// extraction can be re-verified against the ls-tree-derived hash without a
// git binary being available at verification time.
func GitBlobOID(content []byte) string {
	header := fmt.Sprintf("blob %d\x00", len(content))
	h := sha1.New()
	h.Write([]byte(header))
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}
