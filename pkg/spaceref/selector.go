// Package spaceref implements the reference grammar (spec.md §4.2, C2):
// parsing and formatting of "space:..." strings into branded sum types
// rather than ad-hoc string handling. Grounded in the teacher's preference
// for small, explicitly-validated value types (asp/pkg/ids) generalized
// from a single kind to a discriminated union.
package spaceref

import (
	"fmt"
	"regexp"
	"strings"

	"asp/internal/asperr"
)

// SelectorKind discriminates the five Selector variants (spec.md §3,
// "Selector. Sum type of five variants").
type SelectorKind int

const (
	SelectorDev SelectorKind = iota
	SelectorHead
	SelectorDistTag
	SelectorSemver
	SelectorGitPin
)

func (k SelectorKind) String() string {
	switch k {
	case SelectorDev:
		return "dev"
	case SelectorHead:
		return "head"
	case SelectorDistTag:
		return "dist-tag"
	case SelectorSemver:
		return "semver"
	case SelectorGitPin:
		return "git-pin"
	default:
		return "unknown"
	}
}

// Selector is the parsed form of a reference's "@<selectorText>" suffix.
type Selector struct {
	Kind SelectorKind

	// DistTag holds the tag name when Kind == SelectorDistTag.
	DistTag string

	// SemverRange holds the raw range/exact text when Kind == SelectorSemver
	// (e.g. "^1.0.0", "~1.0.0", "1.2.3"); IsRange distinguishes the two.
	SemverRange string
	IsRange     bool

	// GitSHA holds the pinned commit (7..64 hex) when Kind == SelectorGitPin.
	GitSHA string

	// Raw is the original selector text as written, kept for round-trip
	// formatting and traceability (spec.md §3, "carries the original
	// selector string").
	Raw string

	// DefaultedToDev is set when no selector text was present at all and
	// "dev" was assumed (spec.md §4.2).
	DefaultedToDev bool
}

var (
	gitPinPattern      = regexp.MustCompile(`^git:[0-9a-f]{7,64}$`)
	semverRangePattern = regexp.MustCompile(`^[\^~]`)
	semverExactPattern = regexp.MustCompile(`^\d+\.\d+\.\d+(-[0-9A-Za-z.-]+)?(\+[0-9A-Za-z.-]+)?$`)
)

// ParseSelector parses selector text using the longest-match priority from
// spec.md §4.2: literal "dev", literal "HEAD", "git:<sha>", semver range
// (^/~ prefix), exact semver, else dist-tag name.
func ParseSelector(text string) (Selector, error) {
	switch {
	case text == "dev":
		return Selector{Kind: SelectorDev, Raw: text}, nil
	case text == "HEAD":
		return Selector{Kind: SelectorHead, Raw: text}, nil
	case strings.HasPrefix(text, "git:"):
		if !gitPinPattern.MatchString(text) {
			return Selector{}, asperr.RefParseError(text, "git: selector must be git:<7-64 hex>")
		}
		return Selector{Kind: SelectorGitPin, GitSHA: strings.TrimPrefix(text, "git:"), Raw: text}, nil
	case semverRangePattern.MatchString(text):
		rangeText := text[1:]
		if !semverExactPattern.MatchString(rangeText) {
			return Selector{}, asperr.RefParseError(text, "invalid semver range")
		}
		return Selector{Kind: SelectorSemver, SemverRange: text, IsRange: true, Raw: text}, nil
	case semverExactPattern.MatchString(text):
		return Selector{Kind: SelectorSemver, SemverRange: text, IsRange: false, Raw: text}, nil
	default:
		if text == "" {
			return Selector{}, asperr.RefParseError(text, "empty selector text")
		}
		return Selector{Kind: SelectorDistTag, DistTag: text, Raw: text}, nil
	}
}

// Format renders the selector back to its original text form.
func (s Selector) Format() string {
	return s.Raw
}

// RefKind discriminates the three SpaceRef shapes (spec.md §4.2 grammar).
type RefKind int

const (
	RefPlain RefKind = iota
	RefProject
	RefPath
)

// SpaceRef is the parsed form of a full "space:..." reference string.
type SpaceRef struct {
	Kind RefKind

	// ID is populated for RefPlain and RefProject.
	ID string

	// Path is populated for RefPath, and ID is then a synthetic id derived
	// from the path's last segment (spec.md §4.2, "never appears in the
	// lock's id field, but may appear in the space key").
	Path string

	Selector Selector

	// raw is the full original reference string, for round-trip Format().
	raw string
}

var idPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
var kebabNonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

func validateID(id string) error {
	if len(id) < 1 || len(id) > 64 {
		return fmt.Errorf("id %q must be 1..64 characters", id)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("id %q must match [a-z0-9]+(-[a-z0-9]+)*", id)
	}
	return nil
}

// syntheticIDFromPath kebab-normalizes a path's last segment, falling back
// to "path-ref" when normalization yields nothing usable (spec.md §4.2).
func syntheticIDFromPath(path string) string {
	trimmed := strings.TrimRight(path, "/")
	segment := trimmed
	if idx := strings.LastIndexByte(trimmed, '/'); idx >= 0 {
		segment = trimmed[idx+1:]
	}
	segment = strings.ToLower(segment)
	segment = kebabNonAlnum.ReplaceAllString(segment, "-")
	segment = strings.Trim(segment, "-")
	if segment == "" {
		return "path-ref"
	}
	return segment
}

// Parse parses a full "space:..." reference string per spec.md §4.2's
// grammar. A missing selector defaults to "dev" and sets DefaultedToDev.
func Parse(ref string) (SpaceRef, error) {
	const prefix = "space:"
	if !strings.HasPrefix(ref, prefix) {
		return SpaceRef{}, asperr.RefParseError(ref, `reference must start with "space:"`)
	}
	body := strings.TrimPrefix(ref, prefix)

	switch {
	case strings.HasPrefix(body, "project:"):
		return parsePlainLike(ref, strings.TrimPrefix(body, "project:"), RefProject)
	case strings.HasPrefix(body, "path:"):
		return parsePathRef(ref, strings.TrimPrefix(body, "path:"))
	default:
		return parsePlainLike(ref, body, RefPlain)
	}
}

func parsePlainLike(raw, body string, kind RefKind) (SpaceRef, error) {
	id, selText, hasSelector := splitOnAt(body)
	if err := validateID(id); err != nil {
		return SpaceRef{}, asperr.RefParseError(raw, err.Error())
	}

	sel, err := resolveSelectorText(selText, hasSelector)
	if err != nil {
		return SpaceRef{}, asperr.RefParseError(raw, err.Error())
	}

	return SpaceRef{Kind: kind, ID: id, Selector: sel, raw: raw}, nil
}

func parsePathRef(raw, body string) (SpaceRef, error) {
	path, selText, hasSelector := splitOnAt(body)
	if !hasSelector {
		return SpaceRef{}, asperr.RefParseError(raw, "path reference requires an explicit @selector")
	}
	if path == "" {
		return SpaceRef{}, asperr.RefParseError(raw, "path reference requires a non-empty path")
	}

	sel, err := ParseSelector(selText)
	if err != nil {
		return SpaceRef{}, asperr.RefParseError(raw, err.Error())
	}

	return SpaceRef{
		Kind:     RefPath,
		ID:       syntheticIDFromPath(path),
		Path:     path,
		Selector: sel,
		raw:      raw,
	}, nil
}

// splitOnAt splits "id@selector" or "path@selector" on the LAST '@', since
// a filesystem path could itself contain no '@' in practice but we still
// anchor on the final occurrence for symmetry with selector text that never
// contains '@'.
func splitOnAt(body string) (head, selText string, hasSelector bool) {
	idx := strings.LastIndexByte(body, '@')
	if idx < 0 {
		return body, "", false
	}
	return body[:idx], body[idx+1:], true
}

func resolveSelectorText(selText string, hasSelector bool) (Selector, error) {
	if !hasSelector {
		return Selector{Kind: SelectorDev, Raw: "dev", DefaultedToDev: true}, nil
	}
	return ParseSelector(selText)
}

// Format renders the SpaceRef back to its original reference string
// (spec.md §8, P1: "format(parse(s)) == s when s contains an explicit
// selector").
func (r SpaceRef) Format() string {
	if r.raw != "" {
		return r.raw
	}
	var b strings.Builder
	b.WriteString("space:")
	switch r.Kind {
	case RefProject:
		b.WriteString("project:")
		b.WriteString(r.ID)
	case RefPath:
		b.WriteString("path:")
		b.WriteString(r.Path)
	default:
		b.WriteString(r.ID)
	}
	if !r.Selector.DefaultedToDev {
		b.WriteByte('@')
		b.WriteString(r.Selector.Format())
	}
	return b.String()
}
