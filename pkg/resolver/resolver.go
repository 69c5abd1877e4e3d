// Package resolver implements the selector resolver (spec.md §4.4, C4):
// mapping a (spaceId, Selector) pair to a pinned commit, consulting the
// registry's committed dist-tags file and git tag namespace as needed.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"asp/internal/asperr"
	"asp/internal/gitexec"
	"asp/internal/semver"
	"asp/pkg/spaceref"
)

// Resolved is the outcome of resolving one (spaceId, Selector) pair.
type Resolved struct {
	Commit  string
	Tag     string
	Semver  string
	HeadRef bool
}

// Resolver resolves selectors against one registry working directory.
type Resolver struct {
	adapter *gitexec.Adapter
}

// New returns a Resolver operating against the git repository at adapter's
// directory.
func New(adapter *gitexec.Adapter) *Resolver {
	return &Resolver{adapter: adapter}
}

// Resolve maps (spaceID, selector) to a commit per spec.md §4.4's
// per-variant rules. distTagsRef is the commit to read registry/dist-tags.json
// at; "" defaults to HEAD.
func (r *Resolver) Resolve(ctx context.Context, spaceID string, sel spaceref.Selector, distTagsRef string) (Resolved, error) {
	switch sel.Kind {
	case spaceref.SelectorDev:
		return Resolved{Commit: "dev"}, nil
	case spaceref.SelectorHead:
		return r.resolveHead(ctx, spaceID, sel)
	case spaceref.SelectorDistTag:
		return r.resolveDistTag(ctx, spaceID, sel, distTagsRef)
	case spaceref.SelectorSemver:
		return r.resolveSemver(ctx, spaceID, sel)
	case spaceref.SelectorGitPin:
		return Resolved{Commit: sel.GitSHA}, nil
	default:
		return Resolved{}, asperr.SelectorResolutionError(spaceID, sel.Format(), "unknown selector kind")
	}
}

func (r *Resolver) resolveHead(ctx context.Context, spaceID string, sel spaceref.Selector) (Resolved, error) {
	commit, err := r.adapter.RevParse(ctx, "HEAD")
	if err != nil {
		return Resolved{}, asperr.SelectorResolutionError(spaceID, sel.Format(), err.Error())
	}
	return Resolved{Commit: commit, HeadRef: true}, nil
}

type distTagsDoc map[string]map[string]string

func (r *Resolver) readDistTags(ctx context.Context, ref string) (distTagsDoc, error) {
	if ref == "" {
		ref = "HEAD"
	}
	data, ok, err := r.adapter.Show(ctx, ref, "registry/dist-tags.json")
	if err != nil {
		return nil, err
	}
	if !ok {
		return distTagsDoc{}, nil
	}
	var doc distTagsDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid registry/dist-tags.json: %w", err)
	}
	return doc, nil
}

func (r *Resolver) resolveDistTag(ctx context.Context, spaceID string, sel spaceref.Selector, distTagsRef string) (Resolved, error) {
	doc, err := r.readDistTags(ctx, distTagsRef)
	if err != nil {
		return Resolved{}, asperr.SelectorResolutionError(spaceID, sel.Format(), err.Error())
	}
	tags, ok := doc[spaceID]
	if !ok {
		return Resolved{}, asperr.SelectorResolutionError(spaceID, sel.Format(), fmt.Sprintf("no dist-tags entry for space %q", spaceID))
	}
	versionTag, ok := tags[sel.DistTag]
	if !ok {
		return Resolved{}, asperr.SelectorResolutionError(spaceID, sel.Format(), fmt.Sprintf("dist-tag %q not found for space %q", sel.DistTag, spaceID))
	}
	if !strings.HasPrefix(versionTag, "v") {
		return Resolved{}, asperr.SelectorResolutionError(spaceID, sel.Format(), fmt.Sprintf("dist-tag value %q must be of the form v<semver>", versionTag))
	}
	tagName := fmt.Sprintf("space/%s/%s", spaceID, versionTag)
	commit, err := r.adapter.DerefTag(ctx, tagName)
	if err != nil {
		return Resolved{}, asperr.SelectorResolutionError(spaceID, sel.Format(), fmt.Sprintf("tag %s present in dist-tags but could not be dereferenced: %v", tagName, err))
	}
	return Resolved{Commit: commit, Tag: tagName, Semver: strings.TrimPrefix(versionTag, "v")}, nil
}

// spaceTag pairs a resolved semver with the git tag it came from.
type spaceTag struct {
	version semver.Version
	tagName string
}

func (r *Resolver) listSpaceTags(ctx context.Context, spaceID string) ([]spaceTag, error) {
	pattern := fmt.Sprintf("space/%s/v*", spaceID)
	tags, err := r.adapter.TagsMatching(ctx, pattern)
	if err != nil {
		return nil, err
	}
	prefix := fmt.Sprintf("space/%s/v", spaceID)
	var result []spaceTag
	for _, tag := range tags {
		if !strings.HasPrefix(tag, prefix) {
			continue
		}
		versionText := strings.TrimPrefix(tag, prefix)
		v, err := semver.Parse(versionText)
		if err != nil {
			continue
		}
		result = append(result, spaceTag{version: v, tagName: tag})
	}
	return result, nil
}

func (r *Resolver) resolveSemver(ctx context.Context, spaceID string, sel spaceref.Selector) (Resolved, error) {
	tags, err := r.listSpaceTags(ctx, spaceID)
	if err != nil {
		return Resolved{}, asperr.SelectorResolutionError(spaceID, sel.Format(), err.Error())
	}

	if !sel.IsRange {
		exact, err := semver.Parse(sel.SemverRange)
		if err != nil {
			return Resolved{}, asperr.SelectorResolutionError(spaceID, sel.Format(), err.Error())
		}
		for _, t := range tags {
			if semver.Compare(t.version, exact) == 0 {
				return r.derefSpaceTag(ctx, spaceID, sel, t)
			}
		}
		return Resolved{}, asperr.SelectorResolutionError(spaceID, sel.Format(), fmt.Sprintf("no tag matches exact version %s", sel.SemverRange))
	}

	rangeChar := sel.SemverRange[0]
	base, err := semver.Parse(sel.SemverRange[1:])
	if err != nil {
		return Resolved{}, asperr.SelectorResolutionError(spaceID, sel.Format(), err.Error())
	}

	var best *spaceTag
	for i := range tags {
		t := tags[i]
		var satisfies bool
		switch rangeChar {
		case '^':
			satisfies = semver.SatisfiesCaret(t.version, base)
		case '~':
			satisfies = semver.SatisfiesTilde(t.version, base)
		}
		if !satisfies {
			continue
		}
		if best == nil || semver.Compare(t.version, best.version) > 0 {
			best = &t
		}
	}
	if best == nil {
		return Resolved{}, asperr.SelectorResolutionError(spaceID, sel.Format(), fmt.Sprintf("no tag satisfies range %s", sel.SemverRange))
	}
	return r.derefSpaceTag(ctx, spaceID, sel, *best)
}

func (r *Resolver) derefSpaceTag(ctx context.Context, spaceID string, sel spaceref.Selector, t spaceTag) (Resolved, error) {
	commit, err := r.adapter.DerefTag(ctx, t.tagName)
	if err != nil {
		return Resolved{}, asperr.SelectorResolutionError(spaceID, sel.Format(), err.Error())
	}
	return Resolved{Commit: commit, Tag: t.tagName, Semver: t.version.Raw}, nil
}
