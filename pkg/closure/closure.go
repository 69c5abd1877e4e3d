// Package closure implements the dependency closure builder (spec.md
// §4.5, C5): resolving a declared list of root references into a full,
// deduplicated, topologically-ordered load order via DFS postorder.
package closure

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"asp/internal/asperr"
	"asp/internal/gitexec"
	"asp/pkg/ids"
	"asp/pkg/manifest"
	"asp/pkg/resolver"
	"asp/pkg/spaceref"
)

// ResolvedSpace is one entry in the closure, keyed by its space key.
type ResolvedSpace struct {
	ID     string
	Commit string
	Path   string // path within the registry tree, e.g. "spaces/base"
	Deps   []string // space keys, in declaration order

	ResolvedFrom struct {
		Selector string
		Tag      string
		Semver   string
	}
}

// Result is the output of Build.
type Result struct {
	Roots     []string // space keys, in declared order
	LoadOrder []string // space keys, postorder, deduplicated
	Resolved  map[string]ResolvedSpace
}

// Builder builds closures against one registry working directory.
type Builder struct {
	adapter  *gitexec.Adapter
	resolver *resolver.Resolver
}

// New returns a Builder operating against adapter's registry checkout.
func New(adapter *gitexec.Adapter) *Builder {
	return &Builder{adapter: adapter, resolver: resolver.New(adapter)}
}

// Build resolves rootRefs (declared order) into a full closure.
// pinnedSpaces, when non-nil, maps a space id to a commit that should be
// reused verbatim instead of re-resolving its selector (used by install
// to keep unchanged pins stable).
func (b *Builder) Build(ctx context.Context, rootRefs []string, pinnedSpaces map[string]string) (Result, error) {
	state := &buildState{
		builder:  b,
		resolved: make(map[string]ResolvedSpace),
		visiting: make(map[string]bool),
		pinned:   pinnedSpaces,
	}

	result := Result{Resolved: state.resolved}

	for _, refStr := range rootRefs {
		key, err := state.resolveNode(ctx, refStr, nil)
		if err != nil {
			return Result{}, err
		}
		result.Roots = append(result.Roots, key)
	}
	result.LoadOrder = state.loadOrder
	return result, nil
}

type buildState struct {
	builder  *Builder
	resolved map[string]ResolvedSpace
	visiting map[string]bool
	pinned   map[string]string

	loadOrder    []string
	loadOrderSet map[string]bool
}

// resolveNode resolves refStr to a space key, recursing into its deps,
// and returns the key. stack is the chain of keys currently being visited,
// used to report a cycle path.
func (s *buildState) resolveNode(ctx context.Context, refStr string, stack []string) (string, error) {
	ref, err := spaceref.Parse(refStr)
	if err != nil {
		return "", err
	}

	commit, path, tag, semver, err := s.resolveRef(ctx, ref)
	if err != nil {
		return "", err
	}

	key := string(ids.NewSpaceKey(mustSpaceID(ref.ID), mustCommit(commit)))

	if _, ok := s.resolved[key]; ok {
		return key, nil
	}
	if s.visiting[key] {
		return "", asperr.CyclicDependencyError(append(append([]string{}, stack...), key))
	}
	s.visiting[key] = true
	defer delete(s.visiting, key)

	deps, err := s.readDeps(ctx, commit, path)
	if err != nil {
		return "", err
	}

	var depKeys []string
	nextStack := append(append([]string{}, stack...), key)
	for _, depRef := range deps {
		depKey, err := s.resolveNode(ctx, depRef, nextStack)
		if err != nil {
			return "", err
		}
		depKeys = append(depKeys, depKey)
	}

	entry := ResolvedSpace{ID: ref.ID, Commit: commit, Path: path, Deps: depKeys}
	entry.ResolvedFrom.Selector = ref.Selector.Format()
	entry.ResolvedFrom.Tag = tag
	entry.ResolvedFrom.Semver = semver
	s.resolved[key] = entry

	s.appendLoadOrder(key)
	return key, nil
}

func (s *buildState) appendLoadOrder(key string) {
	if s.loadOrderSet == nil {
		s.loadOrderSet = make(map[string]bool)
	}
	if s.loadOrderSet[key] {
		return
	}
	s.loadOrderSet[key] = true
	s.loadOrder = append(s.loadOrder, key)
}

// resolveRef resolves a SpaceRef to (commit, registryPath, tag, semver).
// dev/project keys short-circuit to their marker commit with no git
// access and no provenance; real selectors go through the C4 resolver,
// honoring a pin if present (a pin carries no tag/semver provenance of
// its own, since it bypasses re-resolution entirely).
func (s *buildState) resolveRef(ctx context.Context, ref spaceref.SpaceRef) (commit, path, tag, semver string, err error) {
	if ref.Kind == spaceref.RefProject {
		return "project", "", "", "", nil
	}
	if ref.Selector.Kind == spaceref.SelectorDev {
		if ref.Kind == spaceref.RefPath {
			return "dev", ref.Path, "", "", nil
		}
		return "dev", fmt.Sprintf("spaces/%s", ref.ID), "", "", nil
	}

	if pinned, ok := s.pinned[ref.ID]; ok {
		return pinned, fmt.Sprintf("spaces/%s", ref.ID), "", "", nil
	}

	resolved, err := s.builder.resolver.Resolve(ctx, ref.ID, ref.Selector, "")
	if err != nil {
		return "", "", "", "", err
	}
	return resolved.Commit, fmt.Sprintf("spaces/%s", ref.ID), resolved.Tag, resolved.Semver, nil
}

// readDeps reads space.toml at commit:path and returns its declared
// dependency reference strings. A "dev" commit reads straight from the
// registry's working tree on disk (spec.md §4.5, "dev and project keys
// short-circuit selector resolution but still feed manifest reading from
// the filesystem"); a "project" commit has no registry-relative path to
// read from this builder's scope and is treated as a leaf.
func (s *buildState) readDeps(ctx context.Context, commit, path string) ([]string, error) {
	manifestPath := strings.TrimSuffix(path, "/") + "/space.toml"

	var data []byte
	switch commit {
	case "project":
		return nil, nil
	case "dev":
		full := filepath.Join(s.builder.adapter.Dir, filepath.FromSlash(manifestPath))
		raw, err := os.ReadFile(full)
		if os.IsNotExist(err) {
			return nil, asperr.MissingDependencyError(manifestPath, "dev:"+manifestPath)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", full, err)
		}
		data = raw
	default:
		raw, ok, err := s.builder.adapter.Show(ctx, commit, manifestPath)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, asperr.MissingDependencyError(manifestPath, commit+":"+manifestPath)
		}
		data = raw
	}

	m, err := manifest.ParseSpaceManifest(manifestPath, data)
	if err != nil {
		return nil, err
	}
	return m.Deps.Spaces, nil
}

func mustSpaceID(id string) ids.SpaceID {
	v, err := ids.NewSpaceID(id)
	if err != nil {
		return ids.SpaceID(id)
	}
	return v
}

func mustCommit(commit string) ids.CommitSHA {
	v, err := ids.ParseCommitSHA(commit)
	if err != nil {
		return ids.CommitSHA(commit)
	}
	return v
}
