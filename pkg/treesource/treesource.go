// Package treesource unifies reading a space's files whether they live at
// a committed git revision or directly on disk (the dev/project/path ref
// cases, spec.md §4.2's "dev and project keys: not content-addressed").
// The snapshot store and materializer depend only on the TreeSource
// interface, never on git or the filesystem directly.
package treesource

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"asp/internal/gitexec"
	"asp/pkg/integrity"
)

// Blob is one file under a tree source's root, in the same shape
// integrity.Entry needs to compute a canonical hash.
type Blob struct {
	Path string
	OID  string
	Mode string
}

// TreeSource abstracts "the files of a space at some point in time,"
// whether that's a git commit or a live directory.
type TreeSource interface {
	// ListBlobs returns every blob under the source's root, recursively.
	ListBlobs(ctx context.Context) ([]Blob, error)

	// ReadBlob returns the content of path relative to the source's root.
	ReadBlob(ctx context.Context, path string) ([]byte, error)

	// Root describes the source for diagnostics (a commit SHA or a
	// filesystem path).
	Root() string
}

// gitTreeSource reads a subtree at a fixed commit via internal/gitexec.
type gitTreeSource struct {
	adapter *gitexec.Adapter
	commit  string
	subpath string
}

// NewGitTreeSource returns a TreeSource reading commit[:subpath] through
// adapter.
func NewGitTreeSource(adapter *gitexec.Adapter, commit, subpath string) TreeSource {
	return &gitTreeSource{adapter: adapter, commit: commit, subpath: subpath}
}

func (g *gitTreeSource) Root() string {
	if g.subpath == "" {
		return g.commit
	}
	return g.commit + ":" + g.subpath
}

func (g *gitTreeSource) ListBlobs(ctx context.Context) ([]Blob, error) {
	entries, err := g.adapter.LsTree(ctx, g.commit, g.subpath, true)
	if err != nil {
		return nil, err
	}
	blobs := make([]Blob, 0, len(entries))
	for _, e := range entries {
		if e.Type != "blob" {
			continue
		}
		blobs = append(blobs, Blob{Path: e.Path, OID: e.OID, Mode: e.Mode})
	}
	return blobs, nil
}

func (g *gitTreeSource) ReadBlob(ctx context.Context, path string) ([]byte, error) {
	full := path
	if g.subpath != "" {
		full = g.subpath + "/" + path
	}
	content, ok, err := g.adapter.Show(ctx, g.commit, full)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("blob %s not found at %s", full, g.commit)
	}
	return content, nil
}

// fsTreeSource reads a live directory on disk, used for dev/project/path
// refs which are never content-addressed.
type fsTreeSource struct {
	root string
}

// NewFSTreeSource returns a TreeSource reading directly from root.
func NewFSTreeSource(root string) TreeSource {
	return &fsTreeSource{root: root}
}

func (f *fsTreeSource) Root() string { return f.root }

var excludedDirs = map[string]bool{".git": true, ".asp": true, "node_modules": true, "dist": true}

func (f *fsTreeSource) ListBlobs(ctx context.Context) ([]Blob, error) {
	var blobs []Blob
	err := filepath.WalkDir(f.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(f.root, path)
		if relErr != nil {
			return relErr
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if excludedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(rel, ".git/") || strings.HasPrefix(rel, ".asp/") {
			return nil
		}
		content, readErr := os.ReadFile(path)
		if readErr != nil {
			return readErr
		}
		info, statErr := d.Info()
		if statErr != nil {
			return statErr
		}
		mode := "100644"
		if info.Mode()&0o111 != 0 {
			mode = "100755"
		}
		blobs = append(blobs, Blob{
			Path: rel,
			OID:  integrity.GitBlobOID(content),
			Mode: mode,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", f.root, err)
	}
	sort.Slice(blobs, func(i, j int) bool { return blobs[i].Path < blobs[j].Path })
	return blobs, nil
}

func (f *fsTreeSource) ReadBlob(ctx context.Context, path string) ([]byte, error) {
	content, err := os.ReadFile(filepath.Join(f.root, filepath.FromSlash(path)))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return content, nil
}
