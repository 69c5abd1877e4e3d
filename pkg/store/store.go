// Package store implements the content-addressed snapshot store (spec.md
// §4.6, C6): write-once extraction of a space tree into ASP_HOME's
// snapshots directory, keyed by the space's canonical integrity hash.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"asp/internal/aspconfig"
	"asp/internal/asperr"
	"asp/internal/index"
	"asp/internal/stage"
	"asp/pkg/integrity"
	"asp/pkg/treesource"
)

// Metadata is the content of a snapshot's .asp-snapshot.json sidecar
// (spec.md §4.6).
type Metadata struct {
	SpaceID    string `json:"spaceId"`
	Commit     string `json:"commit"`
	Integrity  string `json:"integrity"`
	CreatedAt  string `json:"createdAt"`
	SourcePath string `json:"sourcePath"`
}

const metadataFileName = ".asp-snapshot.json"

// Store manages the snapshots directory under one ASP_HOME.
type Store struct {
	aspHome string
	index   *index.Index
}

// New returns a Store rooted at aspHome.
func New(aspHome string) *Store {
	return &Store{aspHome: aspHome}
}

// WithIndex attaches a write-through index cache: CreateSnapshot records
// and DeleteSnapshot removes the snapshot's row after the filesystem
// change. ListSnapshots and GetSnapshotSize do not read the index; they
// always walk the filesystem. A nil index, or an index write failure,
// never changes Store's own behavior.
func (s *Store) WithIndex(idx *index.Index) *Store {
	s.index = idx
	return s
}

func (s *Store) dirFor(integrityHex string) string {
	return filepath.Join(aspconfig.SnapshotsDir(s.aspHome), integrityHex)
}

// hexOf strips the "sha256:" prefix so snapshot directories are named by
// the bare hex digest.
func hexOf(i integrity.Integrity) (string, error) {
	s := string(i)
	if s == string(integrity.DevIntegrity) || s == string(integrity.ProjectIntegrity) {
		return "", fmt.Errorf("dev/project integrities are never stored")
	}
	const prefix = "sha256:"
	if !strings.HasPrefix(s, prefix) {
		return "", fmt.Errorf("invalid integrity %q", s)
	}
	return strings.TrimPrefix(s, prefix), nil
}

// SnapshotExists reports whether a snapshot for integrity already exists.
func (s *Store) SnapshotExists(i integrity.Integrity) bool {
	hex, err := hexOf(i)
	if err != nil {
		return false
	}
	info, err := os.Stat(s.dirFor(hex))
	return err == nil && info.IsDir()
}

// CreateSnapshot computes the integrity of src, and if no snapshot for
// that integrity exists yet, extracts it into the store via
// stage.WriteOnce. Returns the resulting integrity either way.
func (s *Store) CreateSnapshot(ctx context.Context, spaceID, commit string, src treesource.TreeSource) (integrity.Integrity, error) {
	blobs, err := src.ListBlobs(ctx)
	if err != nil {
		return "", asperr.SnapshotError(spaceID, commit, err)
	}

	entries := make([]integrity.Entry, len(blobs))
	for i, b := range blobs {
		entries[i] = integrity.Entry{Path: b.Path, OID: b.OID, Mode: b.Mode}
	}
	hash := integrity.Hash(entries)

	hex, err := hexOf(hash)
	if err != nil {
		return "", asperr.SnapshotError(spaceID, commit, err)
	}
	finalDir := s.dirFor(hex)

	err = stage.WriteOnce(aspconfig.TmpDir(s.aspHome), finalDir, func(stageDir string) error {
		for _, b := range blobs {
			content, err := src.ReadBlob(ctx, b.Path)
			if err != nil {
				return err
			}
			dest := filepath.Join(stageDir, filepath.FromSlash(b.Path))
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return err
			}
			mode := os.FileMode(0o644)
			if b.Mode == "100755" {
				mode = 0o755
			}
			if err := os.WriteFile(dest, content, mode); err != nil {
				return err
			}
		}

		meta := Metadata{
			SpaceID:    spaceID,
			Commit:     commit,
			Integrity:  string(hash),
			CreatedAt:  time.Now().UTC().Format(time.RFC3339),
			SourcePath: src.Root(),
		}
		metaBytes, err := json.MarshalIndent(meta, "", "  ")
		if err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(stageDir, metadataFileName), append(metaBytes, '\n'), 0o644)
	})
	if err != nil {
		return "", asperr.SnapshotError(spaceID, commit, err)
	}

	if s.index != nil {
		size, sizeErr := s.GetSnapshotSize(hash)
		if sizeErr == nil {
			_ = s.index.RecordSnapshot(index.SnapshotRow{
				Integrity: string(hash),
				SpaceID:   spaceID,
				Commit:    commit,
				SizeBytes: size,
				CreatedAt: time.Now().UTC().Format(time.RFC3339),
			})
		}
	}
	return hash, nil
}

// VerifySnapshot rehashes the on-disk content of a snapshot and compares it
// to the integrity it's stored under. Any I/O error, missing directory, or
// hash mismatch returns false.
func (s *Store) VerifySnapshot(i integrity.Integrity) bool {
	hex, err := hexOf(i)
	if err != nil {
		return false
	}
	dir := s.dirFor(hex)
	fsSrc := treesource.NewFSTreeSource(dir)

	blobs, err := fsSrc.ListBlobs(context.Background())
	if err != nil {
		return false
	}
	entries := make([]integrity.Entry, 0, len(blobs))
	for _, b := range blobs {
		if b.Path == metadataFileName {
			continue
		}
		entries = append(entries, integrity.Entry{Path: b.Path, OID: b.OID, Mode: b.Mode})
	}
	recomputed := integrity.Hash(entries)
	return recomputed == i
}

// DeleteSnapshot removes a snapshot's directory entirely.
func (s *Store) DeleteSnapshot(i integrity.Integrity) error {
	hex, err := hexOf(i)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(s.dirFor(hex)); err != nil {
		return err
	}
	if s.index != nil {
		_ = s.index.DeleteSnapshot(string(i))
	}
	return nil
}

// snapshotDirName matches a content hash directory name: 64 lowercase
// hex characters, the same shape Parse requires after "sha256:".
var snapshotDirName = regexp.MustCompile(`^[0-9a-f]{64}$`)

// ListSnapshots returns the integrity of every snapshot currently in the
// store. Non-hash directories (stray files, partial writes left over from
// another tool) are ignored rather than surfaced as bogus integrities
// (spec.md §8 boundary: "Non-hash directories in the store are ignored by
// listSnapshots").
func (s *Store) ListSnapshots() ([]integrity.Integrity, error) {
	root := aspconfig.SnapshotsDir(s.aspHome)
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", root, err)
	}
	var result []integrity.Integrity
	for _, e := range entries {
		if !e.IsDir() || !snapshotDirName.MatchString(e.Name()) {
			continue
		}
		result = append(result, integrity.Integrity("sha256:"+e.Name()))
	}
	return result, nil
}

// GetSnapshotSize returns the total byte size of a snapshot's content.
func (s *Store) GetSnapshotSize(i integrity.Integrity) (int64, error) {
	hex, err := hexOf(i)
	if err != nil {
		return 0, err
	}
	var total int64
	dir := s.dirFor(hex)
	err = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to size %s: %w", dir, err)
	}
	return total, nil
}
