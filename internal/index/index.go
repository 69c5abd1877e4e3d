// Package index implements a derived, rebuildable SQLite cache over the
// snapshot store and materializer cache (spec.md §A5: "local index
// cache"), grounded on internal/db/db.go's pure-Go modernc.org/sqlite
// connection setup and its goose-migrated schema convention.
//
// The filesystem under ASP_HOME remains the source of truth throughout —
// this index is a derived record of snapshots/ and cache/. pkg/store
// writes rows through on snapshot create and delete, but its own
// ListSnapshots and GetSnapshotSize still walk the filesystem. A missing
// or corrupt index.db is never fatal; Rebuild repopulates it from a
// directory walk. doctor reports whether the index is open and does not
// call Rebuild.
package index

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Index wraps the $ASP_HOME/index.db connection.
type Index struct {
	conn *sql.DB
}

// Open connects to (creating if absent) the index database at path and
// migrates it to the latest schema.
func Open(path string) (*Index, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	conn.SetMaxOpenConns(1) // single-writer SQLite; avoid SQLITE_BUSY under concurrent asp commands
	conn.SetMaxIdleConns(1)

	if _, err := conn.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode = WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	idx := &Index{conn: conn}
	if err := idx.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return idx, nil
}

// Close closes the underlying connection.
func (idx *Index) Close() error {
	return idx.conn.Close()
}

// SnapshotRow is one cached row describing a store snapshot.
type SnapshotRow struct {
	Integrity string
	SpaceID   string
	Commit    string
	SizeBytes int64
	CreatedAt string
}

// RecordSnapshot upserts a snapshot's row, called as the write-through
// second step after pkg/store writes the snapshot to disk.
func (idx *Index) RecordSnapshot(row SnapshotRow) error {
	_, err := idx.conn.Exec(`
		INSERT INTO snapshots (integrity, space_id, commit_sha, size_bytes, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(integrity) DO UPDATE SET
			space_id = excluded.space_id,
			commit_sha = excluded.commit_sha,
			size_bytes = excluded.size_bytes,
			created_at = excluded.created_at
	`, row.Integrity, row.SpaceID, row.Commit, row.SizeBytes, row.CreatedAt)
	return err
}

// DeleteSnapshot removes a snapshot's row, called after pkg/store deletes
// the snapshot from disk.
func (idx *Index) DeleteSnapshot(integrity string) error {
	_, err := idx.conn.Exec(`DELETE FROM snapshots WHERE integrity = ?`, integrity)
	return err
}

// ListSnapshots returns every cached snapshot row.
func (idx *Index) ListSnapshots() ([]SnapshotRow, error) {
	rows, err := idx.conn.Query(`SELECT integrity, space_id, commit_sha, size_bytes, created_at FROM snapshots`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []SnapshotRow
	for rows.Next() {
		var r SnapshotRow
		if err := rows.Scan(&r.Integrity, &r.SpaceID, &r.Commit, &r.SizeBytes, &r.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// CacheArtifactRow is one cached row describing a materialized artifact.
type CacheArtifactRow struct {
	HarnessID string
	EnvHash   string
	Integrity string
	SizeBytes int64
	CreatedAt string
}

// RecordCacheArtifact upserts a cache artifact's row.
func (idx *Index) RecordCacheArtifact(row CacheArtifactRow) error {
	_, err := idx.conn.Exec(`
		INSERT INTO cache_artifacts (harness_id, env_hash, integrity, size_bytes, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(harness_id, env_hash, integrity) DO UPDATE SET
			size_bytes = excluded.size_bytes,
			created_at = excluded.created_at
	`, row.HarnessID, row.EnvHash, row.Integrity, row.SizeBytes, row.CreatedAt)
	return err
}

// DeleteCacheArtifact removes one cache artifact's row.
func (idx *Index) DeleteCacheArtifact(harnessID, envHash, integrity string) error {
	_, err := idx.conn.Exec(
		`DELETE FROM cache_artifacts WHERE harness_id = ? AND env_hash = ? AND integrity = ?`,
		harnessID, envHash, integrity,
	)
	return err
}

// ListCacheArtifacts returns every cached artifact row.
func (idx *Index) ListCacheArtifacts() ([]CacheArtifactRow, error) {
	rows, err := idx.conn.Query(`SELECT harness_id, env_hash, integrity, size_bytes, created_at FROM cache_artifacts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []CacheArtifactRow
	for rows.Next() {
		var r CacheArtifactRow
		if err := rows.Scan(&r.HarnessID, &r.EnvHash, &r.Integrity, &r.SizeBytes, &r.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func nowStamp() string { return time.Now().UTC().Format(time.RFC3339) }
