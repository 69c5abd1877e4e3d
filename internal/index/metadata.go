package index

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// snapshotMetadata mirrors pkg/store.Metadata's JSON shape without
// importing pkg/store, which would create an import cycle (pkg/store
// imports this package for its write-through index calls).
type snapshotMetadata struct {
	SpaceID   string `json:"spaceId"`
	Commit    string `json:"commit"`
	CreatedAt string `json:"createdAt"`
}

func readSnapshotMetadata(snapshotDir string) (snapshotMetadata, error) {
	data, err := os.ReadFile(filepath.Join(snapshotDir, ".asp-snapshot.json"))
	if err != nil {
		return snapshotMetadata{}, err
	}
	var m snapshotMetadata
	if err := json.Unmarshal(data, &m); err != nil {
		return snapshotMetadata{}, err
	}
	return m, nil
}
