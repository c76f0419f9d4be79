// Package plannercache persists the planner's last-seen spec blob SHAs
// across restarts (§4.G), so a reboot doesn't re-run the planner against
// specs it already processed.
package plannercache

import (
	"encoding/json"
	"os"
	"path/filepath"
)

const schemaVersion = 1

const fileName = ".decree-cache.json"

// FileEntry is one spec file's cached planning state.
type FileEntry struct {
	BlobSHA           string `json:"blobSHA"`
	FrontmatterStatus string `json:"frontmatterStatus"`
}

// treeState is the cached view of the spec directory as of the last
// planner completion.
type treeState struct {
	TreeSHA string               `json:"treeSHA"`
	Files   map[string]FileEntry `json:"files"`
}

// snapshot is the on-disk shape. SchemaVersion lets a future format
// change detect and discard an incompatible file rather than
// misinterpreting it.
type snapshot struct {
	SchemaVersion int       `json:"schemaVersion"`
	Snapshot      treeState `json:"snapshot"`
	CommitSHA     string    `json:"commitSHA"`
}

// Path returns the cache file's location under repoRoot.
func Path(repoRoot string) string {
	return filepath.Join(repoRoot, fileName)
}

// Load reads the cache at repoRoot's Path and returns the planned blob
// SHA for every cached spec path, keyed by path — the only part of the
// cache the running engine consumes; treeSHA/commitSHA/frontmatterStatus
// exist to keep the file self-describing for operators reading it
// directly (`decree cache show` prints only this path-to-blobSHA map).
// Any read, parse, or schema-version mismatch is treated as "no cache" —
// it returns an empty map, since
// a stale or corrupt cache only costs a redundant planner run, never
// correctness.
func Load(repoRoot string) map[string]string {
	data, err := os.ReadFile(Path(repoRoot))
	if err != nil {
		return map[string]string{}
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return map[string]string{}
	}
	if snap.SchemaVersion != schemaVersion || snap.Snapshot.Files == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(snap.Snapshot.Files))
	for path, entry := range snap.Snapshot.Files {
		out[path] = entry.BlobSHA
	}
	return out
}

// Save atomically overwrites the cache file: write to a temp file in the
// same directory, then rename over the target, so a crash mid-write
// never leaves a truncated cache. treeSHA and commitSHA are recorded
// as-given; a caller with no commit-level tracking may pass "" for
// either.
func Save(repoRoot, treeSHA, commitSHA string, files map[string]FileEntry) error {
	snap := snapshot{
		SchemaVersion: schemaVersion,
		Snapshot:      treeState{TreeSHA: treeSHA, Files: files},
		CommitSHA:     commitSHA,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}

	target := Path(repoRoot)
	tmp, err := os.CreateTemp(repoRoot, ".decree-cache-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
