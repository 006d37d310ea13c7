package segments

import (
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"strconv"
)

// TranslogIDKey is the commit user-data key carrying the active translog
// identifier. The id is generated before each commit so the metadata always
// names the current log; commits written before this key existed default to
// the commit version itself.
const TranslogIDKey = "translog_id"

// commitFileName holds the persisted segment commit metadata.
const commitFileName = "segments.meta"

// Commit is a durable point-in-time snapshot of the segment store plus the
// identifier of its associated translog. Immutable once read; one per
// recovery attempt.
type Commit struct {
	Version  uint64            `json:"version"`
	UserData map[string]string `json:"user_data,omitempty"`
}

// TranslogID returns the translog id associated with this commit, defaulting
// to the commit version for legacy metadata without the key. Returns 0 for a
// zero-version commit with no key: there is no log to recover.
func (c Commit) TranslogID() (uint64, error) {
	if raw, ok := c.UserData[TranslogIDKey]; ok {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("malformed %s in commit metadata: %w", TranslogIDKey, err)
		}
		return id, nil
	}
	return c.Version, nil
}

// commitFile is the on-disk envelope: payload plus a CRC32 over the
// marshaled payload bytes.
type commitFile struct {
	Commit   Commit `json:"commit"`
	Checksum uint32 `json:"checksum"`
}

func commitChecksum(c Commit) (uint32, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return 0, err
	}
	return crc32.ChecksumIEEE(payload), nil
}

// writeCommit atomically persists commit metadata (temp file + rename).
func writeCommit(dir string, c Commit) error {
	sum, err := commitChecksum(c)
	if err != nil {
		return fmt.Errorf("failed to checksum commit: %w", err)
	}
	data, err := json.MarshalIndent(commitFile{Commit: c, Checksum: sum}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal commit: %w", err)
	}
	tmp := filepath.Join(dir, commitFileName+".tmp")
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(dir, commitFileName))
}

// readCommit loads and integrity-checks the persisted commit metadata.
func readCommit(dir string) (Commit, error) {
	data, err := os.ReadFile(filepath.Join(dir, commitFileName))
	if err != nil {
		return Commit{}, err
	}
	var cf commitFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return Commit{}, fmt.Errorf("%w: %v", ErrStoreCorrupted, err)
	}
	sum, err := commitChecksum(cf.Commit)
	if err != nil {
		return Commit{}, err
	}
	if sum != cf.Checksum {
		return Commit{}, fmt.Errorf("%w: commit checksum mismatch (expected %d, got %d)",
			ErrStoreCorrupted, cf.Checksum, sum)
	}
	return cf.Commit, nil
}
