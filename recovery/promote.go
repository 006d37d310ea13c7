package recovery

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"corvusDB/translog"
)

// renameRetries bounds rename attempts before falling back to a byte copy.
// Transient rename failures happen when another process (virus scanner,
// backup agent) briefly holds the file.
const renameRetries = 3

// promoter locates the translog file for a commit's id across candidate
// storage locations and promotes it into the recovering state.
type promoter struct {
	locations []string
	rename    func(oldpath, newpath string) error
}

func newPromoter(locations []string) *promoter {
	return &promoter{locations: locations, rename: os.Rename}
}

// promote finds translog-<id> and moves it to translog-<id>.recovering.
// First location, first match wins. An existing recovering file is reused
// as-is: it means a prior attempt was interrupted and must be resumable.
// Returns "" when no file exists anywhere for the id.
func (p *promoter) promote(id uint64) (string, error) {
	name := translog.FileName(id)
	recoveringName := translog.RecoveringFileName(id)
	log.Trace().Str("file", name).Strs("locations", p.locations).
		Msg("searching for translog file to recover")

	for _, dir := range p.locations {
		recovering := filepath.Join(dir, recoveringName)
		if _, err := os.Stat(recovering); err == nil {
			log.Trace().Str("path", recovering).Msg("reusing existing recovering translog")
			return recovering, nil
		}
		active := filepath.Join(dir, name)
		if _, err := os.Stat(active); err != nil {
			log.Trace().Str("dir", dir).Msg("translog file not found, continuing")
			continue
		}

		for i := 0; i < renameRetries; i++ {
			if err := p.rename(active, recovering); err == nil {
				log.Trace().Str("from", name).Str("to", recoveringName).Msg("renamed translog")
				return recovering, nil
			}
		}
		// The active file is held open by someone else. Copy instead; the
		// original is left in place so a crash here keeps recovery
		// resumable, and the engine will truncate it on reuse.
		if err := copyFile(active, recovering); err != nil {
			return "", fmt.Errorf("%w: failed to copy translog for recovery: %v", ErrRecoveryImpossible, err)
		}
		log.Trace().Str("from", name).Str("to", recoveringName).Msg("copied translog")
		return recovering, nil
	}
	return "", nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
