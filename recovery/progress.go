package recovery

import (
	"sync"

	"corvusDB/segments"
)

// Progress tracks counters for one recovery attempt. The coordinator is the
// only writer; observers read consistent snapshots while recovery runs.
type Progress struct {
	mu sync.Mutex

	version             uint64
	translogID          uint64
	totalOperations     int
	recoveredOperations int
	fileDetails         []segments.FileInfo
}

// Snapshot is a read-only copy of the progress counters.
type Snapshot struct {
	Version             uint64
	TranslogID          uint64
	TotalOperations     int
	RecoveredOperations int
	FileDetails         []segments.FileInfo
}

// NewProgress creates empty progress for one attempt.
func NewProgress() *Progress {
	return &Progress{}
}

func (p *Progress) setCommit(version, translogID uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.version = version
	p.translogID = translogID
}

func (p *Progress) setFileDetails(files []segments.FileInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fileDetails = files
}

func (p *Progress) incTotalOperations() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.totalOperations++
}

func (p *Progress) incRecoveredOperations() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recoveredOperations++
}

func (p *Progress) setNoOperations() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.totalOperations = 0
	p.recoveredOperations = 0
}

// Snapshot returns a copy of the current counters.
func (p *Progress) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	files := make([]segments.FileInfo, len(p.fileDetails))
	copy(files, p.fileDetails)
	return Snapshot{
		Version:             p.version,
		TranslogID:          p.translogID,
		TotalOperations:     p.totalOperations,
		RecoveredOperations: p.recoveredOperations,
		FileDetails:         files,
	}
}
