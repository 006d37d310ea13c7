package translog

import "fmt"

// Persisted layout convention: active files are named by their numeric
// identifier, a promoted file carries the ".recovering" suffix of the same
// name.

// FileName returns the active file name for a translog id.
func FileName(id uint64) string {
	return fmt.Sprintf("translog-%d", id)
}

// RecoveringFileName returns the promoted file name for a translog id.
func RecoveringFileName(id uint64) string {
	return FileName(id) + ".recovering"
}
