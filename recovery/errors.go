package recovery

import (
	"errors"
	"fmt"
)

// ErrRecoveryImpossible marks conditions where no safe recovery source can
// be established: the store is absent and fresh initialization failed, or
// the translog promotion copy fallback failed. Fatal for the attempt.
var ErrRecoveryImpossible = errors.New("shard recovery impossible")

// RecoveryError aborts shard startup. It carries the shard identity and
// chains the originating cause.
type RecoveryError struct {
	Shard string
	Err   error
}

func (e *RecoveryError) Error() string {
	return fmt.Sprintf("failed to recover shard [%s]: %v", e.Shard, e.Err)
}

func (e *RecoveryError) Unwrap() error { return e.Err }
