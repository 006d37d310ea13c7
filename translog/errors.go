package translog

import "errors"

// Translog-specific errors
var (
	ErrInvalidRecord    = errors.New("invalid translog record format")
	ErrChecksumMismatch = errors.New("translog record checksum mismatch")
	ErrUnknownCodec     = errors.New("unknown translog compression codec")
	ErrWriterClosed     = errors.New("translog writer is closed")
	ErrTruncatedRecord  = errors.New("translog record truncated")
)
