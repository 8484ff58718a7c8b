package storage

import "errors"

const (
	// MaxPayloadSize caps a single captured payload.
	MaxPayloadSize = 100 * 1024 * 1024 // 100MB

	// DefaultBoardName is the board bootstrapped by the migration that
	// introduces boards.
	DefaultBoardName = "Copied"
)

// Storage errors. Duplicate and not-found are expected, recoverable
// conditions returned to the caller; open/migration failures are fatal
// and handled at process start.
var (
	ErrDuplicate       = errors.New("clipping with identical content already exists")
	ErrNotFound        = errors.New("clipping not found")
	ErrBoardNotFound   = errors.New("board not found")
	ErrPayloadTooLarge = errors.New("payload exceeds maximum allowed size")
)
