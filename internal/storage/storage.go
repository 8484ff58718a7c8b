package storage

import (
	"context"

	"transclip/pkg/types"
)

// Store defines the persistence boundary for clippings and boards.
//
// Insert enforces the at-most-once dedup guarantee: a clipping whose UID
// already exists is rejected with ErrDuplicate, never overwritten or
// merged. All reads sort newest-first unless stated otherwise.
type Store interface {
	// Insert persists a new clipping. Returns ErrDuplicate when a clipping
	// with the same UID already exists.
	Insert(ctx context.Context, clip *types.Clipping) error

	// Exists reports whether a clipping with the given UID is stored.
	Exists(ctx context.Context, uid string) (bool, error)

	// Get retrieves a clipping by UID, including out-of-line blob content.
	Get(ctx context.Context, uid string) (*types.Clipping, error)

	// List returns clippings matching the filter, sorted by timestamp
	// descending. Empty filter terms match everything.
	List(ctx context.Context, filter Filter) ([]*types.Clipping, error)

	// Update mutates the user-editable fields of a clipping in place.
	// UID, kind and timestamp never change after creation.
	Update(ctx context.Context, uid string, upd Update) (*types.Clipping, error)

	// Delete removes a clipping and its external blob, if any.
	Delete(ctx context.Context, uid string) error

	// DeleteMany removes a batch of clippings, returning how many rows
	// were actually deleted.
	DeleteMany(ctx context.Context, uids []string) (int64, error)

	// CreateBoard creates a board, idempotent by name: an existing board
	// with the same name is returned instead of a duplicate.
	CreateBoard(ctx context.Context, name string) (*types.Board, error)

	// RenameBoard changes a board's name.
	RenameBoard(ctx context.Context, id uint, name string) (*types.Board, error)

	// DeleteBoard removes a board and detaches its clippings. Members are
	// never cascade-deleted.
	DeleteBoard(ctx context.Context, id uint) error

	// ListBoards returns all boards.
	ListBoards(ctx context.Context) ([]*types.Board, error)

	Close() error
}

// Filter defines criteria for listing clippings. Search matches as a
// case-insensitive substring against title and string content; Scope
// restricts to a single kind. Empty terms apply no filtering.
type Filter struct {
	Search string
	Scope  string
	Board  *uint
	Limit  int
	Offset int
}

// Update carries the permitted in-place mutations. Nil pointers leave the
// field untouched; ClearBoard detaches the clipping from its board.
type Update struct {
	Title      *string
	Content    *string
	BoardID    *uint
	ClearBoard bool
}

// Config holds storage configuration.
type Config struct {
	DBPath  string // Path to SQLite database
	BlobDir string // Directory for out-of-line image/file payloads
}
