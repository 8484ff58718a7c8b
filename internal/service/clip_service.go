package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"transclip/internal/classify"
	"transclip/internal/storage"
	"transclip/pkg/types"
)

// ClipError wraps service-level failures with the operation that caused
// them.
type ClipError struct {
	Op      string
	Message string
	Err     error
}

func (e *ClipError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Op, e.Message)
}

func (e *ClipError) Unwrap() error {
	return e.Err
}

// ClipService is the boundary the capture flow, the share flow and the
// list UI all talk to. All mutations funnel through the store's dedup
// invariant; the service itself keeps no state beyond the last seen
// pasteboard change token.
type ClipService struct {
	store storage.Store

	mu        sync.RWMutex
	lastToken string
	handlers  []ClippingHandler
}

// New creates a ClipService over an opened store.
func New(store storage.Store) *ClipService {
	return &ClipService{store: store}
}

// RegisterHandler adds a handler notified after each successful capture.
func (s *ClipService) RegisterHandler(handler ClippingHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, handler)
}

// Capture is the single entry point for new clippings, used by both the
// foreground capture flow and the share flow.
//
// The caller passes the pasteboard's change token explicitly; a token
// equal to the last seen one means the pasteboard has not changed and
// the capture no-ops with ErrNoContent. Duplicate content is rejected
// with storage.ErrDuplicate, which callers simply discard.
func (s *ClipService) Capture(ctx context.Context, payload []byte, declaredKind, suggestedTitle, changeToken string) (*types.Clipping, error) {
	if changeToken != "" && s.seenToken(changeToken) {
		return nil, classify.ErrNoContent
	}

	content, err := classify.Normalize(declaredKind, payload)
	if err != nil {
		return nil, err
	}
	s.rememberToken(changeToken)

	title := suggestedTitle
	if title == "" {
		title = content.URLHost()
	}

	clip := &types.Clipping{
		UID:     classify.HashContent(content),
		Kind:    content.Kind,
		Title:   title,
		Content: content.Text,
		Data:    content.Data,
	}
	if len(content.CanonicalBytes()) > 0 {
		clip.Timestamp = time.Now()
	} else {
		clip.Timestamp = time.Unix(0, 0)
	}

	if err := s.store.Insert(ctx, clip); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			slog.Debug("discarding duplicate capture", "uid", clip.UID)
			return nil, storage.ErrDuplicate
		}
		return nil, &ClipError{Op: "Capture", Message: "failed to store clipping", Err: err}
	}

	slog.Info("captured clipping", "kind", clip.Kind, "uid", clip.UID)
	s.notify(clip)
	return clip, nil
}

// List returns clippings matching the search text and kind scope, newest
// first. Engine errors on the read path degrade to "no match" instead of
// reaching the UI.
func (s *ClipService) List(ctx context.Context, searchText, kindScope string) []*types.Clipping {
	clips, err := s.store.List(ctx, storage.Filter{
		Search: searchText,
		Scope:  kindScope,
	})
	if err != nil {
		slog.Warn("list query failed, returning no matches", "error", err)
		return nil
	}
	return clips
}

// Get retrieves a single clipping with its full payload, for display or
// for placing back onto the caller's pasteboard.
func (s *ClipService) Get(ctx context.Context, uid string) (*types.Clipping, error) {
	clip, err := s.store.Get(ctx, uid)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, &ClipError{Op: "Get", Message: "failed to load clipping", Err: err}
	}
	return clip, nil
}

// Remove deletes a single clipping.
func (s *ClipService) Remove(ctx context.Context, uid string) error {
	if err := s.store.Delete(ctx, uid); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.ErrNotFound
		}
		return &ClipError{Op: "Remove", Message: "failed to delete clipping", Err: err}
	}
	return nil
}

// RemoveMany deletes a batch of clippings, returning how many existed.
func (s *ClipService) RemoveMany(ctx context.Context, uids []string) (int64, error) {
	n, err := s.store.DeleteMany(ctx, uids)
	if err != nil {
		return 0, &ClipError{Op: "RemoveMany", Message: "failed to delete clippings", Err: err}
	}
	return n, nil
}

// Edit mutates title and string content in place. Nil fields are left
// untouched.
func (s *ClipService) Edit(ctx context.Context, uid string, title, content *string) (*types.Clipping, error) {
	clip, err := s.store.Update(ctx, uid, storage.Update{Title: title, Content: content})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, &ClipError{Op: "Edit", Message: "failed to update clipping", Err: err}
	}
	return clip, nil
}

// AssignBoard moves a clipping onto a board; a nil boardID detaches it.
func (s *ClipService) AssignBoard(ctx context.Context, uid string, boardID *uint) (*types.Clipping, error) {
	upd := storage.Update{BoardID: boardID, ClearBoard: boardID == nil}
	clip, err := s.store.Update(ctx, uid, upd)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return nil, storage.ErrNotFound
		case errors.Is(err, storage.ErrBoardNotFound):
			return nil, storage.ErrBoardNotFound
		}
		return nil, &ClipError{Op: "AssignBoard", Message: "failed to update clipping", Err: err}
	}
	return clip, nil
}

// CreateBoard creates a named board, returning the existing one when the
// name is already taken.
func (s *ClipService) CreateBoard(ctx context.Context, name string) (*types.Board, error) {
	board, err := s.store.CreateBoard(ctx, name)
	if err != nil {
		return nil, &ClipError{Op: "CreateBoard", Message: "failed to create board", Err: err}
	}
	return board, nil
}

// RenameBoard changes a board's name.
func (s *ClipService) RenameBoard(ctx context.Context, id uint, name string) (*types.Board, error) {
	board, err := s.store.RenameBoard(ctx, id, name)
	if err != nil {
		if errors.Is(err, storage.ErrBoardNotFound) {
			return nil, storage.ErrBoardNotFound
		}
		return nil, &ClipError{Op: "RenameBoard", Message: "failed to rename board", Err: err}
	}
	return board, nil
}

// RemoveBoard deletes a board. Its clippings are detached, not deleted.
func (s *ClipService) RemoveBoard(ctx context.Context, id uint) error {
	if err := s.store.DeleteBoard(ctx, id); err != nil {
		if errors.Is(err, storage.ErrBoardNotFound) {
			return storage.ErrBoardNotFound
		}
		return &ClipError{Op: "RemoveBoard", Message: "failed to delete board", Err: err}
	}
	return nil
}

// Boards lists all boards.
func (s *ClipService) Boards(ctx context.Context) ([]*types.Board, error) {
	boards, err := s.store.ListBoards(ctx)
	if err != nil {
		return nil, &ClipError{Op: "Boards", Message: "failed to list boards", Err: err}
	}
	return boards, nil
}

func (s *ClipService) seenToken(token string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return token == s.lastToken
}

func (s *ClipService) rememberToken(token string) {
	if token == "" {
		return
	}
	s.mu.Lock()
	s.lastToken = token
	s.mu.Unlock()
}

func (s *ClipService) notify(clip *types.Clipping) {
	s.mu.RLock()
	handlers := s.handlers
	s.mu.RUnlock()

	for _, handler := range handlers {
		handler.HandleClipping(clip)
	}
}
