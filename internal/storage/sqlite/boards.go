package sqlite

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"transclip/internal/storage"
	"transclip/pkg/types"
)

// CreateBoard implements storage.Store. Creation is idempotent by name:
// the same existence-check-then-insert pattern the clipping dedup uses,
// keyed on name instead of content hash.
func (s *Store) CreateBoard(ctx context.Context, name string) (*types.Board, error) {
	var existing storage.BoardModel
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&existing).Error
	if err == nil {
		return existing.ToBoard(), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check for board: %w", err)
	}

	board := storage.BoardModel{Name: name}
	if err := s.db.WithContext(ctx).Create(&board).Error; err != nil {
		return nil, fmt.Errorf("failed to create board: %w", err)
	}
	return board.ToBoard(), nil
}

// RenameBoard implements storage.Store.
func (s *Store) RenameBoard(ctx context.Context, id uint, name string) (*types.Board, error) {
	var board storage.BoardModel
	err := s.db.WithContext(ctx).First(&board, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrBoardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get board: %w", err)
	}

	if err := s.db.WithContext(ctx).
		Model(&board).
		Update("name", name).Error; err != nil {
		return nil, fmt.Errorf("failed to rename board: %w", err)
	}
	board.Name = name
	return board.ToBoard(), nil
}

// DeleteBoard implements storage.Store. Members are detached, never
// cascade-deleted.
func (s *Store) DeleteBoard(ctx context.Context, id uint) error {
	if err := s.db.WithContext(ctx).
		Model(&storage.ClippingModel{}).
		Where("board_id = ?", id).
		Update("board_id", nil).Error; err != nil {
		return fmt.Errorf("failed to detach clippings: %w", err)
	}

	res := s.db.WithContext(ctx).Delete(&storage.BoardModel{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete board: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return storage.ErrBoardNotFound
	}
	return nil
}

// ListBoards implements storage.Store.
func (s *Store) ListBoards(ctx context.Context) ([]*types.Board, error) {
	var models []storage.BoardModel
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list boards: %w", err)
	}
	boards := make([]*types.Board, len(models))
	for i := range models {
		boards[i] = models[i].ToBoard()
	}
	return boards, nil
}
