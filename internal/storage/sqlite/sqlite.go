package sqlite

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"transclip/internal/storage"
	"transclip/internal/storage/migrate"
	"transclip/pkg/types"
)

// Store is the gorm/sqlite implementation of storage.Store. Image and
// file payloads are kept out-of-line in blobDir, one file per clipping,
// named by UID.
type Store struct {
	db      *gorm.DB
	blobDir string
}

// Open opens the database, runs the migration plans and prepares the
// blob area. Migration runs to completion before any other operation is
// permitted; an error here means the store must not be used.
func Open(config storage.Config, plans ...migrate.Plan) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(config.DBPath), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := migrate.Run(db, plans...); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	if err := os.MkdirAll(config.BlobDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}

	return &Store{db: db, blobDir: config.BlobDir}, nil
}

// Insert implements storage.Store. The existence check plus the unique
// index on uid together give the at-most-once dedup guarantee.
func (s *Store) Insert(ctx context.Context, clip *types.Clipping) error {
	if !clip.Kind.Valid() {
		return fmt.Errorf("invalid kind %q", clip.Kind)
	}
	if clip.UID == "" {
		return fmt.Errorf("clipping has no uid")
	}
	if len(clip.Data) > storage.MaxPayloadSize {
		return storage.ErrPayloadTooLarge
	}

	exists, err := s.Exists(ctx, clip.UID)
	if err != nil {
		return err
	}
	if exists {
		return storage.ErrDuplicate
	}

	model := &storage.ClippingModel{
		UID:       clip.UID,
		Kind:      string(clip.Kind),
		Title:     clip.Title,
		Content:   clip.Content,
		Timestamp: clip.Timestamp,
	}
	if clip.Board != nil {
		model.BoardID = &clip.Board.ID
	}

	if len(clip.Data) > 0 {
		if err := s.writeBlob(clip.UID, clip.Data); err != nil {
			return err
		}
		model.BlobPath = clip.UID
	}

	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		// Two captures racing on identical content lose to the unique
		// index rather than silently overwriting each other. The existing
		// row owns the blob in that case, so it must stay.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return storage.ErrDuplicate
		}
		s.removeBlob(model.BlobPath)
		return fmt.Errorf("failed to create clipping: %w", err)
	}
	return nil
}

// Exists implements storage.Store. Engine errors during the lookup are
// treated as "no match": the unique index still backstops the dedup
// invariant on insert.
func (s *Store) Exists(ctx context.Context, uid string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&storage.ClippingModel{}).
		Where("uid = ?", uid).
		Count(&count).Error
	if err != nil {
		slog.Debug("existence check failed, treating as no match", "uid", uid, "error", err)
		return false, nil
	}
	return count > 0, nil
}

// Get implements storage.Store.
func (s *Store) Get(ctx context.Context, uid string) (*types.Clipping, error) {
	var model storage.ClippingModel
	err := s.db.WithContext(ctx).
		Preload("Board").
		Where("uid = ?", uid).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get clipping: %w", err)
	}

	clip := model.ToClipping()
	if model.BlobPath != "" {
		data, err := s.readBlob(model.BlobPath)
		if err != nil {
			return nil, err
		}
		clip.Data = data
	}
	return clip, nil
}

// Update implements storage.Store. Only title, string content and the
// board reference are mutable; uid, kind and timestamp stay fixed for
// the lifetime of the record.
func (s *Store) Update(ctx context.Context, uid string, upd storage.Update) (*types.Clipping, error) {
	var model storage.ClippingModel
	err := s.db.WithContext(ctx).Where("uid = ?", uid).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get clipping: %w", err)
	}

	changes := map[string]any{}
	if upd.Title != nil {
		changes["title"] = *upd.Title
	}
	if upd.Content != nil && types.Kind(model.Kind).TextLike() {
		changes["content"] = *upd.Content
	}
	if upd.ClearBoard {
		changes["board_id"] = nil
	} else if upd.BoardID != nil {
		var count int64
		if err := s.db.WithContext(ctx).
			Model(&storage.BoardModel{}).
			Where("id = ?", *upd.BoardID).
			Count(&count).Error; err != nil {
			return nil, fmt.Errorf("failed to check board: %w", err)
		}
		if count == 0 {
			return nil, storage.ErrBoardNotFound
		}
		changes["board_id"] = *upd.BoardID
	}

	if len(changes) > 0 {
		if err := s.db.WithContext(ctx).
			Model(&storage.ClippingModel{}).
			Where("uid = ?", uid).
			Updates(changes).Error; err != nil {
			return nil, fmt.Errorf("failed to update clipping: %w", err)
		}
	}
	return s.Get(ctx, uid)
}

// Delete implements storage.Store. Deletion is hard: no tombstones, no
// undo buffer; the external blob goes with the row.
func (s *Store) Delete(ctx context.Context, uid string) error {
	var model storage.ClippingModel
	err := s.db.WithContext(ctx).Where("uid = ?", uid).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get clipping: %w", err)
	}

	if err := s.db.WithContext(ctx).Delete(&model).Error; err != nil {
		return fmt.Errorf("failed to delete clipping: %w", err)
	}
	s.removeBlob(model.BlobPath)
	return nil
}

// DeleteMany implements storage.Store.
func (s *Store) DeleteMany(ctx context.Context, uids []string) (int64, error) {
	if len(uids) == 0 {
		return 0, nil
	}

	var models []storage.ClippingModel
	if err := s.db.WithContext(ctx).Where("uid IN ?", uids).Find(&models).Error; err != nil {
		return 0, fmt.Errorf("failed to load clippings: %w", err)
	}

	res := s.db.WithContext(ctx).Where("uid IN ?", uids).Delete(&storage.ClippingModel{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete clippings: %w", res.Error)
	}

	for _, m := range models {
		s.removeBlob(m.BlobPath)
	}
	return res.RowsAffected, nil
}

func (s *Store) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}

// writeBlob writes a payload into the blob area. The write is atomic so
// a crash never leaves a torn file behind.
func (s *Store) writeBlob(name string, data []byte) error {
	path := filepath.Join(s.blobDir, name)
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write blob: %w", err)
	}
	return nil
}

func (s *Store) readBlob(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.blobDir, name))
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", name, err)
	}
	return data, nil
}

func (s *Store) removeBlob(name string) {
	if name == "" {
		return
	}
	if err := os.Remove(filepath.Join(s.blobDir, name)); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to remove blob", "name", name, "error", err)
	}
}
