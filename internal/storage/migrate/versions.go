package migrate

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"transclip/internal/classify"
	"transclip/internal/storage"
	"transclip/pkg/types"
)

// Schema history of the clippings table.
//
// v1: initial shape, string-only content, legacy type codes.
// v2: content-addressed uid plus out-of-line blob path; legacy type codes
//     mapped to kind names, uid backfilled from canonical content bytes,
//     pre-existing duplicate rows collapsed.
// v3: uid made unique, content/blob exclusivity enforced per kind.
//
// Boards are tracked as their own plan:
// v1: boards table.
// v2: board reference on clippings (nullify on delete), default board
//     bootstrapped once, guarded by an existence check on its name.

// clippingV1 is the original shape.
type clippingV1 struct {
	ID        uint `gorm:"primarykey"`
	Title     string
	Content   string
	Type      string `gorm:"column:type"`
	Timestamp time.Time
}

func (clippingV1) TableName() string { return "clippings" }

// clippingV2 adds the content-addressed identity and blob area reference.
// The uid index is not yet unique: the backfill has to run first.
type clippingV2 struct {
	ID        uint   `gorm:"primarykey"`
	UID       string `gorm:"column:uid;size:64;index:idx_clippings_uid_pending"`
	Kind      string
	Title     string
	Content   string
	BlobPath  string
	Timestamp time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (clippingV2) TableName() string { return "clippings" }

// clippingV3 is the final board-less shape with the dedup invariant
// enforced by a unique index.
type clippingV3 struct {
	ID        uint   `gorm:"primarykey"`
	UID       string `gorm:"column:uid;size:64;uniqueIndex"`
	Kind      string `gorm:"index"`
	Title     string
	Content   string
	BlobPath  string
	Timestamp time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (clippingV3) TableName() string { return "clippings" }

// legacyKinds maps the v1 type codes onto kind names. Already-migrated
// values map to themselves so the backfill can be re-entered safely.
var legacyKinds = map[string]types.Kind{
	"TXT":  types.KindText,
	"URL":  types.KindURL,
	"IMG":  types.KindImage,
	"FILE": types.KindFile,

	string(types.KindText):  types.KindText,
	string(types.KindURL):   types.KindURL,
	string(types.KindImage): types.KindImage,
	string(types.KindFile):  types.KindFile,
}

// ClippingsPlan returns the migration plan for the clippings table.
func ClippingsPlan() Plan {
	return Plan{
		Name:       "clippings",
		Latest:     3,
		GuardTable: "clippings",
		Bootstrap: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&clippingV3{})
		},
		Stages: []Stage{
			Custom(1, 2, applyV2, verifyV1Shape, backfillUIDs),
			Custom(2, 3, applyV3, nil, enforceExclusivity),
		},
	}
}

// verifyV1Shape guards the backfill against running on a store that never
// had the legacy layout.
func verifyV1Shape(tx *gorm.DB) error {
	if !tx.Migrator().HasColumn(&clippingV1{}, "type") {
		return fmt.Errorf("clippings table has no legacy type column")
	}
	return nil
}

func applyV2(tx *gorm.DB) error {
	m := tx.Migrator()
	if err := m.RenameColumn(&clippingV1{}, "type", "kind"); err != nil {
		return fmt.Errorf("failed to rename type column: %w", err)
	}
	if err := tx.AutoMigrate(&clippingV2{}); err != nil {
		return fmt.Errorf("failed to add v2 columns: %w", err)
	}
	return nil
}

// backfillUIDs assigns every legacy row its content-derived identity and
// collapses rows that hash to the same uid, keeping the oldest. Legacy
// rows only ever carried string content, so canonicalization goes through
// the same classifier the capture path uses.
func backfillUIDs(tx *gorm.DB) error {
	var rows []clippingV2
	if err := tx.Order("timestamp asc, id asc").Find(&rows).Error; err != nil {
		return fmt.Errorf("failed to load legacy clippings: %w", err)
	}

	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		kind, ok := legacyKinds[row.Kind]
		if !ok {
			kind = types.KindText
		}

		content := row.Content
		if kind == types.KindURL {
			// Re-normalize stored URL strings so the hash is computed over
			// the canonical absolute form.
			if c, err := classify.Normalize(classify.TagURL, []byte(content)); err == nil {
				kind = c.Kind
				content = c.Text
			}
		}

		uid := classify.Hash([]byte(content))
		if seen[uid] {
			if err := tx.Delete(&clippingV2{}, row.ID).Error; err != nil {
				return fmt.Errorf("failed to drop duplicate row %d: %w", row.ID, err)
			}
			continue
		}
		seen[uid] = true

		updates := map[string]any{"uid": uid, "kind": string(kind), "content": content}
		if err := tx.Model(&clippingV2{}).Where("id = ?", row.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to backfill row %d: %w", row.ID, err)
		}
	}
	return nil
}

func applyV3(tx *gorm.DB) error {
	// The interim non-unique index has a distinct name so AutoMigrate can
	// create the unique one alongside; the interim index goes away here.
	m := tx.Migrator()
	if m.HasIndex(&clippingV2{}, "idx_clippings_uid_pending") {
		if err := m.DropIndex(&clippingV2{}, "idx_clippings_uid_pending"); err != nil {
			return fmt.Errorf("failed to drop interim uid index: %w", err)
		}
	}
	if err := tx.AutoMigrate(&clippingV3{}); err != nil {
		return fmt.Errorf("failed to apply v3 shape: %w", err)
	}
	return nil
}

// enforceExclusivity clears whichever of content/blob a kind does not
// own, removing the ambiguity the pre-v3 shapes allowed.
func enforceExclusivity(tx *gorm.DB) error {
	textLike := []string{string(types.KindText), string(types.KindURL)}
	if err := tx.Model(&clippingV3{}).
		Where("kind IN ?", textLike).
		Where("blob_path <> ''").
		Update("blob_path", "").Error; err != nil {
		return fmt.Errorf("failed to clear blob path on text clippings: %w", err)
	}
	if err := tx.Model(&clippingV3{}).
		Where("kind NOT IN ?", textLike).
		Where("content <> ''").
		Update("content", "").Error; err != nil {
		return fmt.Errorf("failed to clear string content on blob clippings: %w", err)
	}
	return nil
}

// boardV1 is the original board shape: just a name.
type boardV1 struct {
	ID   uint   `gorm:"primarykey"`
	Name string `gorm:"uniqueIndex;not null"`
}

func (boardV1) TableName() string { return "boards" }

// BoardsPlan returns the migration plan for boards and the board
// reference on clippings.
func BoardsPlan() Plan {
	return Plan{
		Name:       "boards",
		Latest:     2,
		GuardTable: "boards",
		Bootstrap: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&storage.BoardModel{}, &storage.ClippingModel{}); err != nil {
				return err
			}
			return ensureDefaultBoard(tx)
		},
		Stages: []Stage{
			Lightweight(0, 1, func(tx *gorm.DB) error {
				return tx.AutoMigrate(&boardV1{})
			}),
			Custom(1, 2,
				func(tx *gorm.DB) error {
					return tx.AutoMigrate(&storage.BoardModel{}, &storage.ClippingModel{})
				},
				nil,
				ensureDefaultBoard,
			),
		},
	}
}

// ensureDefaultBoard creates the default board exactly once. The name
// check makes re-running the stage a no-op.
func ensureDefaultBoard(tx *gorm.DB) error {
	var count int64
	if err := tx.Model(&storage.BoardModel{}).
		Where("name = ?", storage.DefaultBoardName).
		Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check for default board: %w", err)
	}
	if count > 0 {
		return nil
	}
	board := storage.BoardModel{Name: storage.DefaultBoardName}
	if err := tx.Create(&board).Error; err != nil {
		return fmt.Errorf("failed to create default board: %w", err)
	}
	return nil
}

// Plans returns the full ordered migration set applied at store open.
func Plans() []Plan {
	return []Plan{ClippingsPlan(), BoardsPlan()}
}
