package storage

import (
	"time"

	"transclip/pkg/types"
)

// ClippingModel is the persisted shape of a clipping at the current schema
// version. Image and file payloads live out-of-line in the blob area;
// BlobPath holds the file name (the UID) when present.
type ClippingModel struct {
	ID        uint   `gorm:"primarykey"`
	UID       string `gorm:"column:uid;uniqueIndex;size:64;not null"`
	Kind      string `gorm:"index;not null"`
	Title     string
	Content   string
	BlobPath  string
	Timestamp time.Time `gorm:"index"`
	BoardID   *uint     `gorm:"index"`
	Board     *BoardModel
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ClippingModel) TableName() string { return "clippings" }

// BoardModel is the persisted shape of a board.
type BoardModel struct {
	ID        uint   `gorm:"primarykey"`
	Name      string `gorm:"uniqueIndex;not null"`
	CreatedAt time.Time
}

func (BoardModel) TableName() string { return "boards" }

// ToClipping converts the model to the domain type. Blob content is
// attached separately by the store since it lives outside the database.
func (m *ClippingModel) ToClipping() *types.Clipping {
	c := &types.Clipping{
		UID:       m.UID,
		Kind:      types.Kind(m.Kind),
		Title:     m.Title,
		Content:   m.Content,
		Timestamp: m.Timestamp,
	}
	if m.Board != nil {
		c.Board = m.Board.ToBoard()
	}
	return c
}

func (b *BoardModel) ToBoard() *types.Board {
	return &types.Board{ID: b.ID, Name: b.Name}
}
