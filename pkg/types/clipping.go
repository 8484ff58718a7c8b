package types

import "time"

// Kind is the four-way classification of captured pasteboard content.
type Kind string

const (
	KindText  Kind = "text"
	KindURL   Kind = "url"
	KindImage Kind = "image"
	KindFile  Kind = "file"
)

// Valid reports whether k is one of the four supported kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindText, KindURL, KindImage, KindFile:
		return true
	}
	return false
}

// TextLike reports whether the kind carries its payload in the string
// content field rather than the blob field.
func (k Kind) TextLike() bool {
	return k == KindText || k == KindURL
}

// Clipping is a single captured pasteboard payload.
//
// UID is the SHA-256 hex digest of the canonical content bytes and doubles
// as the dedup key: two captures of identical content under the same kind
// collide on UID. Exactly one of Content/Data carries the payload, decided
// by Kind.
type Clipping struct {
	UID       string    `json:"uid"`
	Kind      Kind      `json:"kind"`
	Title     string    `json:"title"`
	Content   string    `json:"content,omitempty"`
	Data      []byte    `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Board     *Board    `json:"board,omitempty"`
}

// Board is an optional named grouping of clippings. Deleting a board
// detaches its clippings, it never deletes them.
type Board struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}
