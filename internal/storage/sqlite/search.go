package sqlite

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"transclip/internal/storage"
	"transclip/pkg/types"
)

// foldTransformer decomposes to NFD and strips combining marks, so that
// accented and unaccented spellings compare equal.
var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// fold lowercases and strips diacritics: fold("Café") == fold("cafe").
// Both the search term and the candidate fields go through it, stored
// bytes are never altered.
func fold(s string) string {
	out, _, err := transform.String(foldTransformer, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

func matchesSearch(m *storage.ClippingModel, foldedTerm string) bool {
	return strings.Contains(fold(m.Title), foldedTerm) ||
		strings.Contains(fold(m.Content), foldedTerm)
}

// List implements storage.Store. Free-text search matches title and
// string content case- and diacritic-insensitively; the kind scope
// narrows the result set further. Empty terms are "match all", not
// "match nothing".
func (s *Store) List(ctx context.Context, filter storage.Filter) ([]*types.Clipping, error) {
	query := s.db.WithContext(ctx).
		Model(&storage.ClippingModel{}).
		Preload("Board")

	if filter.Scope != "" {
		query = query.Where("kind = ?", filter.Scope)
	}
	if filter.Board != nil {
		query = query.Where("board_id = ?", *filter.Board)
	}

	// Free-text matching happens in Go rather than SQL: LIKE folds
	// ASCII case only, while titles and content may carry diacritics.
	// Pagination moves with it, since it must apply after matching.
	if filter.Search == "" {
		if filter.Limit > 0 {
			query = query.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			query = query.Offset(filter.Offset)
		}
	}

	// Newest captures first.
	query = query.Order("timestamp DESC")

	var models []storage.ClippingModel
	if err := query.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list clippings: %w", err)
	}

	if filter.Search != "" {
		term := fold(filter.Search)
		matched := make([]storage.ClippingModel, 0, len(models))
		for _, model := range models {
			if matchesSearch(&model, term) {
				matched = append(matched, model)
			}
		}
		models = matched

		if filter.Offset > 0 {
			if filter.Offset >= len(models) {
				models = nil
			} else {
				models = models[filter.Offset:]
			}
		}
		if filter.Limit > 0 && len(models) > filter.Limit {
			models = models[:filter.Limit]
		}
	}

	clips := make([]*types.Clipping, len(models))
	for i, model := range models {
		clip := model.ToClipping()
		if model.BlobPath != "" {
			data, err := s.readBlob(model.BlobPath)
			if err != nil {
				return nil, fmt.Errorf("failed to load blob for clipping %s: %w", model.UID, err)
			}
			clip.Data = data
		}
		clips[i] = clip
	}
	return clips, nil
}
