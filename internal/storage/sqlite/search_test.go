package sqlite

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transclip/internal/classify"
	"transclip/internal/storage"
	"transclip/pkg/types"
)

func seedSearchData(t *testing.T, store *Store) (oldest, middle, newest *types.Clipping) {
	t.Helper()
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	oldest = textClipping("grocery list: milk and eggs", base)
	oldest.Title = "Groceries"

	middle = &types.Clipping{
		UID:       classify.Hash([]byte("https://example.com/recipes")),
		Kind:      types.KindURL,
		Title:     "example.com",
		Content:   "https://example.com/recipes",
		Timestamp: base.Add(10 * time.Minute),
	}

	newest = textClipping("meeting notes for Monday", base.Add(20*time.Minute))

	for _, clip := range []*types.Clipping{oldest, middle, newest} {
		require.NoError(t, store.Insert(ctx, clip))
	}
	return oldest, middle, newest
}

func TestList_EmptyFilterReturnsAllNewestFirst(t *testing.T) {
	store := setupTestStore(t)
	oldest, middle, newest := seedSearchData(t, store)

	clips, err := store.List(context.Background(), storage.Filter{})
	require.NoError(t, err)
	require.Len(t, clips, 3)
	assert.Equal(t, newest.UID, clips[0].UID)
	assert.Equal(t, middle.UID, clips[1].UID)
	assert.Equal(t, oldest.UID, clips[2].UID)
}

func TestList_SearchMatchesTitleAndContent(t *testing.T) {
	store := setupTestStore(t)
	oldest, middle, _ := seedSearchData(t, store)
	ctx := context.Background()

	// Case-insensitive match against content.
	clips, err := store.List(ctx, storage.Filter{Search: "MILK"})
	require.NoError(t, err)
	require.Len(t, clips, 1)
	assert.Equal(t, oldest.UID, clips[0].UID)

	// Match against title.
	clips, err = store.List(ctx, storage.Filter{Search: "groceries"})
	require.NoError(t, err)
	require.Len(t, clips, 1)
	assert.Equal(t, oldest.UID, clips[0].UID)

	// "example" hits both the url title and content, but only one row.
	clips, err = store.List(ctx, storage.Filter{Search: "example"})
	require.NoError(t, err)
	require.Len(t, clips, 1)
	assert.Equal(t, middle.UID, clips[0].UID)
}

func TestList_ScopeNarrowsKind(t *testing.T) {
	store := setupTestStore(t)
	_, middle, _ := seedSearchData(t, store)
	ctx := context.Background()

	clips, err := store.List(ctx, storage.Filter{Scope: string(types.KindURL)})
	require.NoError(t, err)
	require.Len(t, clips, 1)
	assert.Equal(t, middle.UID, clips[0].UID)

	clips, err = store.List(ctx, storage.Filter{Scope: string(types.KindText)})
	require.NoError(t, err)
	assert.Len(t, clips, 2)
}

func TestList_SearchAndScopeCombineAsAnd(t *testing.T) {
	store := setupTestStore(t)
	seedSearchData(t, store)
	ctx := context.Background()

	// "example" matches the url row, but the text scope excludes it.
	clips, err := store.List(ctx, storage.Filter{Search: "example", Scope: string(types.KindText)})
	require.NoError(t, err)
	assert.Empty(t, clips)
}

func TestList_SearchFoldsDiacritics(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	accented := textClipping("meet me at the café", time.Now())
	require.NoError(t, store.Insert(ctx, accented))

	titled := textClipping("interview prep notes", time.Now())
	titled.Title = "Résumé tips"
	require.NoError(t, store.Insert(ctx, titled))

	// Unaccented term finds accented content.
	clips, err := store.List(ctx, storage.Filter{Search: "cafe"})
	require.NoError(t, err)
	require.Len(t, clips, 1)
	assert.Equal(t, accented.UID, clips[0].UID)

	// And accented title.
	clips, err = store.List(ctx, storage.Filter{Search: "resume"})
	require.NoError(t, err)
	require.Len(t, clips, 1)
	assert.Equal(t, titled.UID, clips[0].UID)

	// The term itself is folded too.
	clips, err = store.List(ctx, storage.Filter{Search: "CAFÉ"})
	require.NoError(t, err)
	require.Len(t, clips, 1)
	assert.Equal(t, accented.UID, clips[0].UID)
}

func TestList_SearchPagination(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	var uids []string
	for i := 0; i < 4; i++ {
		clip := textClipping(fmt.Sprintf("shared term %d", i), base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, store.Insert(ctx, clip))
		uids = append(uids, clip.UID)
	}

	// Limit and offset apply after matching, newest first.
	clips, err := store.List(ctx, storage.Filter{Search: "shared term", Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, clips, 2)
	assert.Equal(t, uids[2], clips[0].UID)
	assert.Equal(t, uids[1], clips[1].UID)

	// Offset past the end is empty, not an error.
	clips, err = store.List(ctx, storage.Filter{Search: "shared term", Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, clips)
}

func TestList_NoMatches(t *testing.T) {
	store := setupTestStore(t)
	seedSearchData(t, store)

	clips, err := store.List(context.Background(), storage.Filter{Search: "zebra"})
	require.NoError(t, err)
	assert.Empty(t, clips)
}

func TestList_Pagination(t *testing.T) {
	store := setupTestStore(t)
	_, middle, newest := seedSearchData(t, store)
	ctx := context.Background()

	clips, err := store.List(ctx, storage.Filter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, clips, 1)
	assert.Equal(t, newest.UID, clips[0].UID)

	clips, err = store.List(ctx, storage.Filter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, clips, 1)
	assert.Equal(t, middle.UID, clips[0].UID)
}
