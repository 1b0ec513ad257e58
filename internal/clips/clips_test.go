package clips

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelbox/reelbox-agent/internal/db"
	"github.com/reelbox/reelbox-agent/internal/docstore"
	"github.com/reelbox/reelbox-agent/internal/filter"
)

func newTestRepo(t *testing.T) (*Repository, docstore.Store) {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	store := docstore.NewSQLiteStore(database.Conn())
	return NewRepository(store), store
}

func TestRepository_CreateGet(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	local := time.Date(2026, 10, 19, 9, 15, 0, 0, time.UTC)

	c := &Clip{
		Title:           "Verjaardag",
		URL:             "https://host/video/upload/v1/abc.webm",
		MediaID:         "abc",
		Duration:        12,
		ThumbnailOffset: 5,
		Filter:          filter.Sepia,
		CreatedAtLocal:  &local,
	}
	require.NoError(t, repo.Create(ctx, c))
	assert.NotEmpty(t, c.ID)
	assert.False(t, c.CreatedAt.IsZero())

	got, err := repo.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Verjaardag", got.Title)
	assert.Equal(t, c.URL, got.URL)
	assert.Equal(t, "abc", got.MediaID)
	assert.Equal(t, 12, got.Duration)
	assert.Equal(t, 5, got.ThumbnailOffset)
	assert.Equal(t, filter.Sepia, got.Filter)
	require.NotNil(t, got.CreatedAtLocal)
	assert.True(t, local.Equal(*got.CreatedAtLocal))
	assert.Equal(t, "https://host/video/upload/so_5,w_480,h_270,c_fill/v1/abc.jpg", got.ThumbnailURL())
}

func TestRepository_ReadsOlderRecords(t *testing.T) {
	repo, store := newTestRepo(t)
	ctx := context.Background()

	doc, err := store.Create(ctx, Collection, map[string]any{
		"title":        "Oud",
		"url":          "https://host/video/upload/v1/old.mp4",
		"cloudinaryId": "old",
		"duration":     7.6,
	})
	require.NoError(t, err)

	got, err := repo.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "old", got.MediaID)
	assert.Equal(t, 8, got.Duration)
	assert.Equal(t, DefaultThumbnailOffset, got.ThumbnailOffset)
	assert.Equal(t, filter.None, got.Filter)
	assert.Nil(t, got.CreatedAtLocal)
}

func TestRepository_ListNewestFirst(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	var ids []string
	for _, title := range []string{"a", "b", "c"} {
		c := &Clip{Title: title, URL: "u"}
		require.NoError(t, repo.Create(ctx, c))
		ids = append(ids, c.ID)
		time.Sleep(2 * time.Millisecond)
	}

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, ids[2], list[0].ID)
	assert.Equal(t, ids[0], list[2].ID)
}

func TestRepository_UpdateNeverTouchesURL(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	c := &Clip{Title: "x", URL: "https://host/video/upload/v1/a.webm", MediaID: "a", Duration: 10}
	require.NoError(t, repo.Create(ctx, c))

	title := "nieuw"
	offset := 7
	f := filter.Cool
	got, err := repo.Update(ctx, c.ID, Patch{Title: &title, ThumbnailOffset: &offset, Filter: &f})
	require.NoError(t, err)

	assert.Equal(t, "nieuw", got.Title)
	assert.Equal(t, 7, got.ThumbnailOffset)
	assert.Equal(t, filter.Cool, got.Filter)
	assert.Equal(t, c.URL, got.URL)
	assert.Equal(t, "a", got.MediaID)
	assert.Equal(t, 10, got.Duration)
}

func TestRepository_UpdateValidation(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	c := &Clip{Title: "x", URL: "u"}
	require.NoError(t, repo.Create(ctx, c))

	blank := "  "
	_, err := repo.Update(ctx, c.ID, Patch{Title: &blank})
	assert.Error(t, err)

	bad := filter.Filter("blur")
	_, err = repo.Update(ctx, c.ID, Patch{Filter: &bad})
	assert.Error(t, err)

	got, err := repo.Update(ctx, c.ID, Patch{})
	require.NoError(t, err)
	assert.Equal(t, "x", got.Title)
}

func TestRepository_NotFound(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, docstore.ErrNotFound)

	title := "t"
	_, err = repo.Update(ctx, "missing", Patch{Title: &title})
	assert.ErrorIs(t, err, docstore.ErrNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, "missing"), docstore.ErrNotFound)
}
