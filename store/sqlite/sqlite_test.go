package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/webexporter/models"
	"github.com/use-agent/webexporter/store"
)

func openTest(t *testing.T) store.Backend {
	t.Helper()
	b, err := store.Open(context.Background(), store.Config{Kind: "sqlite", Dir: t.TempDir()}, store.Schema{
		SiteID: "gallery",
		Tables: map[string]string{"posts": "id", "users": "user.name"},
	})
	require.NoError(t, err)
	t.Cleanup(b.Close)
	return b
}

func TestPutAndGetAll(t *testing.T) {
	ctx := context.Background()
	b := openTest(t)

	require.NoError(t, b.Put(ctx, "timeline", "posts", map[string]any{"id": "2", "text": "b"}))
	require.NoError(t, b.Put(ctx, "timeline", "posts", map[string]any{"id": "1", "text": "a"}))
	require.NoError(t, b.Put(ctx, "detail", "posts", map[string]any{"id": "2", "text": "b2"}))

	rows, err := b.GetAll(ctx, "posts")
	require.NoError(t, err)
	assert.Equal(t, []any{
		map[string]any{"id": "1", "text": "a", "extractor_id": "timeline"},
		map[string]any{"id": "2", "text": "b2", "extractor_id": "detail"},
	}, rows)
}

func TestPutDoesNotMutateValue(t *testing.T) {
	v := map[string]any{"id": 7.0}
	require.NoError(t, openTest(t).Put(context.Background(), "x", "posts", v))
	assert.NotContains(t, v, "extractor_id")
}

func TestNestedKey(t *testing.T) {
	ctx := context.Background()
	b := openTest(t)
	require.NoError(t, b.Put(ctx, "x", "users", map[string]any{"user": map[string]any{"name": "ann"}}))
	rows, err := b.GetAll(ctx, "users")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestPutErrors(t *testing.T) {
	ctx := context.Background()
	b := openTest(t)

	err := b.Put(ctx, "x", "missing", map[string]any{"id": 1})
	assert.ErrorIs(t, err, models.ErrNotFound)

	err = b.Put(ctx, "x", "posts", map[string]any{"text": "no key"})
	assert.Equal(t, models.ErrCodeInvalidInput, models.CodeOf(err))

	err = b.Put(ctx, "x", "posts", "scalar")
	assert.Equal(t, models.ErrCodeInvalidInput, models.CodeOf(err))
}

func TestPutManyPartialFailure(t *testing.T) {
	ctx := context.Background()
	b := openTest(t)

	failed, err := b.PutMany(ctx, "x", "posts", []any{
		map[string]any{"id": 1},
		map[string]any{"nope": true},
		map[string]any{"id": 2},
	})
	assert.Equal(t, 1, failed)
	assert.ErrorIs(t, err, models.ErrStorePartialFailure)

	rows, err := b.GetAll(ctx, "posts")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestPutManyAllGood(t *testing.T) {
	failed, err := openTest(t).PutMany(context.Background(), "x", "posts", []any{map[string]any{"id": 1}})
	require.NoError(t, err)
	assert.Zero(t, failed)
}

func TestReopenKeepsRows(t *testing.T) {
	ctx := context.Background()
	cfg := store.Config{Kind: "sqlite", Dir: t.TempDir()}
	schema := store.Schema{SiteID: "s", Tables: map[string]string{"t": "id"}}

	b, err := store.Open(ctx, cfg, schema)
	require.NoError(t, err)
	require.NoError(t, b.Put(ctx, "x", "t", map[string]any{"id": "k"}))
	b.Close()

	b, err = store.Open(ctx, cfg, schema)
	require.NoError(t, err)
	defer b.Close()
	rows, err := b.GetAll(ctx, "t")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
