package docstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.sqlite")
	store, err := NewSQLite(path)
	require.NoError(t, err)
	return store, path
}

func TestSQLiteGetAbsent(t *testing.T) {
	store, _ := newTestSQLite(t)

	_, err := store.Get(context.Background(), testPath)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteSetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestSQLite(t)

	doc := Document{"safetyThreshold": 20.0, "alerts": []any{}}
	require.NoError(t, store.Set(ctx, testPath, doc))

	got, err := store.Get(ctx, testPath)
	require.NoError(t, err)
	assert.Equal(t, 20.0, got["safetyThreshold"])
	assert.Equal(t, []any{}, got["alerts"])
}

func TestSQLiteMergeTouchesOnlyGivenFields(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestSQLite(t)

	require.NoError(t, store.Set(ctx, testPath, Document{"safetyThreshold": 20.0, "alerts": []any{"a1"}}))
	require.NoError(t, store.Merge(ctx, testPath, Document{"safetyThreshold": 25.0}))

	got, err := store.Get(ctx, testPath)
	require.NoError(t, err)
	assert.Equal(t, 25.0, got["safetyThreshold"])
	assert.Equal(t, []any{"a1"}, got["alerts"], "unmerged fields are untouched")
}

func TestSQLiteMergeAbsentDocument(t *testing.T) {
	store, _ := newTestSQLite(t)

	err := store.Merge(context.Background(), testPath, Document{"safetyThreshold": 25.0})
	assert.ErrorIs(t, err, ErrNotFound, "merge never creates a document")
}

func TestSQLiteSubscribeReceivesWrites(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestSQLite(t)

	sub := store.Subscribe(testPath)
	defer sub.Close()

	require.NoError(t, store.Set(ctx, testPath, Document{"safetyThreshold": 20.0}))

	select {
	case doc := <-sub.C:
		assert.Equal(t, 20.0, doc["safetyThreshold"])
	case <-time.After(2 * time.Second):
		t.Fatal("no notification delivered")
	}
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	store, path := newTestSQLite(t)
	require.NoError(t, store.Set(ctx, testPath, Document{"safetyThreshold": 20.0}))

	reopened, err := NewSQLite(path)
	require.NoError(t, err)

	got, err := reopened.Get(ctx, testPath)
	require.NoError(t, err)
	assert.Equal(t, 20.0, got["safetyThreshold"])
}
