package persistence

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	dbPath := filepath.Join(t.TempDir(), "snapshots.db")
	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewSQLStore_RejectsNilDB(t *testing.T) {
	_, err := NewSQLStore(nil, "sqlite3")
	assert.Error(t, err)
}

func TestNewSQLStore_RejectsUnsupportedDialect(t *testing.T) {
	_, err := NewSQLStore(openTestDB(t), "oracle")
	assert.Error(t, err)
}

func TestSQLStore_LoadLatest_NoSnapshotYet(t *testing.T) {
	store, err := NewSQLStore(openTestDB(t), "sqlite3")
	require.NoError(t, err)

	_, found, err := store.LoadLatest(context.Background(), "team-1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSQLStore_SaveThenLoadLatest_ReturnsMostRecentRevision(t *testing.T) {
	store, err := NewSQLStore(openTestDB(t), "sqlite3")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "team-1", []byte(`{"revision":0}`)))
	require.NoError(t, store.Save(ctx, "team-1", []byte(`{"revision":1}`)))

	snapshot, found, err := store.LoadLatest(ctx, "team-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"revision":1}`, string(snapshot))
}

func TestSQLStore_SnapshotsAreScopedByTeamID(t *testing.T) {
	store, err := NewSQLStore(openTestDB(t), "sqlite3")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "team-1", []byte(`{"team":1}`)))
	require.NoError(t, store.Save(ctx, "team-2", []byte(`{"team":2}`)))

	snapshot, found, err := store.LoadLatest(ctx, "team-2")
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"team":2}`, string(snapshot))
}

func TestSQLStore_Close(t *testing.T) {
	store, err := NewSQLStore(openTestDB(t), "sqlite3")
	require.NoError(t, err)
	assert.NoError(t, store.Close())
}
