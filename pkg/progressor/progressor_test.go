package progressor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealerchat/pkg/models"
	"dealerchat/pkg/store"
)

func openStore(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRunOnlyOnVersionChange(t *testing.T) {
	db := openStore(t)

	ran, err := Run(context.Background(), db, SchemaVersion)
	require.NoError(t, err)
	assert.True(t, ran)

	ran, err = Run(context.Background(), db, SchemaVersion)
	require.NoError(t, err)
	assert.False(t, ran)

	v, err := db.GetKey(systemVersionKey)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, string(v))
	_, err = db.GetKey(systemInProgressKey)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRunResumesInterruptedUpgrade(t *testing.T) {
	db := openStore(t)
	require.NoError(t, db.SaveKey(systemVersionKey, []byte(SchemaVersion)))
	require.NoError(t, db.SaveKey(systemInProgressKey, []byte(`{}`)))

	ran, err := Run(context.Background(), db, SchemaVersion)
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestSyncRepairsPairingIndex(t *testing.T) {
	db := openStore(t)
	chat, created, err := db.FindOrCreateChat("cust", "car1")
	require.NoError(t, err)
	require.True(t, created)
	_, _, err = db.AppendMessage(chat.ID, "cust", "hello", models.KindText)
	require.NoError(t, err)

	keys, err := db.ListKeys("idx:chat:")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	require.NoError(t, db.DeleteKey(keys[0]))

	require.NoError(t, Sync(context.Background(), db, "1", SchemaVersion))

	again, created, err := db.FindOrCreateChat("cust", "car1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, chat.ID, again.ID)
}
