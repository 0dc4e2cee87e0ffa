package registry

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmsavelyev/chatvault/internal/common"
)

func setupRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "sessions.db")
	db, err := InitDatabase(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLiteRepository(db)
}

func strPtr(s string) *string { return &s }

func TestUpsert_CreatesWithDefaults(t *testing.T) {
	repo := setupRepo(t)

	rec, err := repo.Upsert(context.Background(), "79001112233", Patch{})
	require.NoError(t, err)

	assert.Equal(t, "79001112233", rec.ID)
	assert.Equal(t, "new", rec.Status)
	assert.Empty(t, rec.Name)
	assert.Nil(t, rec.LastQrAt)
	assert.False(t, rec.CreatedAt.IsZero())
	assert.False(t, rec.UpdatedAt.IsZero())
}

func TestUpsert_PartialPatch(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	_, err := repo.Upsert(ctx, "79001112233", Patch{Name: strPtr("work"), Status: strPtr("initializing")})
	require.NoError(t, err)

	// a later patch touching only status must keep the name
	rec, err := repo.Upsert(ctx, "79001112233", Patch{Status: strPtr("qr")})
	require.NoError(t, err)
	assert.Equal(t, "work", rec.Name)
	assert.Equal(t, "qr", rec.Status)
}

func TestUpsert_BumpsUpdatedAt(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	first, err := repo.Upsert(ctx, "79001112233", Patch{})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	second, err := repo.Upsert(ctx, "79001112233", Patch{Status: strPtr("qr")})
	require.NoError(t, err)

	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))
}

func TestQRImage_OnlyViaGetQR(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	now := time.Now().UTC()
	rec, err := repo.Upsert(ctx, "79001112233", Patch{
		Status:      strPtr("qr"),
		LastQrAt:    &now,
		LastQrImage: strPtr("data:image/png;base64,AAAA"),
	})
	require.NoError(t, err)
	assert.Empty(t, rec.LastQrImage)

	got, err := repo.Get(ctx, "79001112233")
	require.NoError(t, err)
	assert.Empty(t, got.LastQrImage)
	require.NotNil(t, got.LastQrAt)
	assert.WithinDuration(t, now, *got.LastQrAt, time.Second)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Empty(t, list[0].LastQrImage)

	qr, err := repo.GetQR(ctx, "79001112233")
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,AAAA", qr.LastQrImage)
}

func TestGet_NotFound(t *testing.T) {
	repo := setupRepo(t)

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	_, err = repo.GetQR(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestList_Ordered(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	for _, id := range []string{"79004445566", "79001112233", "79007778899"} {
		_, err := repo.Upsert(ctx, id, Patch{})
		require.NoError(t, err)
	}

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "79001112233", list[0].ID)
	assert.Equal(t, "79004445566", list[1].ID)
	assert.Equal(t, "79007778899", list[2].ID)
}

func TestDelete(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	_, err := repo.Upsert(ctx, "79001112233", Patch{})
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, "79001112233"))
	assert.ErrorIs(t, repo.Delete(ctx, "79001112233"), common.ErrorNotFound)

	_, err = repo.Get(ctx, "79001112233")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestClear(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	for _, id := range []string{"a1", "b2"} {
		_, err := repo.Upsert(ctx, id, Patch{})
		require.NoError(t, err)
	}

	require.NoError(t, repo.Clear(ctx))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUpsert_ErrorStatePersisted(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	_, err := repo.Upsert(ctx, "79001112233", Patch{
		Status:    strPtr("auth_failure"),
		LastError: strPtr("bad credentials"),
	})
	require.NoError(t, err)

	rec, err := repo.Get(ctx, "79001112233")
	require.NoError(t, err)
	assert.Equal(t, "auth_failure", rec.Status)
	assert.Equal(t, "bad credentials", rec.LastError)
}

func TestMigrations_Idempotent(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "sessions.db")

	db, err := InitDatabase(context.Background(), dsn)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// reopening runs migrations again over an up-to-date schema
	db, err = InitDatabase(context.Background(), dsn)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&n))
	assert.Zero(t, n)
}
