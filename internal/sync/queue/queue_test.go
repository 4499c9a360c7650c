// Package queue provides unit tests for the durable entry queue.
package queue

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimhsiao/damagelog/backend/internal/db"
	apperrors "github.com/kimhsiao/damagelog/backend/internal/errors"
	"github.com/kimhsiao/damagelog/backend/internal/models"
	"github.com/kimhsiao/damagelog/backend/internal/uuid"
)

func openStore(t *testing.T, dir string) (*Store, *db.DB) {
	t.Helper()
	database, err := db.Open(dir)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(database))
	return NewStore(database), database
}

func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, database := openStore(t, t.TempDir())
	t.Cleanup(func() { database.Close() })
	return s
}

func newEntry(category string, images int, voice bool) *models.QueuedEntry {
	e := &models.QueuedEntry{
		ID: models.UUID(uuid.New()),
		Fields: models.DamageFields{
			Category:   category,
			ShopID:     "shop-1",
			ReporterID: "user-1",
		},
		Status: models.StatusPending,
	}
	for i := 0; i < images; i++ {
		e.Images = append(e.Images, models.Attachment{ContentType: "image/jpeg", Data: []byte{byte(i), 0xFF}})
	}
	if voice {
		e.Voice = &models.Attachment{ContentType: "audio/ogg", Data: []byte("OggS")}
	}
	return e
}

func TestPut_Get(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	e := newEntry("crushed", 2, true)
	require.NoError(t, s.Put(ctx, e))
	assert.NotZero(t, e.Seq)
	assert.NotZero(t, e.CreatedAt)

	got, err := s.Get(ctx, e.ID.String())
	require.NoError(t, err)
	assert.Equal(t, e.Fields, got.Fields)
	require.Len(t, got.Images, 2)
	assert.Equal(t, []byte{1, 0xFF}, got.Images[1].Data)
	require.NotNil(t, got.Voice)
	assert.Equal(t, "audio/ogg", got.Voice.ContentType)
	assert.Equal(t, models.StatusPending, got.Status)
}

func TestGet_notFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.Get(context.Background(), uuid.New())
	assert.True(t, apperrors.Is(err, apperrors.ErrEntryNotFound))
}

func TestPut_rejectsMissingID(t *testing.T) {
	s := createTestStore(t)
	err := s.Put(context.Background(), &models.QueuedEntry{})
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalid))
}

func TestPut_replaceKeepsPosition(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	a := newEntry("a", 2, false)
	b := newEntry("b", 0, false)
	require.NoError(t, s.Put(ctx, a))
	require.NoError(t, s.Put(ctx, b))
	seq := a.Seq

	a.Fields.Notes = "updated"
	a.Images = a.Images[:1]
	require.NoError(t, s.Put(ctx, a))
	assert.Equal(t, seq, a.Seq)

	list, err := s.ListActionable(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, a.ID, list[0].ID, "replaced entry keeps its FIFO slot")
	assert.Equal(t, "updated", list[0].Fields.Notes)
	assert.Len(t, list[0].Images, 1, "attachments are replaced, not appended")
}

func TestListActionable_fifoAndFilter(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	a, b, c := newEntry("a", 1, false), newEntry("b", 0, true), newEntry("c", 0, false)
	for _, e := range []*models.QueuedEntry{a, b, c} {
		require.NoError(t, s.Put(ctx, e))
	}
	require.NoError(t, s.UpdateStatus(ctx, b.ID.String(), models.StatusSyncing, ""))
	require.NoError(t, s.UpdateStatus(ctx, c.ID.String(), models.StatusError, "boom"))

	list, err := s.ListActionable(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, a.ID, list[0].ID)
	assert.Equal(t, c.ID, list[1].ID)
	assert.Len(t, list[0].Images, 1)
	assert.Nil(t, list[1].Voice)

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestListActionable_isSnapshot(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	e := newEntry("a", 0, false)
	require.NoError(t, s.Put(ctx, e))

	list, err := s.ListActionable(ctx)
	require.NoError(t, err)
	require.NoError(t, s.UpdateStatus(ctx, e.ID.String(), models.StatusError, "x"))
	require.NoError(t, s.Remove(ctx, e.ID.String()))

	require.Len(t, list, 1)
	assert.Equal(t, models.StatusPending, list[0].Status)
}

func TestUpdateStatus_errorBookkeeping(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	e := newEntry("a", 0, false)
	require.NoError(t, s.Put(ctx, e))
	id := e.ID.String()

	require.NoError(t, s.UpdateStatus(ctx, id, models.StatusError, "first"))
	require.NoError(t, s.UpdateStatus(ctx, id, models.StatusSyncing, ""))
	require.NoError(t, s.UpdateStatus(ctx, id, models.StatusError, "second"))

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, got.Status)
	assert.Equal(t, 2, got.RetryCount)
	assert.Equal(t, "second", got.LastError)

	require.NoError(t, s.UpdateStatus(ctx, id, models.StatusPending, ""))
	got, err = s.Get(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, got.LastError)
	assert.Equal(t, 2, got.RetryCount, "retry count never resets")
}

func TestUpdateStatus_missingIsNoop(t *testing.T) {
	s := createTestStore(t)
	assert.NoError(t, s.UpdateStatus(context.Background(), uuid.New(), models.StatusError, "gone"))
}

func TestUpdateStatus_rejectsUnknown(t *testing.T) {
	s := createTestStore(t)
	err := s.UpdateStatus(context.Background(), uuid.New(), "done", "")
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalid))
}

func TestRemove_deletesAttachments(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	e := newEntry("a", 3, true)
	require.NoError(t, s.Put(ctx, e))
	require.NoError(t, s.Remove(ctx, e.ID.String()))

	var n int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM entry_attachments`).Scan(&n))
	assert.Zero(t, n)
	_, err := s.Get(ctx, e.ID.String())
	assert.True(t, apperrors.Is(err, apperrors.ErrEntryNotFound))

	// Removing again is harmless
	assert.NoError(t, s.Remove(ctx, e.ID.String()))
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Put(ctx, newEntry("a", 1, false)))
	}
	n, err := s.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	count, err := s.CountActionable(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestStats_CountActionable(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	entries := []*models.QueuedEntry{newEntry("a", 0, false), newEntry("b", 0, false), newEntry("c", 0, false), newEntry("d", 0, false)}
	for _, e := range entries {
		require.NoError(t, s.Put(ctx, e))
	}
	require.NoError(t, s.UpdateStatus(ctx, entries[1].ID.String(), models.StatusSyncing, ""))
	require.NoError(t, s.UpdateStatus(ctx, entries[2].ID.String(), models.StatusError, "x"))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStats{Pending: 2, Syncing: 1, Errored: 1}, stats)

	n, err := s.CountActionable(ctx)
	require.NoError(t, err)
	assert.Equal(t, stats.Actionable(), n)
}

func TestRecoverInterrupted(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	e := newEntry("a", 0, false)
	require.NoError(t, s.Put(ctx, e))
	require.NoError(t, s.UpdateStatus(ctx, e.ID.String(), models.StatusError, "x"))
	require.NoError(t, s.UpdateStatus(ctx, e.ID.String(), models.StatusSyncing, ""))

	n, err := s.RecoverInterrupted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.Get(ctx, e.ID.String())
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, 1, got.RetryCount)
}

// A stored entry survives closing and reopening the database.
func TestDurability_reopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, database := openStore(t, dir)
	e := newEntry("water", 2, true)
	require.NoError(t, s.Put(ctx, e))
	require.NoError(t, database.Close())

	s, database = openStore(t, dir)
	defer database.Close()

	list, err := s.ListActionable(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, e.ID, list[0].ID)
	assert.Len(t, list[0].Images, 2)
	assert.NotNil(t, list[0].Voice)
	assert.FileExists(t, filepath.Join(dir, db.FileName))
}

func TestPut_closedDatabaseFails(t *testing.T) {
	s, database := openStore(t, t.TempDir())
	require.NoError(t, database.Close())

	err := s.Put(context.Background(), newEntry("a", 0, false))
	assert.True(t, apperrors.Is(err, apperrors.ErrStorageWrite))
}
