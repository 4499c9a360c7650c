// Package queue provides the durable on-device queue of entries awaiting sync.
//
// Entries and their attachments live in SQLite. Every mutation is one
// transaction, so a crash never separates an entry from its attachments.
package queue

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/kimhsiao/damagelog/backend/internal/db"
	apperrors "github.com/kimhsiao/damagelog/backend/internal/errors"
	"github.com/kimhsiao/damagelog/backend/internal/logging"
	"github.com/kimhsiao/damagelog/backend/internal/models"
)

const entryColumns = `seq, id, fields, status, retry_count, last_error, created_at, updated_at`

// Store is the SQLite-backed entry queue.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a Store over an opened and migrated database.
func NewStore(database *db.DB) *Store {
	return &Store{
		db:  database.DB,
		now: time.Now,
	}
}

// Put inserts or replaces the entry by id.
// A replaced entry keeps its queue position. The write is durable when Put returns.
func (s *Store) Put(ctx context.Context, entry *models.QueuedEntry) error {
	if entry == nil || entry.ID == "" {
		return apperrors.New(apperrors.ErrInvalid, "entry id is required")
	}
	if entry.Status == "" {
		entry.Status = models.StatusPending
	}
	if !entry.Status.Valid() {
		return apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("unknown status %q", entry.Status))
	}

	now := s.now().UnixMilli()
	if entry.CreatedAt == 0 {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now

	row, atts, err := models.FromEntry(entry)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "encode entry fields", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorageWrite, "begin put", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO queued_entries (id, fields, status, retry_count, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			fields = excluded.fields,
			status = excluded.status,
			retry_count = excluded.retry_count,
			last_error = excluded.last_error,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at
		RETURNING seq`,
		row.ID, string(row.Fields), row.Status, row.RetryCount, row.LastError, row.CreatedAt, row.UpdatedAt,
	).Scan(&entry.Seq)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorageWrite, "write entry", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM entry_attachments WHERE entry_id = ?`, row.ID); err != nil {
		return apperrors.Wrap(apperrors.ErrStorageWrite, "replace attachments", err)
	}
	for _, a := range atts {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO entry_attachments (entry_id, kind, position, content_type, data) VALUES (?, ?, ?, ?, ?)`,
			a.EntryID, string(a.Kind), a.Position, a.ContentType, a.Data)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrStorageWrite, "write attachment", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.ErrStorageWrite, "commit put", err)
	}

	logging.Debug("Entry stored", map[string]interface{}{
		"entry_id":    entry.ID.String(),
		"seq":         entry.Seq,
		"attachments": len(atts),
	})
	return nil
}

// Get returns one entry with its attachments.
func (s *Store) Get(ctx context.Context, id string) (*models.QueuedEntry, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "begin get", err)
	}
	defer tx.Rollback()

	entries, err := s.selectEntries(ctx, tx, `WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, apperrors.New(apperrors.ErrEntryNotFound, fmt.Sprintf("entry %s not found", id))
	}
	return entries[0], nil
}

// List returns every stored entry in FIFO order, regardless of status.
func (s *Store) List(ctx context.Context) ([]*models.QueuedEntry, error) {
	return s.snapshot(ctx, ``)
}

// ListActionable returns pending and errored entries in FIFO order.
// The result is a snapshot read inside one transaction.
func (s *Store) ListActionable(ctx context.Context) ([]*models.QueuedEntry, error) {
	return s.snapshot(ctx, `WHERE status IN ('pending', 'error')`)
}

func (s *Store) snapshot(ctx context.Context, where string) ([]*models.QueuedEntry, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "begin snapshot", err)
	}
	defer tx.Rollback()

	return s.selectEntries(ctx, tx, where)
}

// selectEntries loads entries matching where, then their attachments, inside tx.
func (s *Store) selectEntries(ctx context.Context, tx *sql.Tx, where string, args ...any) ([]*models.QueuedEntry, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+entryColumns+` FROM queued_entries `+where+` ORDER BY seq`, args...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "query entries", err)
	}
	defer rows.Close()

	var entries []*models.QueuedEntry
	byID := make(map[models.UUID]*models.QueuedEntry)
	for rows.Next() {
		var r models.QueueRow
		var fields string
		if err := rows.Scan(&r.Seq, &r.ID, &fields, &r.Status, &r.RetryCount, &r.LastError, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrDatabase, "scan entry", err)
		}
		r.Fields = []byte(fields)
		e, err := r.ToEntry()
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrDatabase, "decode entry fields", err)
		}
		entries = append(entries, e)
		byID[e.ID] = e
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "iterate entries", err)
	}
	rows.Close()

	if len(entries) == 0 {
		return entries, nil
	}

	attWhere := strings.Replace(where, "WHERE ", "WHERE e.", 1)
	attRows, err := tx.QueryContext(ctx, `
		SELECT a.entry_id, a.kind, a.position, a.content_type, a.data
		FROM entry_attachments a
		JOIN queued_entries e ON e.id = a.entry_id `+attWhere+`
		ORDER BY e.seq, a.kind, a.position`, args...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "query attachments", err)
	}
	defer attRows.Close()

	for attRows.Next() {
		var a models.AttachmentRow
		var kind string
		if err := attRows.Scan(&a.EntryID, &kind, &a.Position, &a.ContentType, &a.Data); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrDatabase, "scan attachment", err)
		}
		a.Kind = models.AttachmentKind(kind)
		if e, ok := byID[a.EntryID]; ok {
			e.Attach(a)
		}
	}
	if err := attRows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "iterate attachments", err)
	}

	return entries, nil
}

// UpdateStatus changes an entry's status.
// StatusError increments retry_count and records errMsg; any other status clears
// last_error. A missing entry is not an error.
func (s *Store) UpdateStatus(ctx context.Context, id string, status models.EntryStatus, errMsg string) error {
	if !status.Valid() {
		return apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("unknown status %q", status))
	}

	now := s.now().UnixMilli()
	var err error
	if status == models.StatusError {
		_, err = s.db.ExecContext(ctx, `
			UPDATE queued_entries
			SET status = ?, retry_count = retry_count + 1, last_error = ?, updated_at = ?
			WHERE id = ?`, string(status), errMsg, now, id)
	} else {
		_, err = s.db.ExecContext(ctx, `
			UPDATE queued_entries
			SET status = ?, last_error = NULL, updated_at = ?
			WHERE id = ?`, string(status), now, id)
	}
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorageWrite, "update status", err)
	}
	return nil
}

// Remove deletes the entry and its attachments in one transaction.
func (s *Store) Remove(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorageWrite, "begin remove", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entry_attachments WHERE entry_id = ?`, id); err != nil {
		return apperrors.Wrap(apperrors.ErrStorageWrite, "remove attachments", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM queued_entries WHERE id = ?`, id); err != nil {
		return apperrors.Wrap(apperrors.ErrStorageWrite, "remove entry", err)
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.ErrStorageWrite, "commit remove", err)
	}
	return nil
}

// Clear removes every entry. It returns the number of entries removed.
// Only explicit operator action calls this; sync never does.
func (s *Store) Clear(ctx context.Context) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorageWrite, "begin clear", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entry_attachments`); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorageWrite, "clear attachments", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM queued_entries`)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorageWrite, "clear entries", err)
	}
	n, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorageWrite, "commit clear", err)
	}

	logging.Warn("Queue cleared", map[string]interface{}{"removed": n})
	return int(n), nil
}

// CountActionable returns the number of pending and errored entries.
func (s *Store) CountActionable(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM queued_entries WHERE status IN ('pending', 'error')`).Scan(&n)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrDatabase, "count actionable", err)
	}
	return n, nil
}

// Stats counts entries by status.
func (s *Store) Stats(ctx context.Context) (models.QueueStats, error) {
	var stats models.QueueStats
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM queued_entries GROUP BY status`)
	if err != nil {
		return stats, apperrors.Wrap(apperrors.ErrDatabase, "query stats", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return stats, apperrors.Wrap(apperrors.ErrDatabase, "scan stats", err)
		}
		switch models.EntryStatus(status) {
		case models.StatusPending:
			stats.Pending = n
		case models.StatusSyncing:
			stats.Syncing = n
		case models.StatusError:
			stats.Errored = n
		}
	}
	return stats, rows.Err()
}

// RecoverInterrupted returns entries left in syncing by a crash to pending.
// Must run before the first drain; retry_count is left untouched.
func (s *Store) RecoverInterrupted(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE queued_entries SET status = 'pending', updated_at = ? WHERE status = 'syncing'`,
		s.now().UnixMilli())
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorageWrite, "recover interrupted entries", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		logging.Warn("Recovered interrupted entries", map[string]interface{}{"count": n})
	}
	return int(n), nil
}
