// Package synctest provides an in-memory remote and queue helpers for tests of
// the sync stack.
package synctest

import (
	"context"
	"fmt"
	gosync "sync"
	"testing"

	"github.com/kimhsiao/damagelog/backend/internal/db"
	"github.com/kimhsiao/damagelog/backend/internal/models"
	"github.com/kimhsiao/damagelog/backend/internal/sync/queue"
	"github.com/kimhsiao/damagelog/backend/internal/uuid"
)

// OpenStore returns a migrated queue store in a temporary directory.
func OpenStore(t testing.TB) *queue.Store {
	t.Helper()
	database, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return queue.NewStore(database)
}

// NewEntry builds a pending entry with the given attachments.
func NewEntry(category string, images int, voice bool) *models.QueuedEntry {
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
		e.Images = append(e.Images, models.Attachment{
			ContentType: "image/jpeg",
			Data:        []byte{0xFF, 0xD8, 0xFF, byte(i)},
		})
	}
	if voice {
		e.Voice = &models.Attachment{ContentType: "audio/ogg", Data: []byte("OggS-voice")}
	}
	return e
}

// Insert is one recorded InsertRecord call.
type Insert struct {
	Table   string
	Payload map[string]any
}

// ID returns the payload id.
func (i Insert) ID() string {
	return fmt.Sprint(i.Payload["id"])
}

// Remote is an in-memory remote backend. Rows are keyed by table and id and a
// repeated id is ignored, like ON CONFLICT DO NOTHING.
type Remote struct {
	mu      gosync.Mutex
	inserts []Insert
	rows    map[string]map[string]map[string]any
	blobs   map[string][]byte
	uploads []string

	// BeforeInsert may fail or block an insert. When CommitThenFail is also set
	// the row is stored before the error is returned.
	BeforeInsert   func(table string, payload map[string]any) error
	CommitThenFail bool
	// BeforeUpload may fail or block an upload.
	BeforeUpload func(bucket, path string, data []byte) error
}

// NewRemote creates an empty Remote.
func NewRemote() *Remote {
	return &Remote{
		rows:  make(map[string]map[string]map[string]any),
		blobs: make(map[string][]byte),
	}
}

// InsertRecord implements the remote contract.
func (r *Remote) InsertRecord(ctx context.Context, table string, payload map[string]any) (*models.InsertedRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var hookErr error
	if r.BeforeInsert != nil {
		hookErr = r.BeforeInsert(table, payload)
		if hookErr != nil && !r.CommitThenFail {
			return nil, hookErr
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.inserts = append(r.inserts, Insert{Table: table, Payload: payload})
	id := fmt.Sprint(payload["id"])
	if r.rows[table] == nil {
		r.rows[table] = make(map[string]map[string]any)
	}
	_, exists := r.rows[table][id]
	if !exists {
		r.rows[table][id] = payload
	}
	if hookErr != nil {
		return nil, hookErr
	}
	return &models.InsertedRow{ID: id, Inserted: !exists}, nil
}

// UploadBlob implements the remote contract.
func (r *Remote) UploadBlob(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if r.BeforeUpload != nil {
		if err := r.BeforeUpload(bucket, path, data); err != nil {
			r.mu.Lock()
			r.uploads = append(r.uploads, bucket+"/"+path)
			r.mu.Unlock()
			return "", err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploads = append(r.uploads, bucket+"/"+path)
	r.blobs[bucket+"/"+path] = append([]byte(nil), data...)
	return bucket + "/" + path, nil
}

// PublicURL implements the remote contract.
func (r *Remote) PublicURL(bucket, path string) string {
	return "https://remote.test/" + bucket + "/" + path
}

// Inserts returns every insert attempt in call order.
func (r *Remote) Inserts() []Insert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Insert(nil), r.inserts...)
}

// InsertsInto returns the insert attempts for one table in call order.
func (r *Remote) InsertsInto(table string) []Insert {
	var out []Insert
	for _, in := range r.Inserts() {
		if in.Table == table {
			out = append(out, in)
		}
	}
	return out
}

// Rows returns the stored rows of table keyed by id.
func (r *Remote) Rows(table string) map[string]map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]map[string]any, len(r.rows[table]))
	for k, v := range r.rows[table] {
		out[k] = v
	}
	return out
}

// Blobs returns the number of stored blobs.
func (r *Remote) Blobs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.blobs)
}

// Uploads returns every upload attempt as bucket/path in call order.
func (r *Remote) Uploads() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.uploads...)
}

// Online is a settable OnlineChecker.
type Online struct {
	mu     gosync.RWMutex
	online bool
}

// NewOnline creates an Online in the given state.
func NewOnline(online bool) *Online {
	return &Online{online: online}
}

// Online reports the current state.
func (o *Online) Online() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.online
}

// Set changes the state.
func (o *Online) Set(online bool) {
	o.mu.Lock()
	o.online = online
	o.mu.Unlock()
}
