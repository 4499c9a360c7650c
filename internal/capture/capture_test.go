package capture

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimhsiao/damagelog/backend/internal/db"
	apperrors "github.com/kimhsiao/damagelog/backend/internal/errors"
	"github.com/kimhsiao/damagelog/backend/internal/models"
	"github.com/kimhsiao/damagelog/backend/internal/sync/queue"
	"github.com/kimhsiao/damagelog/backend/internal/sync/synctest"
	"github.com/kimhsiao/damagelog/backend/internal/uuid"
)

type countingTrigger struct{ n int32 }

func (c *countingTrigger) TriggerSync() bool {
	atomic.AddInt32(&c.n, 1)
	return true
}

func validFields() models.DamageFields {
	return models.DamageFields{
		Category:     "crushed",
		Size:         "large",
		ShopID:       "shop-7",
		CustomerType: "walk-in",
		Notes:        "box corner crushed on delivery",
		ReporterID:   "user-42",
	}
}

func pngImage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x += 7 {
		img.Set(x, x%h, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestEnqueue_online(t *testing.T) {
	ctx := context.Background()
	store := synctest.OpenStore(t)
	trigger := &countingTrigger{}
	svc := NewService(store, synctest.NewOnline(true), trigger, ImageOptions{})

	voice := &models.Attachment{ContentType: "audio/ogg", Data: []byte("OggS-voice")}
	r, err := svc.EnqueueWithReceipt(ctx, validFields(), []models.Attachment{{ContentType: "image/jpeg", Data: []byte{0xFF, 0xD8, 0xFF, 1}}}, voice)
	require.NoError(t, err)
	assert.True(t, uuid.IsValid(r.ID))
	assert.True(t, r.Online)
	assert.Equal(t, NoticeSyncing, r.Notice)
	assert.Equal(t, int32(1), atomic.LoadInt32(&trigger.n))

	stored, err := store.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Equal(t, validFields(), stored.Fields)
	assert.Len(t, stored.Images, 1)
	require.NotNil(t, stored.Voice)
	assert.Equal(t, "audio/ogg", stored.Voice.ContentType)
}

func TestEnqueue_offline(t *testing.T) {
	ctx := context.Background()
	store := synctest.OpenStore(t)
	trigger := &countingTrigger{}
	svc := NewService(store, synctest.NewOnline(false), trigger, ImageOptions{})

	r, err := svc.EnqueueWithReceipt(ctx, validFields(), nil, nil)
	require.NoError(t, err)
	assert.False(t, r.Online)
	assert.Equal(t, NoticeOffline, r.Notice)
	assert.Zero(t, atomic.LoadInt32(&trigger.n))

	n, err := store.CountActionable(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEnqueue_returnsID(t *testing.T) {
	store := synctest.OpenStore(t)
	svc := NewService(store, nil, nil, ImageOptions{})

	a, err := svc.Enqueue(context.Background(), validFields(), nil, nil)
	require.NoError(t, err)
	b, err := svc.Enqueue(context.Background(), validFields(), nil, nil)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestEnqueue_validation(t *testing.T) {
	store := synctest.OpenStore(t)
	svc := NewService(store, nil, nil, ImageOptions{})

	tests := []struct {
		name   string
		mutate func(*models.DamageFields)
	}{
		{"missing category", func(f *models.DamageFields) { f.Category = "" }},
		{"missing shop", func(f *models.DamageFields) { f.ShopID = "" }},
		{"missing reporter", func(f *models.DamageFields) { f.ReporterID = "" }},
		{"notes too long", func(f *models.DamageFields) { f.Notes = string(bytes.Repeat([]byte("x"), 2001)) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := validFields()
			tt.mutate(&f)
			_, err := svc.Enqueue(context.Background(), f, nil, nil)
			assert.True(t, apperrors.Is(err, apperrors.ErrValidation), "got %v", err)
		})
	}

	n, err := store.CountActionable(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEnqueue_emptyAttachment(t *testing.T) {
	store := synctest.OpenStore(t)
	svc := NewService(store, nil, nil, ImageOptions{})

	_, err := svc.Enqueue(context.Background(), validFields(), []models.Attachment{{ContentType: "image/png"}}, nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))

	_, err = svc.Enqueue(context.Background(), validFields(), nil, &models.Attachment{})
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
}

func TestEnqueue_storageFailure(t *testing.T) {
	dir := t.TempDir()
	database, err := db.Open(dir)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(database))
	store := queue.NewStore(database)
	require.NoError(t, database.Close())

	trigger := &countingTrigger{}
	svc := NewService(store, synctest.NewOnline(true), trigger, ImageOptions{})
	_, err = svc.Enqueue(context.Background(), validFields(), nil, nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrStorageWrite, apperrors.CodeOf(err))
	assert.Zero(t, atomic.LoadInt32(&trigger.n), "no sync is triggered for an unsaved entry")

	reopened, err := db.Open(dir)
	require.NoError(t, err)
	defer reopened.Close()
	n, err := queue.NewStore(reopened).CountActionable(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEnqueue_sniffsContentType(t *testing.T) {
	ctx := context.Background()
	store := synctest.OpenStore(t)
	svc := NewService(store, nil, nil, ImageOptions{})

	id, err := svc.Enqueue(ctx, validFields(), []models.Attachment{{Data: pngImage(t, 4, 4)}}, nil)
	require.NoError(t, err)

	stored, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "image/png", stored.Images[0].ContentType)
}

func TestNormalizeImage(t *testing.T) {
	big := models.Attachment{ContentType: "image/png", Data: pngImage(t, 400, 200)}

	out := normalizeImage(big, ImageOptions{MaxDimension: 100, JPEGQuality: 80})
	assert.Equal(t, "image/jpeg", out.ContentType)
	cfg, format, err := image.DecodeConfig(bytes.NewReader(out.Data))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 100, cfg.Width)
	assert.Equal(t, 50, cfg.Height)

	small := models.Attachment{ContentType: "image/png", Data: pngImage(t, 50, 50)}
	assert.Equal(t, small, normalizeImage(small, ImageOptions{MaxDimension: 100, JPEGQuality: 80}))

	assert.Equal(t, big, normalizeImage(big, ImageOptions{}), "zero max dimension keeps originals")

	garbage := models.Attachment{ContentType: "image/heic", Data: []byte("not an image")}
	assert.Equal(t, garbage, normalizeImage(garbage, ImageOptions{MaxDimension: 100}))
}

// pngHeader returns a PNG that declares the given size but carries no pixel data.
func pngHeader(width, height uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], width)
	binary.BigEndian.PutUint32(ihdr[4:], height)
	ihdr[8], ihdr[9] = 8, 2 // 8-bit truecolor
	chunk := append([]byte("IHDR"), ihdr...)
	binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	buf.Write(chunk)
	binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestNormalizeImage_decodeLimit(t *testing.T) {
	big := models.Attachment{ContentType: "image/png", Data: pngImage(t, 200, 200)}
	out := normalizeImage(big, ImageOptions{MaxDimension: 50, MaxPixels: 100 * 100, JPEGQuality: 80})
	assert.Equal(t, big, out)

	huge := models.Attachment{ContentType: "image/png", Data: pngHeader(100000, 100000)}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(huge.Data))
	require.NoError(t, err)
	require.Equal(t, 100000, cfg.Width)
	assert.Equal(t, huge, normalizeImage(huge, ImageOptions{MaxDimension: 1600, JPEGQuality: 80}))
}
