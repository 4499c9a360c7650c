package remote

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimhsiao/damagelog/backend/internal/models"
)

func TestBuildInsert(t *testing.T) {
	sql, args, err := BuildInsert("damage_reports", map[string]any{
		"id":         "0190a5d0-ac96-774b-bcce-b302099a8057",
		"category":   "broken",
		"created_at": "2026-03-01T10:00:00.123Z",
		"voice_url":  nil,
	})
	require.NoError(t, err)

	assert.Equal(t,
		"INSERT INTO damage_reports (category,created_at,id,voice_url) VALUES ($1,$2,$3,$4) ON CONFLICT (id) DO NOTHING RETURNING id",
		sql)
	require.Len(t, args, 4)
	assert.Equal(t, "broken", args[0])
	ts, ok := args[1].(time.Time)
	require.True(t, ok, "created_at should bind as time.Time, got %T", args[1])
	assert.Equal(t, 123*time.Millisecond, time.Duration(ts.Nanosecond()))
	assert.Nil(t, args[3])
}

func TestBuildInsertRejects(t *testing.T) {
	tests := []struct {
		name    string
		table   string
		payload map[string]any
	}{
		{"empty payload", "t", map[string]any{}},
		{"missing id", "t", map[string]any{"a": 1}},
		{"bad table", "t; drop", map[string]any{"id": "x"}},
		{"bad column", "t", map[string]any{"id": "x", "A-B": 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := BuildInsert(tt.table, tt.payload)
			assert.Error(t, err)
		})
	}
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "plain", formatValue("created_at", "plain"))
	assert.Equal(t, 3, formatValue("position", 3))
	_, ok := formatValue("created_at", "2026-03-01T10:00:00Z").(time.Time)
	assert.True(t, ok)
	assert.Equal(t, "2026-03-01T10:00:00Z", formatValue("notes", "2026-03-01T10:00:00Z"))
}

// Free-text fields that happen to look like timestamps must reach text columns unchanged.
func TestBuildInsert_keepsTimestampLikeText(t *testing.T) {
	entry := &models.QueuedEntry{
		ID:        models.UUID("0190a5d0-ac96-774b-bcce-b302099a8057"),
		CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC).UnixMilli(),
		Fields: models.DamageFields{
			Category:   "2026-03-01T10:00:00Z",
			ShopID:     "shop-1",
			ReporterID: "user-1",
			Notes:      "2026-03-01T10:00:00Z",
		},
	}
	payload, err := models.RecordPayload(entry, "")
	require.NoError(t, err)

	sql, args, err := BuildInsert("damage_reports", payload)
	require.NoError(t, err)

	cols := strings.SplitN(strings.TrimPrefix(sql, "INSERT INTO damage_reports ("), ")", 2)[0]
	byColumn := map[string]any{}
	for i, c := range strings.Split(cols, ",") {
		byColumn[c] = args[i]
	}
	assert.Equal(t, "2026-03-01T10:00:00Z", byColumn["notes"])
	assert.Equal(t, "2026-03-01T10:00:00Z", byColumn["category"])
	assert.IsType(t, time.Time{}, byColumn["created_at"])
}
