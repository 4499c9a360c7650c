package remote

import (
	"fmt"
	"regexp"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
)

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// timestampColumns bind as timestamptz. Every other column is forwarded as given.
var timestampColumns = map[string]bool{
	"created_at": true,
}

// BuildInsert generates an idempotent INSERT for payload.
// Columns are sorted for deterministic SQL; a primary key collision inserts nothing
// and returns no row.
func BuildInsert(table string, payload map[string]any) (string, []any, error) {
	if len(payload) == 0 {
		return "", nil, fmt.Errorf("no data provided for insert on table %s", table)
	}
	if _, ok := payload["id"]; !ok {
		return "", nil, fmt.Errorf("payload for table %s has no id", table)
	}
	if !identPattern.MatchString(table) {
		return "", nil, fmt.Errorf("invalid table name %q", table)
	}

	keys := make([]string, 0, len(payload))
	for k := range payload {
		if !identPattern.MatchString(k) {
			return "", nil, fmt.Errorf("invalid column name %q", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make([]any, 0, len(keys))
	for _, k := range keys {
		values = append(values, formatValue(k, payload[k]))
	}

	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Insert(table).
		Columns(keys...).
		Values(values...).
		Suffix("ON CONFLICT (id) DO NOTHING RETURNING id").
		ToSql()
}

// formatValue converts RFC3339 strings in timestamp columns to time.Time.
func formatValue(column string, v any) any {
	if !timestampColumns[column] {
		return v
	}
	if s, ok := v.(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t
		}
	}
	return v
}
