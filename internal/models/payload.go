package models

import (
	"encoding/json"
	"time"
)

// InsertedRow is the result of an idempotent remote insert.
// Inserted is false when a row with the same primary key already existed.
type InsertedRow struct {
	ID       string `json:"id"`
	Inserted bool   `json:"inserted"`
}

// RecordPayload builds the remote report row for an entry.
// The entry id is the primary key so a retried insert cannot duplicate the row.
func RecordPayload(e *QueuedEntry, voiceURL string) (map[string]any, error) {
	raw, err := json.Marshal(e.Fields)
	if err != nil {
		return nil, err
	}
	payload := make(map[string]any)
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}

	payload["id"] = e.ID.String()
	payload["created_at"] = e.CreatedAtTime().Format(time.RFC3339Nano)
	if voiceURL != "" {
		payload["voice_url"] = voiceURL
	}
	return payload, nil
}

// ImagePayload builds a remote image row referencing its report.
func ImagePayload(id, reportID, imageURL string, position int) map[string]any {
	return map[string]any{
		"id":        id,
		"report_id": reportID,
		"image_url": imageURL,
		"position":  position,
	}
}
