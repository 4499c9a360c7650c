package models

import "time"

// EntryStatus is the sync state of a queued entry.
type EntryStatus string

const (
	StatusPending EntryStatus = "pending"
	StatusSyncing EntryStatus = "syncing"
	StatusError   EntryStatus = "error"
)

// Valid reports whether s is a known status.
func (s EntryStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSyncing, StatusError:
		return true
	}
	return false
}

// Actionable reports whether an entry in this status is picked up by a drain.
func (s EntryStatus) Actionable() bool {
	return s == StatusPending || s == StatusError
}

// DamageFields is the business payload of a damage report.
// It is forwarded verbatim as columns of the remote report row.
type DamageFields struct {
	Category     string `json:"category" yaml:"category" validate:"required,max=64"`
	Size         string `json:"size,omitempty" yaml:"size" validate:"max=32"`
	ShopID       string `json:"shop_id" yaml:"shop_id" validate:"required,max=64"`
	CustomerType string `json:"customer_type,omitempty" yaml:"customer_type" validate:"max=32"`
	Notes        string `json:"notes,omitempty" yaml:"notes" validate:"max=2000"`
	ReporterID   string `json:"reporter_id" yaml:"reporter_id" validate:"required,max=64"`
	ReporterName string `json:"reporter_name,omitempty" yaml:"reporter_name" validate:"max=128"`
}

// Attachment is a binary payload owned by exactly one entry.
type Attachment struct {
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
}

// Size returns the payload length in bytes.
func (a Attachment) Size() int {
	return len(a.Data)
}

// QueuedEntry is a submission that has not yet been confirmed by the remote store.
type QueuedEntry struct {
	ID         UUID         `json:"id"`
	Seq        int64        `json:"seq"`
	CreatedAt  int64        `json:"created_at"` // unix millis, capture time
	UpdatedAt  int64        `json:"updated_at"`
	Fields     DamageFields `json:"fields"`
	Images     []Attachment `json:"images,omitempty"`
	Voice      *Attachment  `json:"voice,omitempty"`
	Status     EntryStatus  `json:"status"`
	RetryCount int          `json:"retry_count"`
	LastError  string       `json:"last_error,omitempty"`
}

// CreatedAtTime returns the capture time.
func (e *QueuedEntry) CreatedAtTime() time.Time {
	return UnixMillis(e.CreatedAt)
}

// HasVoice reports whether a voice note is attached.
func (e *QueuedEntry) HasVoice() bool {
	return e.Voice != nil && len(e.Voice.Data) > 0
}

// QueueStats counts stored entries by status.
type QueueStats struct {
	Pending int `json:"pending"`
	Syncing int `json:"syncing"`
	Errored int `json:"errored"`
}

// Actionable returns the number of entries the next drain would pick up.
func (s QueueStats) Actionable() int {
	return s.Pending + s.Errored
}

// Total returns the number of stored entries.
func (s QueueStats) Total() int {
	return s.Pending + s.Syncing + s.Errored
}
