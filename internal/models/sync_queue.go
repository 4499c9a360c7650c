package models

import "encoding/json"

// QueueRow is the queued_entries row shape.
type QueueRow struct {
	Seq        int64           `db:"seq"`
	ID         UUID            `db:"id"`
	Fields     json.RawMessage `db:"fields"`
	Status     string          `db:"status"`
	RetryCount int             `db:"retry_count"`
	LastError  *string         `db:"last_error"`
	CreatedAt  int64           `db:"created_at"`
	UpdatedAt  int64           `db:"updated_at"`
}

// TableName returns the table name for QueueRow.
func (QueueRow) TableName() string {
	return "queued_entries"
}

// AttachmentKind distinguishes image and voice attachments.
type AttachmentKind string

const (
	KindImage AttachmentKind = "image"
	KindVoice AttachmentKind = "voice"
)

// AttachmentRow is the entry_attachments row shape.
type AttachmentRow struct {
	EntryID     UUID           `db:"entry_id"`
	Kind        AttachmentKind `db:"kind"`
	Position    int            `db:"position"`
	ContentType string         `db:"content_type"`
	Data        []byte         `db:"data"`
}

// TableName returns the table name for AttachmentRow.
func (AttachmentRow) TableName() string {
	return "entry_attachments"
}

// ToEntry converts a row to an entry without attachments.
func (r *QueueRow) ToEntry() (*QueuedEntry, error) {
	e := &QueuedEntry{
		ID:         r.ID,
		Seq:        r.Seq,
		Status:     EntryStatus(r.Status),
		RetryCount: r.RetryCount,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	if r.LastError != nil {
		e.LastError = *r.LastError
	}
	if len(r.Fields) > 0 {
		if err := json.Unmarshal(r.Fields, &e.Fields); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// FromEntry converts an entry to its row and attachment rows.
func FromEntry(e *QueuedEntry) (*QueueRow, []AttachmentRow, error) {
	fields, err := json.Marshal(e.Fields)
	if err != nil {
		return nil, nil, err
	}
	row := &QueueRow{
		Seq:        e.Seq,
		ID:         e.ID,
		Fields:     fields,
		Status:     string(e.Status),
		RetryCount: e.RetryCount,
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
	}
	if e.LastError != "" {
		msg := e.LastError
		row.LastError = &msg
	}

	atts := make([]AttachmentRow, 0, len(e.Images)+1)
	for i, img := range e.Images {
		atts = append(atts, AttachmentRow{
			EntryID:     e.ID,
			Kind:        KindImage,
			Position:    i,
			ContentType: img.ContentType,
			Data:        img.Data,
		})
	}
	if e.Voice != nil {
		atts = append(atts, AttachmentRow{
			EntryID:     e.ID,
			Kind:        KindVoice,
			ContentType: e.Voice.ContentType,
			Data:        e.Voice.Data,
		})
	}
	return row, atts, nil
}

// Attach places an attachment row onto its entry.
func (e *QueuedEntry) Attach(a AttachmentRow) {
	att := Attachment{ContentType: a.ContentType, Data: a.Data}
	switch a.Kind {
	case KindVoice:
		e.Voice = &att
	default:
		e.Images = append(e.Images, att)
	}
}
