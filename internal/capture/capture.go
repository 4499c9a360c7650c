// Package capture is the write path for new damage reports.
//
// Entries are written to the durable queue and never sent to the remote directly.
// Capture succeeds whenever the local write does, online or not.
package capture

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/kimhsiao/damagelog/backend/internal/errors"
	"github.com/kimhsiao/damagelog/backend/internal/logging"
	"github.com/kimhsiao/damagelog/backend/internal/models"
	"github.com/kimhsiao/damagelog/backend/internal/sync/storage"
	"github.com/kimhsiao/damagelog/backend/internal/uuid"
)

// User-facing notices returned with a receipt.
const (
	NoticeSyncing = "Report saved. Syncing now."
	NoticeOffline = "Saved offline. It will sync when you are back online."
)

// EntryWriter durably stores an entry.
type EntryWriter interface {
	Put(ctx context.Context, entry *models.QueuedEntry) error
}

// OnlineChecker reports current reachability.
type OnlineChecker interface {
	Online() bool
}

// SyncTrigger starts a drain without waiting for it.
type SyncTrigger interface {
	TriggerSync() bool
}

// Receipt describes a stored entry.
type Receipt struct {
	ID     string `json:"id"`
	Online bool   `json:"online"`
	Notice string `json:"notice"`
}

// Service enqueues new entries.
type Service struct {
	store    EntryWriter
	online   OnlineChecker
	trigger  SyncTrigger
	validate *validator.Validate
	images   ImageOptions
}

// NewService creates a capture Service. trigger may be nil when no background
// sync runs (for example a one-shot CLI command).
func NewService(store EntryWriter, online OnlineChecker, trigger SyncTrigger, images ImageOptions) *Service {
	return &Service{
		store:    store,
		online:   online,
		trigger:  trigger,
		validate: validator.New(),
		images:   images,
	}
}

// Enqueue stores a new entry and returns its id.
func (s *Service) Enqueue(ctx context.Context, fields models.DamageFields, images []models.Attachment, voice *models.Attachment) (string, error) {
	r, err := s.EnqueueWithReceipt(ctx, fields, images, voice)
	if err != nil {
		return "", err
	}
	return r.ID, nil
}

// EnqueueWithReceipt stores a new entry and reports whether a sync was started.
// A storage failure is returned as ErrStorageWrite: the entry was not saved.
func (s *Service) EnqueueWithReceipt(ctx context.Context, fields models.DamageFields, images []models.Attachment, voice *models.Attachment) (*Receipt, error) {
	if err := s.validate.Struct(fields); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrValidation, validationMessage(err), err)
	}

	entry := &models.QueuedEntry{
		ID:     models.UUID(uuid.New()),
		Fields: fields,
		Status: models.StatusPending,
	}
	for i, img := range images {
		a, err := prepare(img, fmt.Sprintf("image %d", i))
		if err != nil {
			return nil, err
		}
		entry.Images = append(entry.Images, normalizeImage(a, s.images))
	}
	if voice != nil {
		a, err := prepare(*voice, "voice note")
		if err != nil {
			return nil, err
		}
		entry.Voice = &a
	}

	if err := s.store.Put(ctx, entry); err != nil {
		logging.ErrorWithCode("Entry not saved", apperrors.ErrStorageWrite, err, map[string]interface{}{
			"entry_id": string(entry.ID),
		})
		if apperrors.Is(err, apperrors.ErrStorageWrite) {
			return nil, err
		}
		return nil, apperrors.Wrap(apperrors.ErrStorageWrite, "entry was not saved", err)
	}

	receipt := &Receipt{ID: string(entry.ID), Notice: NoticeOffline}
	if s.online != nil && s.online.Online() {
		receipt.Online = true
		receipt.Notice = NoticeSyncing
		if s.trigger != nil {
			s.trigger.TriggerSync()
		}
	}

	logging.Info("Entry queued", map[string]interface{}{
		"entry_id": receipt.ID,
		"images":   len(entry.Images),
		"voice":    entry.HasVoice(),
		"online":   receipt.Online,
	})
	return receipt, nil
}

// prepare rejects empty attachments and fills in a sniffed content type.
func prepare(a models.Attachment, what string) (models.Attachment, error) {
	if len(a.Data) == 0 {
		return a, apperrors.New(apperrors.ErrValidation, what+" is empty")
	}
	if a.ContentType == "" || a.ContentType == "application/octet-stream" {
		a.ContentType = storage.DetectContentType(a.Data)
	}
	return a, nil
}

func validationMessage(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s: %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return "invalid fields: " + strings.Join(parts, ", ")
}
