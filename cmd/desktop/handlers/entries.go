package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kimhsiao/damagelog/backend/internal/capture"
	apperrors "github.com/kimhsiao/damagelog/backend/internal/errors"
	"github.com/kimhsiao/damagelog/backend/internal/models"
)

// MaxUploadBytes bounds a single capture request.
const MaxUploadBytes = 64 << 20

// Enqueuer stores new damage reports.
type Enqueuer interface {
	EnqueueWithReceipt(ctx context.Context, fields models.DamageFields, images []models.Attachment, voice *models.Attachment) (*capture.Receipt, error)
}

// CaptureHandler handles report submission.
type CaptureHandler struct {
	capture Enqueuer
}

// NewCaptureHandler creates a CaptureHandler.
func NewCaptureHandler(capture Enqueuer) *CaptureHandler {
	return &CaptureHandler{capture: capture}
}

// Create handles POST /api/entries.
//
// The body is multipart: a "fields" part with the report as JSON, any number
// of "images[]" files and an optional "voice" file.
func (h *CaptureHandler) Create(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadBytes)

	form, err := c.MultipartForm()
	if err != nil {
		respondError(c, apperrors.Wrap(apperrors.ErrInvalid, "expected a multipart form", err))
		return
	}

	raw := form.Value["fields"]
	if len(raw) == 0 {
		respondError(c, apperrors.New(apperrors.ErrInvalid, "missing fields part"))
		return
	}
	var fields models.DamageFields
	if err := json.Unmarshal([]byte(raw[0]), &fields); err != nil {
		respondError(c, apperrors.Wrap(apperrors.ErrInvalid, "fields is not valid JSON", err))
		return
	}

	files := append(form.File["images[]"], form.File["images"]...)
	images := make([]models.Attachment, 0, len(files))
	for i, fh := range files {
		a, err := readPart(fh)
		if err != nil {
			respondError(c, apperrors.Wrap(apperrors.ErrInvalid, fmt.Sprintf("read image %d", i), err))
			return
		}
		images = append(images, a)
	}

	var voice *models.Attachment
	if parts := form.File["voice"]; len(parts) > 0 {
		a, err := readPart(parts[0])
		if err != nil {
			respondError(c, apperrors.Wrap(apperrors.ErrInvalid, "read voice note", err))
			return
		}
		voice = &a
	}

	receipt, err := h.capture.EnqueueWithReceipt(c.Request.Context(), fields, images, voice)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, receipt)
}

func readPart(fh *multipart.FileHeader) (models.Attachment, error) {
	f, err := fh.Open()
	if err != nil {
		return models.Attachment{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return models.Attachment{}, err
	}
	return models.Attachment{ContentType: fh.Header.Get("Content-Type"), Data: data}, nil
}
