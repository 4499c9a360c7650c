package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	gosync "sync"

	"github.com/kimhsiao/damagelog/backend/internal/app"
	"github.com/kimhsiao/damagelog/backend/internal/config"
	apperrors "github.com/kimhsiao/damagelog/backend/internal/errors"
	"github.com/kimhsiao/damagelog/backend/internal/logging"
	"github.com/kimhsiao/damagelog/backend/internal/models"
)

// AttachmentJSON is an attachment as sent by the host app.
type AttachmentJSON struct {
	ContentType string `json:"content_type"`
	Data        string `json:"data"` // standard base64
}

// EnqueueRequest is the JSON argument of Enqueue.
type EnqueueRequest struct {
	Fields models.DamageFields `json:"fields"`
	Images []AttachmentJSON    `json:"images"`
	Voice  *AttachmentJSON     `json:"voice,omitempty"`
}

func (a AttachmentJSON) decode(what string) (models.Attachment, error) {
	data, err := base64.StdEncoding.DecodeString(a.Data)
	if err != nil {
		return models.Attachment{}, apperrors.Wrap(apperrors.ErrInvalid, what+" is not valid base64", err)
	}
	return models.Attachment{ContentType: a.ContentType, Data: data}, nil
}

// bridge holds the engine for the lifetime of the host process.
type bridge struct {
	mu      gosync.Mutex
	app     *app.App
	cancel  context.CancelFunc
	lastErr string

	build func(ctx context.Context, cfg *config.Config) (*app.App, error)
}

var core = &bridge{build: func(ctx context.Context, cfg *config.Config) (*app.App, error) {
	return app.Build(ctx, cfg)
}}

// init builds and starts the engine. Connectivity is reported by the host
// through setOnline. Calling init twice is a no-op.
func (b *bridge) init(dataDir string, online bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.app != nil {
		return nil
	}

	cfg := config.Load()
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	cfg.ConnectivityMode = config.ConnectivityManual
	cfg.InitialOnline = online
	app.InitLogging(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	a, err := b.build(ctx, cfg)
	if err != nil {
		cancel()
		return err
	}
	a.Start(ctx)
	b.app, b.cancel = a, cancel
	logging.Info("Mobile core initialized", map[string]interface{}{"data_dir": cfg.DataDir})
	return nil
}

func (b *bridge) cleanup() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.app == nil {
		return
	}
	b.cancel()
	b.app.Close()
	b.app, b.cancel = nil, nil
}

func (b *bridge) current() (*app.App, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.app == nil {
		return nil, apperrors.New(apperrors.ErrInternal, "core not initialized")
	}
	return b.app, nil
}

// enqueue stores a report and returns the receipt as JSON.
func (b *bridge) enqueue(request string) (string, error) {
	a, err := b.current()
	if err != nil {
		return "", err
	}

	var req EnqueueRequest
	if err := json.Unmarshal([]byte(request), &req); err != nil {
		return "", apperrors.Wrap(apperrors.ErrInvalid, "request is not valid JSON", err)
	}
	images := make([]models.Attachment, 0, len(req.Images))
	for i, img := range req.Images {
		att, err := img.decode(fmt.Sprintf("image %d", i))
		if err != nil {
			return "", err
		}
		images = append(images, att)
	}
	var voice *models.Attachment
	if req.Voice != nil {
		att, err := req.Voice.decode("voice note")
		if err != nil {
			return "", err
		}
		voice = &att
	}

	receipt, err := a.Capture.EnqueueWithReceipt(context.Background(), req.Fields, images, voice)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(receipt)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrInternal, "encode receipt", err)
	}
	return string(data), nil
}

func (b *bridge) pendingCount() (int, error) {
	a, err := b.current()
	if err != nil {
		return 0, err
	}
	return a.Observer.PendingCount(context.Background())
}

func (b *bridge) isSyncing() bool {
	a, err := b.current()
	if err != nil {
		return false
	}
	return a.Observer.IsSyncing()
}

func (b *bridge) triggerSync() error {
	a, err := b.current()
	if err != nil {
		return err
	}
	a.Observer.TriggerManualSync()
	return nil
}

func (b *bridge) setOnline(online bool) error {
	a, err := b.current()
	if err != nil {
		return err
	}
	a.SetOnline(online)
	return nil
}

// record stores err for GetLastError and returns it unchanged.
func (b *bridge) record(err error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		b.lastErr = ""
	} else {
		b.lastErr = fmt.Sprintf("[%s] %v", apperrors.CodeOf(err), err)
	}
	return err
}

func (b *bridge) lastError() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}
