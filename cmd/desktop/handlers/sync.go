package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/kimhsiao/damagelog/backend/internal/errors"
	"github.com/kimhsiao/damagelog/backend/internal/logging"
	"github.com/kimhsiao/damagelog/backend/internal/sync/status"
)

// StatusSource is the sync status surface shown to the user.
type StatusSource interface {
	Snapshot() status.Snapshot
	Refresh(ctx context.Context) error
	TriggerManualSync()
}

// ConnectivityReporter accepts platform reachability events.
type ConnectivityReporter interface {
	Report(online bool)
	Online() bool
}

// QueueClearer deletes every queued entry.
type QueueClearer interface {
	Clear(ctx context.Context) (int, error)
}

// SyncHandler handles sync status and control.
type SyncHandler struct {
	status       StatusSource
	connectivity ConnectivityReporter
	queue        QueueClearer
}

// NewSyncHandler creates a SyncHandler.
func NewSyncHandler(status StatusSource, connectivity ConnectivityReporter, queue QueueClearer) *SyncHandler {
	return &SyncHandler{status: status, connectivity: connectivity, queue: queue}
}

// GetStatus handles GET /api/sync/status.
// The snapshot is recomputed so the pending count is never stale.
func (h *SyncHandler) GetStatus(c *gin.Context) {
	if err := h.status.Refresh(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.status.Snapshot())
}

// Trigger handles POST /api/sync/trigger. The drain runs in the background;
// a request while one is running is accepted and ignored.
func (h *SyncHandler) Trigger(c *gin.Context) {
	h.status.TriggerManualSync()
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}

// SetConnectivity handles POST /api/connectivity with {"online": bool}.
func (h *SyncHandler) SetConnectivity(c *gin.Context) {
	var req struct {
		Online *bool `json:"online" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.Wrap(apperrors.ErrInvalid, "expected {\"online\": bool}", err))
		return
	}
	h.connectivity.Report(*req.Online)
	c.JSON(http.StatusOK, gin.H{"online": h.connectivity.Online()})
}

// ClearQueue handles DELETE /api/queue?confirm=true.
// Unsynced reports are lost, so the caller must confirm.
func (h *SyncHandler) ClearQueue(c *gin.Context) {
	confirm, _ := strconv.ParseBool(c.Query("confirm"))
	if !confirm {
		respondError(c, apperrors.New(apperrors.ErrInvalid, "pass confirm=true to delete every queued entry"))
		return
	}
	n, err := h.queue.Clear(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.status.Refresh(c.Request.Context()); err != nil {
		logging.Warn("Status refresh after clear failed", map[string]interface{}{"error": err.Error()})
	}
	c.JSON(http.StatusOK, gin.H{"removed": n})
}
