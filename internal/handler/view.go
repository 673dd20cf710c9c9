package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	infralogger "github.com/KeisukeYokoyama/mondai-frontend-sub000/infrastructure/logger"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/aggregator"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/domain"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/middleware"
)

// maxItemIDLength bounds the item id accepted from the path.
const maxItemIDLength = 128

// ViewAggregator is the part of the aggregator the HTTP API needs.
type ViewAggregator interface {
	RecordView(ctx context.Context, itemID string)
	Flush(ctx context.Context) error
	Pending(ctx context.Context) ([]domain.ViewEvent, error)
	LastFlushAt(ctx context.Context) (time.Time, error)
}

// UserAgentObserver receives the browser user agent of each counted view.
type UserAgentObserver interface {
	Observe(userAgent string)
}

// ViewHandler serves the view endpoints.
type ViewHandler struct {
	views    ViewAggregator
	observer UserAgentObserver
	logger   infralogger.Logger
}

// NewViewHandler creates a ViewHandler. observer may be nil.
func NewViewHandler(views ViewAggregator, observer UserAgentObserver, log infralogger.Logger) *ViewHandler {
	return &ViewHandler{views: views, observer: observer, logger: log}
}

// RecordView handles POST /api/v1/views/:item_id.
func (h *ViewHandler) RecordView(c *gin.Context) {
	itemID := strings.TrimSpace(c.Param("item_id"))
	if itemID == "" || len(itemID) > maxItemIDLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id"})
		return
	}

	if middleware.IsBot(c) {
		c.JSON(http.StatusAccepted, gin.H{"status": "ignored"})
		return
	}

	if h.observer != nil {
		h.observer.Observe(c.Request.UserAgent())
	}
	h.views.RecordView(c.Request.Context(), itemID)

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// Flush handles POST /api/v1/views/flush.
func (h *ViewHandler) Flush(c *gin.Context) {
	err := h.views.Flush(c.Request.Context())

	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "flushed"})
	case errors.Is(err, aggregator.ErrFlushInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, aggregator.ErrRemoteValidationFailed), errors.Is(err, aggregator.ErrRemoteWriteFailed):
		h.logger.Warn("Manual flush failed", infralogger.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	case errors.Is(err, aggregator.ErrClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Manual flush failed", infralogger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "flush failed"})
	}
}

// PendingResponse is the body of GET /api/v1/views/pending.
type PendingResponse struct {
	Count       int                `json:"count"`
	Pending     []domain.ViewEvent `json:"pending"`
	LastFlushAt *time.Time         `json:"last_flush_at"`
}

// Pending handles GET /api/v1/views/pending.
func (h *ViewHandler) Pending(c *gin.Context) {
	ctx := c.Request.Context()

	events, err := h.views.Pending(ctx)
	if err != nil {
		h.logger.Error("Failed to read pending views", infralogger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "local storage unavailable"})
		return
	}
	if events == nil {
		events = []domain.ViewEvent{}
	}

	resp := PendingResponse{Count: len(events), Pending: events}
	if last, lastErr := h.views.LastFlushAt(ctx); lastErr == nil && !last.IsZero() {
		resp.LastFlushAt = &last
	}

	c.JSON(http.StatusOK, resp)
}
