package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	channeldom "github.com/channelsync/backend/internal/domain/channel"
	"github.com/channelsync/backend/internal/domain/inventory"
	"github.com/channelsync/backend/internal/domain/shared"
	"github.com/channelsync/backend/internal/infrastructure/persistence"
	"github.com/channelsync/backend/internal/infrastructure/queue"
	"github.com/channelsync/backend/internal/infrastructure/scheduler"
	"github.com/channelsync/backend/internal/interfaces/http/dto"
)

// OpsHandler exposes operational endpoints: health, event intake, reconcile
// control, and per-channel request statistics.
type OpsHandler struct {
	db        *persistence.Database
	redis     *redis.Client
	scheduler *scheduler.ReconcileScheduler
	publisher *queue.Publisher
	channels  channeldom.Repository
	requests  inventory.RequestRepository
}

// NewOpsHandler creates a new OpsHandler
func NewOpsHandler(
	db *persistence.Database,
	redisClient *redis.Client,
	reconcileScheduler *scheduler.ReconcileScheduler,
	publisher *queue.Publisher,
	channels channeldom.Repository,
	requests inventory.RequestRepository,
) *OpsHandler {
	return &OpsHandler{
		db:        db,
		redis:     redisClient,
		scheduler: reconcileScheduler,
		publisher: publisher,
		channels:  channels,
		requests:  requests,
	}
}

// HealthResponse reports dependency health
type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Health reports liveness of the database and Redis. Any failed dependency
// turns the overall status to degraded with HTTP 503.
func (h *OpsHandler) Health(c *gin.Context) {
	checks := map[string]string{
		"database": "ok",
		"redis":    "ok",
	}
	status := http.StatusOK

	if err := h.db.Ping(); err != nil {
		checks["database"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if err := h.redis.Ping(c.Request.Context()).Err(); err != nil {
		checks["redis"] = err.Error()
		status = http.StatusServiceUnavailable
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}

	c.JSON(status, HealthResponse{
		Status:    overall,
		Checks:    checks,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// PublishStockChanges accepts a batch of stock change events and appends them
// to the intake stream. The body passes through verbatim; the stream consumer
// does the actual decoding and validation, so producers that write to the
// stream directly and producers that go through this endpoint take the same
// path.
func (h *OpsHandler) PublishStockChanges(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(dto.ErrCodeValidation, "failed to read request body"))
		return
	}
	if len(body) == 0 || !json.Valid(body) {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(dto.ErrCodeValidation, "body must be a JSON stock change payload"))
		return
	}

	id, err := h.publisher.Publish(c.Request.Context(), queue.KindStockChange, json.RawMessage(body))
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(dto.ErrCodeInternal, err.Error()))
		return
	}

	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(gin.H{"message_id": id}))
}

// reconcileJobView is the wire shape of one reconcile job history entry
type reconcileJobView struct {
	ID           string     `json:"id"`
	ChannelUID   string     `json:"channel_uid"`
	Status       string     `json:"status"`
	Error        string     `json:"error,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	RetryCount   int        `json:"retry_count"`
	Products     int        `json:"products"`
	TotalCount   int        `json:"total_count"`
	SuccessCount int        `json:"success_count"`
	FailedCount  int        `json:"failed_count"`
	SkippedCount int        `json:"skipped_count"`
}

// ReconcileHistory returns recent reconcile job history, optionally filtered
// by channel_uid.
func (h *OpsHandler) ReconcileHistory(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 100 {
			c.JSON(http.StatusBadRequest, dto.NewErrorResponse(dto.ErrCodeValidation, "limit must be between 1 and 100"))
			return
		}
		limit = parsed
	}

	var jobs []*scheduler.ReconcileJob
	if channelUID := c.Query("channel_uid"); channelUID != "" {
		jobs = h.scheduler.GetJobHistoryByChannel(channelUID, limit)
	} else {
		jobs = h.scheduler.GetJobHistory(limit)
	}

	views := make([]reconcileJobView, len(jobs))
	for i, job := range jobs {
		views[i] = reconcileJobView{
			ID:           job.ID.String(),
			ChannelUID:   job.ChannelUID,
			Status:       string(job.Status),
			Error:        job.Error,
			StartedAt:    job.StartedAt,
			CompletedAt:  job.CompletedAt,
			RetryCount:   job.RetryCount,
			Products:     job.Products,
			TotalCount:   job.TotalCount,
			SuccessCount: job.SuccessCount,
			FailedCount:  job.FailedCount,
			SkippedCount: job.SkippedCount,
		}
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(views))
}

// runReconcileRequest is the body of a manual reconcile trigger
type runReconcileRequest struct {
	ChannelUID string `json:"channel_uid"`
}

// RunReconcile schedules a reconciliation run out of band. With a channel_uid
// it targets one channel; without it, every known channel is scheduled.
func (h *OpsHandler) RunReconcile(c *gin.Context) {
	// An empty or malformed body means "all channels"
	var req runReconcileRequest
	_ = c.ShouldBindJSON(&req)

	if req.ChannelUID != "" {
		if _, err := h.channels.FindByUID(c.Request.Context(), req.ChannelUID); err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				c.JSON(http.StatusNotFound, dto.NewErrorResponse(dto.ErrCodeNotFound, "channel not found"))
				return
			}
			c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(dto.ErrCodeInternal, err.Error()))
			return
		}
		if err := h.scheduler.ScheduleChannel(req.ChannelUID); err != nil {
			c.JSON(http.StatusServiceUnavailable, dto.NewErrorResponse(dto.ErrCodeInternal, err.Error()))
			return
		}
		c.JSON(http.StatusAccepted, dto.NewSuccessResponse(gin.H{"scheduled": 1}))
		return
	}

	uids, err := h.channels.ListUIDs(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(dto.ErrCodeInternal, err.Error()))
		return
	}
	scheduled := 0
	for _, uid := range uids {
		if err := h.scheduler.ScheduleChannel(uid); err == nil {
			scheduled++
		}
	}
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(gin.H{"scheduled": scheduled}))
}

// RequestStats returns inventory request counts per status for a channel
func (h *OpsHandler) RequestStats(c *gin.Context) {
	channelUID := c.Query("channel_uid")
	if channelUID == "" {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(dto.ErrCodeValidation, "channel_uid is required"))
		return
	}

	if _, err := h.channels.FindByUID(c.Request.Context(), channelUID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			c.JSON(http.StatusNotFound, dto.NewErrorResponse(dto.ErrCodeNotFound, "channel not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(dto.ErrCodeInternal, err.Error()))
		return
	}

	counts, err := h.requests.CountByStatus(c.Request.Context(), channelUID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(dto.ErrCodeInternal, err.Error()))
		return
	}

	stats := make(map[string]int64, len(counts))
	for status, count := range counts {
		stats[string(status)] = count
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(gin.H{
		"channel_uid": channelUID,
		"counts":      stats,
	}))
}
