package handler

import (
	"context"
	"errors"
	"time"

	"github.com/channelsync/backend/internal/infrastructure/queue"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultDeadLetterLimit = 50

// QueueInspector exposes lane depths and dead-letter management.
type QueueInspector interface {
	Depth(ctx context.Context, lane string) (int64, error)
	DeadLetterDepth(ctx context.Context, lane string) (int64, error)
	DeadLetters(ctx context.Context, lane string, limit int64) ([]*queue.Job, error)
	RequeueDeadLetter(ctx context.Context, lane, jobID string) error
}

// QueueHandler exposes queue lane stats and dead-letter reprocessing
type QueueHandler struct {
	BaseHandler
	inspector QueueInspector
	lanes     []string
	deadLimit int64
	logger    *zap.Logger
}

// QueueHandlerOption configures a QueueHandler
type QueueHandlerOption func(*QueueHandler)

// WithDeadLetterLimit caps the number of dead letters returned when the
// request does not name its own limit
func WithDeadLetterLimit(limit int64) QueueHandlerOption {
	return func(h *QueueHandler) {
		if limit > 0 {
			h.deadLimit = limit
		}
	}
}

// NewQueueHandler creates a new QueueHandler. When lanes is empty the
// pipeline's standard lanes are inspected.
func NewQueueHandler(inspector QueueInspector, lanes []string, logger *zap.Logger, opts ...QueueHandlerOption) *QueueHandler {
	if len(lanes) == 0 {
		lanes = []string{queue.LaneProcessOrder, queue.LaneSyncStock, queue.LaneUpdateMarketplace}
	}
	h := &QueueHandler{
		inspector: inspector,
		lanes:     lanes,
		deadLimit: defaultDeadLetterLimit,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// LaneStats reports the state of one queue lane
type LaneStats struct {
	Lane        string `json:"lane"`
	Depth       int64  `json:"depth"`
	DeadLetters int64  `json:"dead_letters"`
}

// ListLanes handles GET /api/v1/queues
func (h *QueueHandler) ListLanes(c *gin.Context) {
	ctx := c.Request.Context()

	stats := make([]LaneStats, 0, len(h.lanes))
	for _, lane := range h.lanes {
		depth, err := h.inspector.Depth(ctx, lane)
		if err != nil {
			h.logger.Error("failed to read queue depth",
				zap.String("lane", lane),
				zap.Error(err))
			h.InternalError(c, "Failed to read queue state")
			return
		}
		dead, err := h.inspector.DeadLetterDepth(ctx, lane)
		if err != nil {
			h.logger.Error("failed to read dead-letter depth",
				zap.String("lane", lane),
				zap.Error(err))
			h.InternalError(c, "Failed to read queue state")
			return
		}
		stats = append(stats, LaneStats{Lane: lane, Depth: depth, DeadLetters: dead})
	}

	h.Success(c, stats)
}

// DeadLetterJob is the transport shape of a parked job
type DeadLetterJob struct {
	ID         string `json:"id"`
	Lane       string `json:"lane"`
	Kind       string `json:"kind"`
	Payload    string `json:"payload"`
	Attempt    int    `json:"attempt"`
	EnqueuedAt string `json:"enqueued_at"`
	LastError  string `json:"last_error,omitempty"`
}

// ListDeadLetters handles GET /api/v1/queues/:lane/dead
func (h *QueueHandler) ListDeadLetters(c *gin.Context) {
	lane := c.Param("lane")
	if !h.knownLane(lane) {
		h.NotFound(c, "Unknown queue lane: "+lane)
		return
	}

	limit := int64(parseLimit(c.Query("limit"), 500))
	if limit == 0 {
		limit = h.deadLimit
	}

	jobs, err := h.inspector.DeadLetters(c.Request.Context(), lane, limit)
	if err != nil {
		h.logger.Error("failed to list dead letters",
			zap.String("lane", lane),
			zap.Error(err))
		h.InternalError(c, "Failed to list dead letters")
		return
	}

	out := make([]DeadLetterJob, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, DeadLetterJob{
			ID:         j.ID.String(),
			Lane:       j.Lane,
			Kind:       j.Kind,
			Payload:    string(j.Payload),
			Attempt:    j.Attempt,
			EnqueuedAt: j.EnqueuedAt.UTC().Format(time.RFC3339),
			LastError:  j.LastError,
		})
	}
	h.Success(c, out)
}

// RequeueDeadLetter handles POST /api/v1/queues/:lane/dead/:id/requeue.
// The job re-enters its lane with its attempt counter preserved.
func (h *QueueHandler) RequeueDeadLetter(c *gin.Context) {
	lane := c.Param("lane")
	if !h.knownLane(lane) {
		h.NotFound(c, "Unknown queue lane: "+lane)
		return
	}
	jobID := c.Param("id")

	err := h.inspector.RequeueDeadLetter(c.Request.Context(), lane, jobID)
	if err != nil {
		if errors.Is(err, queue.ErrEmpty) {
			h.NotFound(c, "Dead letter not found: "+jobID)
			return
		}
		h.logger.Error("failed to requeue dead letter",
			zap.String("lane", lane),
			zap.String("job_id", jobID),
			zap.Error(err))
		h.InternalError(c, "Failed to requeue dead letter")
		return
	}

	h.logger.Info("dead letter requeued",
		zap.String("lane", lane),
		zap.String("job_id", jobID),
		zap.String("operator", getOperator(c)))

	h.Success(c, gin.H{"requeued": jobID})
}

func (h *QueueHandler) knownLane(lane string) bool {
	for _, l := range h.lanes {
		if l == lane {
			return true
		}
	}
	return false
}
