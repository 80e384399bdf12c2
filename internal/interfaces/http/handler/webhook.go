package handler

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/channelsync/backend/internal/domain/marketplace"
	"github.com/channelsync/backend/internal/domain/order"
	"github.com/channelsync/backend/internal/infrastructure/cache"
	"github.com/channelsync/backend/internal/infrastructure/storage"
	"github.com/channelsync/backend/internal/infrastructure/telemetry"
	"github.com/channelsync/backend/internal/interfaces/http/dto"
	"github.com/channelsync/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SignatureHeader carries the platform's webhook HMAC signature. Shopee
// and Lazada use different native header names; the integration gateway
// forwards both under this one.
const SignatureHeader = "X-Webhook-Signature"

// defaultDedupTTL bounds how long an order's dedup key is held. Redelivery
// of the same marketplace order after this window is ignored anyway by the
// ERP external-reference lookup during materialization.
const defaultDedupTTL = 7 * 24 * time.Hour

// EnqueueFunc queues a normalized order for materialization and returns
// the queued job's identifier.
type EnqueueFunc func(ctx context.Context, o *order.Order) (string, error)

// WebhookHandler handles inbound marketplace order webhooks
type WebhookHandler struct {
	BaseHandler
	registry marketplace.Registry
	dedup    cache.DedupStore
	archive  storage.PayloadArchive
	enqueue  EnqueueFunc
	metrics  *telemetry.PipelineMetrics
	dedupTTL time.Duration
	logger   *zap.Logger
}

// WebhookHandlerOption configures a WebhookHandler
type WebhookHandlerOption func(*WebhookHandler)

// WithPipelineMetrics attaches intake metrics recording
func WithPipelineMetrics(m *telemetry.PipelineMetrics) WebhookHandlerOption {
	return func(h *WebhookHandler) {
		h.metrics = m
	}
}

// WithDedupTTL overrides the dedup key retention window
func WithDedupTTL(ttl time.Duration) WebhookHandlerOption {
	return func(h *WebhookHandler) {
		if ttl > 0 {
			h.dedupTTL = ttl
		}
	}
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(
	registry marketplace.Registry,
	dedup cache.DedupStore,
	archive storage.PayloadArchive,
	enqueue EnqueueFunc,
	logger *zap.Logger,
	opts ...WebhookHandlerOption,
) *WebhookHandler {
	h := &WebhookHandler{
		registry: registry,
		dedup:    dedup,
		archive:  archive,
		enqueue:  enqueue,
		dedupTTL: defaultDedupTTL,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// WebhookAcceptedResponse reports the intake result of a webhook delivery
type WebhookAcceptedResponse struct {
	Status          string `json:"status" example:"accepted"`
	Marketplace     string `json:"marketplace" example:"SHOPEE"`
	ExternalOrderID string `json:"external_order_id" example:"2403129XYZ"`
	JobID           string `json:"job_id,omitempty"`
}

// Receive handles POST /webhooks/:marketplace. It verifies the payload
// signature, normalizes it into a canonical order, drops redeliveries,
// archives the raw body, and queues the order for materialization.
func (h *WebhookHandler) Receive(c *gin.Context) {
	ctx := c.Request.Context()
	name := c.Param("marketplace")
	c.Set(middleware.MarketplaceKey, name)

	adapter, err := h.registry.Get(name)
	if err != nil {
		h.ErrorWithCode(c, dto.ErrCodeAdapterNotConfigured, "No adapter configured for marketplace "+name)
		return
	}
	code := adapter.Code().String()

	body, err := io.ReadAll(c.Request.Body)
	if err != nil || len(body) == 0 {
		h.record(ctx, code, telemetry.WebhookOutcomeInvalidPayload)
		h.ErrorWithCode(c, dto.ErrCodeInvalidPayload, "Empty or unreadable webhook body")
		return
	}

	o, err := adapter.ParseOrderWebhook(body, c.GetHeader(SignatureHeader))
	if err != nil {
		switch {
		case errors.Is(err, marketplace.ErrInvalidSignature):
			h.record(ctx, code, telemetry.WebhookOutcomeInvalidSignature)
			h.logger.Warn("webhook signature rejected",
				zap.String("marketplace", code),
				zap.String("remote_addr", c.ClientIP()))
			h.ErrorWithCode(c, dto.ErrCodeInvalidSignature, "Webhook signature verification failed")
		default:
			h.record(ctx, code, telemetry.WebhookOutcomeInvalidPayload)
			h.logger.Warn("webhook payload rejected",
				zap.String("marketplace", code),
				zap.Error(err))
			h.ErrorWithCode(c, dto.ErrCodeInvalidPayload, "Webhook payload could not be normalized")
		}
		return
	}

	fresh, err := h.dedup.MarkProcessed(ctx, o.DedupKey(), h.dedupTTL)
	if err != nil {
		// Dedup store outage must not drop orders. The materializer's
		// external-reference lookup still prevents double ERP writes.
		h.logger.Warn("dedup store unavailable, accepting delivery",
			zap.String("dedup_key", o.DedupKey()),
			zap.Error(err))
		fresh = true
	}
	if !fresh {
		h.record(ctx, code, telemetry.WebhookOutcomeDuplicate)
		h.logger.Info("duplicate webhook delivery ignored",
			zap.String("marketplace", code),
			zap.String("external_order_id", o.ExternalOrderID))
		h.Success(c, WebhookAcceptedResponse{
			Status:          "duplicate",
			Marketplace:     code,
			ExternalOrderID: o.ExternalOrderID,
		})
		return
	}

	h.archiveRaw(ctx, code, o.ExternalOrderID, body)

	jobID, err := h.enqueue(ctx, o)
	if err != nil {
		h.logger.Error("failed to enqueue order for processing",
			zap.String("marketplace", code),
			zap.String("external_order_id", o.ExternalOrderID),
			zap.Error(err))
		h.InternalError(c, "Failed to queue order for processing")
		return
	}

	h.record(ctx, code, telemetry.WebhookOutcomeAccepted)
	h.Accepted(c, WebhookAcceptedResponse{
		Status:          "accepted",
		Marketplace:     code,
		ExternalOrderID: o.ExternalOrderID,
		JobID:           jobID,
	})
}

// archiveRaw stores the raw payload best-effort; failures never block intake.
func (h *WebhookHandler) archiveRaw(ctx context.Context, code, externalOrderID string, body []byte) {
	if h.archive == nil {
		return
	}
	if _, err := h.archive.Archive(ctx, code, externalOrderID, body); err != nil {
		h.logger.Warn("failed to archive webhook payload",
			zap.String("marketplace", code),
			zap.String("external_order_id", externalOrderID),
			zap.Error(err))
	}
}

func (h *WebhookHandler) record(ctx context.Context, code string, outcome telemetry.WebhookOutcome) {
	if h.metrics != nil {
		h.metrics.RecordWebhookReceived(ctx, code, outcome)
	}
}
