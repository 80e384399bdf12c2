package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/channelsync/backend/internal/domain/audit"
	"github.com/channelsync/backend/internal/infrastructure/persistence"
	"github.com/channelsync/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxAuditListLimit = 500

// AuditReader reads persisted audit records.
type AuditReader interface {
	List(ctx context.Context, filter persistence.AuditFilter) ([]audit.Record, error)
	CountByStatus(ctx context.Context, status audit.Status, since time.Time) (int64, error)
}

// AuditHandler exposes the audit trail to operators
type AuditHandler struct {
	BaseHandler
	records AuditReader
	logger  *zap.Logger
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(records AuditReader, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{
		records: records,
		logger:  logger,
	}
}

// AuditRecordResponse is the transport shape of one audit record
type AuditRecordResponse struct {
	ID         string            `json:"id"`
	Component  string            `json:"component"`
	Action     string            `json:"action"`
	Status     string            `json:"status"`
	DurationMS int64             `json:"duration_ms"`
	IDs        map[string]string `json:"ids,omitempty"`
	Error      string            `json:"error,omitempty"`
	OccurredAt string            `json:"occurred_at"`
}

// ListRecords handles GET /api/v1/audit. Supported query parameters:
// component, status, since (RFC 3339), limit.
func (h *AuditHandler) ListRecords(c *gin.Context) {
	filter := persistence.AuditFilter{
		Component: strings.TrimSpace(c.Query("component")),
		Limit:     parseLimit(c.Query("limit"), maxAuditListLimit),
	}

	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status := audit.Status(strings.ToUpper(raw))
		switch status {
		case audit.StatusSuccess, audit.StatusFailure, audit.StatusPartial:
			filter.Status = status
		default:
			h.Error(c, http.StatusBadRequest, dto.ErrCodeValidationFormat, "status must be SUCCESS, FAILURE or PARTIAL")
			return
		}
	}

	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.Error(c, http.StatusBadRequest, dto.ErrCodeValidationFormat, "since must be an RFC 3339 timestamp")
			return
		}
		filter.Since = since
	}

	records, err := h.records.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list audit records", zap.Error(err))
		h.InternalError(c, "Failed to list audit records")
		return
	}

	out := make([]AuditRecordResponse, 0, len(records))
	for _, r := range records {
		out = append(out, AuditRecordResponse{
			ID:         r.ID.String(),
			Component:  r.Component,
			Action:     r.Action,
			Status:     string(r.Status),
			DurationMS: r.Duration.Milliseconds(),
			IDs:        r.IDs,
			Error:      r.Error,
			OccurredAt: r.OccurredAt.UTC().Format(time.RFC3339),
		})
	}
	h.Success(c, out)
}

// FailureCount handles GET /api/v1/audit/failures. It reports the number
// of failed operations within the requested window (default 24h).
func (h *AuditHandler) FailureCount(c *gin.Context) {
	window := 24 * time.Hour
	if raw := c.Query("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			h.Error(c, http.StatusBadRequest, dto.ErrCodeValidationFormat, "window must be a positive duration")
			return
		}
		window = parsed
	}

	count, err := h.records.CountByStatus(c.Request.Context(), audit.StatusFailure, time.Now().Add(-window))
	if err != nil {
		h.logger.Error("failed to count audit failures", zap.Error(err))
		h.InternalError(c, "Failed to count audit failures")
		return
	}

	h.Success(c, CountData{Count: count})
}
