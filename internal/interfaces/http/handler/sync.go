package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/channelsync/backend/internal/domain/erp"
	"github.com/channelsync/backend/internal/domain/marketplace"
	"github.com/channelsync/backend/internal/domain/shared"
	"github.com/channelsync/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxReportListLimit = 200

// Resyncer pushes a SKU's authoritative ERP quantity to every marketplace.
type Resyncer interface {
	Resync(ctx context.Context, sku string) (*marketplace.SyncReport, error)
}

// ReportReader reads persisted synchronization reports.
type ReportReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*marketplace.SyncReport, error)
	ListBySKU(ctx context.Context, sku string, limit int) ([]*marketplace.SyncReport, error)
	ListRecent(ctx context.Context, limit int) ([]*marketplace.SyncReport, error)
}

// SyncHandler exposes the fan-out engine and its report store to operators
type SyncHandler struct {
	BaseHandler
	engine  Resyncer
	reports ReportReader
	logger  *zap.Logger
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(engine Resyncer, reports ReportReader, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{
		engine:  engine,
		reports: reports,
		logger:  logger,
	}
}

// SyncReportResponse is the transport shape of a synchronization report
type SyncReportResponse struct {
	ID           string                              `json:"id"`
	SKU          string                              `json:"sku"`
	Quantity     int64                               `json:"quantity"`
	Origin       string                              `json:"origin,omitempty"`
	Targets      map[string]marketplace.TargetResult `json:"targets"`
	AllSucceeded bool                                `json:"all_succeeded"`
	CompletedAt  string                              `json:"completed_at"`
}

func toSyncReportResponse(r *marketplace.SyncReport) SyncReportResponse {
	return SyncReportResponse{
		ID:           r.ID.String(),
		SKU:          r.SKU,
		Quantity:     r.Quantity,
		Origin:       r.Origin,
		Targets:      r.Targets,
		AllSucceeded: r.AllSucceeded(),
		CompletedAt:  r.CompletedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

// Resync handles POST /api/v1/stock/:sku/resync. It reads the authoritative
// quantity from the ERP and pushes it to every configured marketplace.
func (h *SyncHandler) Resync(c *gin.Context) {
	sku := strings.TrimSpace(c.Param("sku"))
	if sku == "" {
		h.BadRequest(c, "SKU is required")
		return
	}

	report, err := h.engine.Resync(c.Request.Context(), sku)
	if err != nil {
		if errors.Is(err, erp.ErrProductNotFound) || errors.Is(err, erp.ErrStockRecordNotFound) {
			h.NotFound(c, "SKU not found in ERP: "+sku)
			return
		}
		h.logger.Error("resync failed",
			zap.String("sku", sku),
			zap.String("operator", getOperator(c)),
			zap.Error(err))
		h.InternalError(c, "Failed to resync SKU")
		return
	}

	h.logger.Info("manual resync triggered",
		zap.String("sku", sku),
		zap.String("operator", getOperator(c)),
		zap.Bool("all_succeeded", report.AllSucceeded()))

	h.Success(c, toSyncReportResponse(report))
}

// ListReports handles GET /api/v1/reports. An optional sku query parameter
// narrows the listing to one product.
func (h *SyncHandler) ListReports(c *gin.Context) {
	limit := parseLimit(c.Query("limit"), maxReportListLimit)

	var (
		reports []*marketplace.SyncReport
		err     error
	)
	if sku := strings.TrimSpace(c.Query("sku")); sku != "" {
		reports, err = h.reports.ListBySKU(c.Request.Context(), sku, limit)
	} else {
		reports, err = h.reports.ListRecent(c.Request.Context(), limit)
	}
	if err != nil {
		h.logger.Error("failed to list sync reports", zap.Error(err))
		h.InternalError(c, "Failed to list sync reports")
		return
	}

	out := make([]SyncReportResponse, 0, len(reports))
	for _, r := range reports {
		out = append(out, toSyncReportResponse(r))
	}
	h.Success(c, out)
}

// GetReport handles GET /api/v1/reports/:id
func (h *SyncHandler) GetReport(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeValidationFormat, "Report ID must be a UUID")
		return
	}

	report, err := h.reports.FindByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			h.NotFound(c, "Sync report not found")
			return
		}
		h.logger.Error("failed to load sync report",
			zap.String("id", id.String()),
			zap.Error(err))
		h.InternalError(c, "Failed to load sync report")
		return
	}

	h.Success(c, toSyncReportResponse(report))
}

// parseLimit parses a limit query parameter, clamping to (0, max].
func parseLimit(raw string, max int) int {
	if raw == "" {
		return 0 // repository default
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0
	}
	if n > max {
		return max
	}
	return n
}
