package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/channelsync/backend/internal/application/stocksync"
	"github.com/channelsync/backend/internal/domain/marketplace"
	"github.com/channelsync/backend/internal/domain/shared"
	"github.com/channelsync/backend/internal/infrastructure/persistence/models"
)

// defaultReportListLimit caps unbounded report queries.
const defaultReportListLimit = 50

// GormSyncReportRepository persists stock sync reports using GORM.
type GormSyncReportRepository struct {
	db *gorm.DB
}

// NewGormSyncReportRepository creates a new GormSyncReportRepository
func NewGormSyncReportRepository(db *gorm.DB) *GormSyncReportRepository {
	return &GormSyncReportRepository{db: db}
}

// Save stores one completed sync report.
func (r *GormSyncReportRepository) Save(ctx context.Context, report *marketplace.SyncReport) error {
	model := models.SyncReportModelFromDomain(report)
	return r.db.WithContext(ctx).Create(model).Error
}

// FindByID finds a report by its ID.
func (r *GormSyncReportRepository) FindByID(ctx context.Context, id uuid.UUID) (*marketplace.SyncReport, error) {
	var model models.SyncReportModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ListBySKU returns the most recent reports for a SKU, newest first.
func (r *GormSyncReportRepository) ListBySKU(ctx context.Context, sku string, limit int) ([]*marketplace.SyncReport, error) {
	if limit <= 0 {
		limit = defaultReportListLimit
	}

	var reportModels []models.SyncReportModel
	if err := r.db.WithContext(ctx).
		Where("sku = ?", sku).
		Order("completed_at DESC").
		Limit(limit).
		Find(&reportModels).Error; err != nil {
		return nil, err
	}

	return toDomainReports(reportModels), nil
}

// ListRecent returns the most recent reports across all SKUs, newest first.
func (r *GormSyncReportRepository) ListRecent(ctx context.Context, limit int) ([]*marketplace.SyncReport, error) {
	if limit <= 0 {
		limit = defaultReportListLimit
	}

	var reportModels []models.SyncReportModel
	if err := r.db.WithContext(ctx).
		Order("completed_at DESC").
		Limit(limit).
		Find(&reportModels).Error; err != nil {
		return nil, err
	}

	return toDomainReports(reportModels), nil
}

func toDomainReports(reportModels []models.SyncReportModel) []*marketplace.SyncReport {
	reports := make([]*marketplace.SyncReport, len(reportModels))
	for i := range reportModels {
		reports[i] = reportModels[i].ToDomain()
	}
	return reports
}

// Ensure GormSyncReportRepository implements the sync engine's report store
var _ stocksync.ReportStore = (*GormSyncReportRepository)(nil)
