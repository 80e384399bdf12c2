package persistence

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/channelsync/backend/internal/domain/audit"
	infraaudit "github.com/channelsync/backend/internal/infrastructure/audit"
	"github.com/channelsync/backend/internal/infrastructure/persistence/models"
)

// defaultAuditListLimit caps unbounded audit queries.
const defaultAuditListLimit = 50

// AuditFilter narrows audit record queries.
type AuditFilter struct {
	// Component filters by emitting component, empty matches all
	Component string
	// Status filters by outcome, empty matches all
	Status audit.Status
	// Since excludes records older than this time when non-zero
	Since time.Time
	// Limit caps the result size, defaulted when zero or negative
	Limit int
}

// GormAuditRecordRepository persists audit records using GORM. It doubles
// as the database destination for the async audit sink.
type GormAuditRecordRepository struct {
	db *gorm.DB
}

// NewGormAuditRecordRepository creates a new GormAuditRecordRepository
func NewGormAuditRecordRepository(db *gorm.DB) *GormAuditRecordRepository {
	return &GormAuditRecordRepository{db: db}
}

// Write stores one audit record.
func (r *GormAuditRecordRepository) Write(ctx context.Context, record audit.Record) error {
	model := models.AuditRecordModelFromDomain(record)
	return r.db.WithContext(ctx).Create(model).Error
}

// List returns audit records matching the filter, newest first.
func (r *GormAuditRecordRepository) List(ctx context.Context, filter AuditFilter) ([]audit.Record, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultAuditListLimit
	}

	query := r.db.WithContext(ctx).Model(&models.AuditRecordModel{})
	if filter.Component != "" {
		query = query.Where("component = ?", filter.Component)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if !filter.Since.IsZero() {
		query = query.Where("occurred_at >= ?", filter.Since)
	}

	var recordModels []models.AuditRecordModel
	if err := query.Order("occurred_at DESC").Limit(limit).Find(&recordModels).Error; err != nil {
		return nil, err
	}

	records := make([]audit.Record, len(recordModels))
	for i, model := range recordModels {
		records[i] = model.ToDomain()
	}
	return records, nil
}

// CountByStatus counts records per outcome since the given time.
func (r *GormAuditRecordRepository) CountByStatus(ctx context.Context, status audit.Status, since time.Time) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).
		Model(&models.AuditRecordModel{}).
		Where("status = ?", status)
	if !since.IsZero() {
		query = query.Where("occurred_at >= ?", since)
	}
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Ensure GormAuditRecordRepository can serve as an audit sink destination
var _ infraaudit.Writer = (*GormAuditRecordRepository)(nil)
