package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/channelsync/backend/internal/domain/marketplace"
)

// SyncReportModel is the persistence model for a stock sync report.
type SyncReportModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key"`
	SKU         string    `gorm:"type:varchar(100);not null;index:idx_sync_reports_sku"`
	Quantity    int64     `gorm:"not null"`
	Origin      string    `gorm:"type:varchar(20)"`
	TargetsJSON string    `gorm:"type:jsonb;column:targets"`
	CompletedAt time.Time `gorm:"not null;index:idx_sync_reports_completed_at,sort:desc"`
}

// TableName returns the table name for GORM
func (SyncReportModel) TableName() string {
	return "sync_reports"
}

// ToDomain converts the persistence model to a domain SyncReport.
func (m *SyncReportModel) ToDomain() *marketplace.SyncReport {
	report := &marketplace.SyncReport{
		ID:          m.ID,
		SKU:         m.SKU,
		Quantity:    m.Quantity,
		Origin:      m.Origin,
		Targets:     make(map[string]marketplace.TargetResult),
		CompletedAt: m.CompletedAt,
	}

	if m.TargetsJSON != "" {
		var targets map[string]marketplace.TargetResult
		if err := json.Unmarshal([]byte(m.TargetsJSON), &targets); err == nil {
			report.Targets = targets
		}
	}

	return report
}

// FromDomain populates the persistence model from a domain SyncReport.
func (m *SyncReportModel) FromDomain(r *marketplace.SyncReport) {
	m.ID = r.ID
	m.SKU = r.SKU
	m.Quantity = r.Quantity
	m.Origin = r.Origin
	m.CompletedAt = r.CompletedAt

	if len(r.Targets) > 0 {
		if jsonBytes, err := json.Marshal(r.Targets); err == nil {
			m.TargetsJSON = string(jsonBytes)
		}
	} else {
		m.TargetsJSON = "{}"
	}
}

// SyncReportModelFromDomain creates a new persistence model from a domain SyncReport.
func SyncReportModelFromDomain(r *marketplace.SyncReport) *SyncReportModel {
	m := &SyncReportModel{}
	m.FromDomain(r)
	return m
}
