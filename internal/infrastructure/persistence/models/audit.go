package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/channelsync/backend/internal/domain/audit"
)

// AuditRecordModel is the persistence model for the audit Record.
type AuditRecordModel struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key"`
	Component  string    `gorm:"type:varchar(50);not null;index:idx_audit_component"`
	Action     string    `gorm:"type:varchar(50);not null"`
	Status     string    `gorm:"type:varchar(10);not null;index:idx_audit_status"`
	DurationMS int64     `gorm:"not null"`
	IDsJSON    string    `gorm:"type:jsonb;column:ids"`
	Error      string    `gorm:"type:text"`
	OccurredAt time.Time `gorm:"not null;index:idx_audit_occurred_at,sort:desc"`
}

// TableName returns the table name for GORM
func (AuditRecordModel) TableName() string {
	return "audit_records"
}

// ToDomain converts the persistence model to a domain audit Record.
func (m *AuditRecordModel) ToDomain() audit.Record {
	record := audit.Record{
		ID:         m.ID,
		Component:  m.Component,
		Action:     m.Action,
		Status:     audit.Status(m.Status),
		Duration:   time.Duration(m.DurationMS) * time.Millisecond,
		IDs:        make(map[string]string),
		Error:      m.Error,
		OccurredAt: m.OccurredAt,
	}

	if m.IDsJSON != "" {
		var ids map[string]string
		if err := json.Unmarshal([]byte(m.IDsJSON), &ids); err == nil {
			record.IDs = ids
		}
	}

	return record
}

// FromDomain populates the persistence model from a domain audit Record.
func (m *AuditRecordModel) FromDomain(r audit.Record) {
	m.ID = r.ID
	m.Component = r.Component
	m.Action = r.Action
	m.Status = string(r.Status)
	m.DurationMS = r.Duration.Milliseconds()
	m.Error = r.Error
	m.OccurredAt = r.OccurredAt

	if len(r.IDs) > 0 {
		if jsonBytes, err := json.Marshal(r.IDs); err == nil {
			m.IDsJSON = string(jsonBytes)
		}
	} else {
		m.IDsJSON = "{}"
	}
}

// AuditRecordModelFromDomain creates a new persistence model from a domain audit Record.
func AuditRecordModelFromDomain(r audit.Record) *AuditRecordModel {
	m := &AuditRecordModel{}
	m.FromDomain(r)
	return m
}
