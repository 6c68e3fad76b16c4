package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type AuditEventType string

const (
	AuditOpen     AuditEventType = "OPEN"
	AuditClose    AuditEventType = "CLOSE"
	AuditMovement AuditEventType = "MOVEMENT"
	AuditError    AuditEventType = "ERROR"
)

// AuditEntry is an append-only trail record. SessionID is nil when the
// failing call never resolved a session (e.g. an open rejected as duplicate).
type AuditEntry struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey"`
	SessionID  *uuid.UUID     `gorm:"type:uuid;index"`
	LocationID string         `gorm:"type:varchar(64);index"`
	EventType  AuditEventType `gorm:"type:varchar(20);not null"`
	ActorID    uuid.UUID      `gorm:"type:uuid;not null"`
	Timestamp  time.Time      `gorm:"not null"`
	Payload    datatypes.JSON `gorm:"column:payload_snapshot"`
}

func (AuditEntry) TableName() string { return "cash_audit_entries" }
