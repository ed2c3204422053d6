// Package models contains domain entities and business models for the lead lifecycle service
package models

import (
	"encoding/json"
	"time"
)

type AuditLog struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	ActorID      *string         `gorm:"size:100;index:idx_audit_actor_id" json:"actor_id,omitempty"`
	LeadID       *uint           `gorm:"index:idx_audit_lead_id" json:"lead_id,omitempty"`
	Action       string          `gorm:"size:64;not null;index:idx_audit_action" json:"action"`
	Description  *string         `gorm:"type:text" json:"description,omitempty"`
	IPAddress    *string         `gorm:"size:64;index:idx_audit_ip_address" json:"ip_address,omitempty"`
	UserAgent    *string         `gorm:"type:text" json:"user_agent,omitempty"`
	RequestID    *string         `gorm:"size:255;index:idx_audit_request_id" json:"request_id,omitempty"`
	Metadata     json.RawMessage `gorm:"type:jsonb" json:"metadata,omitempty"`
	Success      *bool           `gorm:"default:true;index:idx_audit_success" json:"success"`
	ErrorMessage *string         `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time       `gorm:"default:CURRENT_TIMESTAMP;index:idx_audit_created_at" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_log"
}

// Audit action constants
const (
	AuditActionLeadCreated       = "lead_created"
	AuditActionLeadStatusChanged = "lead_status_changed"
	AuditActionLeadsEscalated    = "leads_escalated"
	AuditActionLeadsPurged       = "leads_purged"
	AuditActionMaintenanceFailed = "maintenance_failed"
	AuditActionTokenRefreshed    = "token_refreshed"
	AuditActionTokenRevoked      = "token_revoked"
)

// AuditLogFilter represents filter criteria for audit log queries
type AuditLogFilter struct {
	ID            *uint
	ActorID       *string
	LeadID        *uint
	Action        *string
	Success       *bool
	RequestID     *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

func (a *AuditLog) IsFailed() bool {
	return a.Success != nil && !*a.Success
}

// IsMaintenanceEvent reports whether the entry was written by a lifecycle job
func (a *AuditLog) IsMaintenanceEvent() bool {
	switch a.Action {
	case AuditActionLeadsEscalated, AuditActionLeadsPurged, AuditActionMaintenanceFailed:
		return true
	}
	return false
}
