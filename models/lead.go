// Package models contains domain entities and business models for the lead lifecycle service
package models

import (
	"time"
)

// LeadStatus values stored in leads.status
const (
	LeadStatusNew         = "new"
	LeadStatusAssigned    = "assigned"
	LeadStatusNoAnswer    = "no_answer"
	LeadStatusFollowUp    = "follow_up"
	LeadStatusMissedRS    = "missed_rs"
	LeadStatusRS          = "rs"
	LeadStatusGiveUp      = "give_up"
	LeadStatusUnqualified = "unqualified"
	LeadStatusQualified   = "qualified"
	LeadStatusFunded      = "funded"
)

// EscalationEligibleStatuses are the "still active" statuses the stale-lead job moves to give_up
var EscalationEligibleStatuses = []string{
	LeadStatusNew,
	LeadStatusAssigned,
	LeadStatusNoAnswer,
	LeadStatusFollowUp,
	LeadStatusMissedRS,
	LeadStatusRS,
}

// TerminalStatuses are the statuses the aged-lead job purges
var TerminalStatuses = []string{
	LeadStatusGiveUp,
	LeadStatusUnqualified,
}

var allLeadStatuses = map[string]bool{
	LeadStatusNew:         true,
	LeadStatusAssigned:    true,
	LeadStatusNoAnswer:    true,
	LeadStatusFollowUp:    true,
	LeadStatusMissedRS:    true,
	LeadStatusRS:          true,
	LeadStatusGiveUp:      true,
	LeadStatusUnqualified: true,
	LeadStatusQualified:   true,
	LeadStatusFunded:      true,
}

// Lead is a prospective borrower tracked by the CRM
// Table: leads
// updated_at is the only aging signal used by the maintenance jobs; any field update resets it
type Lead struct {
	ID          uint    `gorm:"primaryKey" json:"id"`
	PhoneNumber string  `gorm:"size:32;not null;uniqueIndex:uk_leads_phone_number" json:"phone_number"`
	FirstName   *string `gorm:"size:255" json:"first_name,omitempty"`
	LastName    *string `gorm:"size:255" json:"last_name,omitempty"`
	Email       *string `gorm:"size:255" json:"email,omitempty"`
	Source      *string `gorm:"size:100" json:"source,omitempty"`
	AssignedTo  *string `gorm:"size:100;index:idx_leads_assigned_to" json:"assigned_to,omitempty"`

	Status string `gorm:"size:32;not null;default:new;index:idx_leads_status_updated_at,priority:1" json:"status"`

	CreatedAt time.Time `gorm:"not null;default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_leads_status_updated_at,priority:2" json:"updated_at"`
	CreatedBy string    `gorm:"size:100;not null" json:"created_by"`
	UpdatedBy string    `gorm:"size:100;not null" json:"updated_by"`
}

func (Lead) TableName() string {
	return "leads"
}

// IsTerminal reports whether the lead is in a purge-eligible status
func (l *Lead) IsTerminal() bool {
	return IsTerminalStatus(l.Status)
}

// IsValidLeadStatus reports whether status is a known lead status
func IsValidLeadStatus(status string) bool {
	return allLeadStatuses[status]
}

// IsTerminalStatus reports whether status is give_up or unqualified
func IsTerminalStatus(status string) bool {
	return status == LeadStatusGiveUp || status == LeadStatusUnqualified
}

// IsEscalationEligibleStatus reports whether status can be escalated to give_up
func IsEscalationEligibleStatus(status string) bool {
	for _, s := range EscalationEligibleStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// LeadFilter represents filter criteria for lead queries
type LeadFilter struct {
	ID            *uint
	PhoneNumber   *string
	Statuses      []string
	AssignedTo    *string
	UpdatedBefore *time.Time
	UpdatedAfter  *time.Time
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

// LeadSnapshot is the identifying projection returned by bulk maintenance operations
type LeadSnapshot struct {
	ID          uint   `json:"id"`
	PhoneNumber string `json:"phone_number"`
	Status      string `json:"status"`
}

// Snapshot returns the identifying projection of the lead
func (l *Lead) Snapshot() LeadSnapshot {
	return LeadSnapshot{ID: l.ID, PhoneNumber: l.PhoneNumber, Status: l.Status}
}
