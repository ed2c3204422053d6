package dto

import "encoding/json"

// ListAuditLogsRequest carries the query filters for the audit trail
type ListAuditLogsRequest struct {
	Action        *string `json:"action,omitempty"`
	ActorID       *string `json:"actor_id,omitempty"`
	LeadID        *uint   `json:"lead_id,omitempty"`
	FailedOnly    bool    `json:"failed_only"`
	CreatedAfter  *string `json:"created_after,omitempty"`
	CreatedBefore *string `json:"created_before,omitempty"`
	Page          int     `json:"page"`
	PageSize      int     `json:"page_size"`
}

// AuditLogDTO is the API representation of an audit entry
type AuditLogDTO struct {
	ID           uint            `json:"id"`
	ActorID      *string         `json:"actor_id,omitempty"`
	LeadID       *uint           `json:"lead_id,omitempty"`
	Action       string          `json:"action"`
	Description  *string         `json:"description,omitempty"`
	IPAddress    *string         `json:"ip_address,omitempty"`
	RequestID    *string         `json:"request_id,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	Success      bool            `json:"success"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	CreatedAt    string          `json:"created_at"`
}

// ListAuditLogsResponse is a page of audit entries, newest first
type ListAuditLogsResponse struct {
	Items      []AuditLogDTO `json:"items"`
	Total      int64         `json:"total"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
	TotalPages int           `json:"total_pages"`
}
