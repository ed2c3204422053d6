// Package businessflow contains the business logic for the application.
package businessflow

import (
	"math"
	"time"

	"github.com/amirphl/lead-lifecycle/app/dto"
	"github.com/amirphl/lead-lifecycle/models"
)

// ClientMetadata holds all client-related information for audit logging
type ClientMetadata struct {
	IPAddress  string            `json:"ip_address"`
	UserAgent  string            `json:"user_agent"`
	RequestID  string            `json:"request_id,omitempty"`
	Additional map[string]string `json:"additional,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance with basic information
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Additional: make(map[string]string),
	}
}

// AddAdditional adds additional custom information to the metadata
func (cm *ClientMetadata) AddAdditional(key, value string) {
	if cm.Additional == nil {
		cm.Additional = make(map[string]string)
	}
	cm.Additional[key] = value
}

// SetRequestID sets the request ID
func (cm *ClientMetadata) SetRequestID(requestID string) {
	cm.RequestID = requestID
}

// Actor is the verified identity performing a lead mutation
type Actor struct {
	ID   string
	Role string
}

// IsAdmin reports whether the actor carries the admin role
func (a Actor) IsAdmin() bool {
	return a.Role == "admin"
}

// ToLeadDTO converts a lead model to its API representation
func ToLeadDTO(lead models.Lead) dto.LeadDTO {
	return dto.LeadDTO{
		ID:          lead.ID,
		PhoneNumber: lead.PhoneNumber,
		FirstName:   lead.FirstName,
		LastName:    lead.LastName,
		Email:       lead.Email,
		Source:      lead.Source,
		AssignedTo:  lead.AssignedTo,
		Status:      lead.Status,
		CreatedAt:   lead.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   lead.UpdatedAt.UTC().Format(time.RFC3339),
		CreatedBy:   lead.CreatedBy,
		UpdatedBy:   lead.UpdatedBy,
	}
}

func ToLeadSnapshotDTOs(snapshots []models.LeadSnapshot) []dto.LeadSnapshotDTO {
	out := make([]dto.LeadSnapshotDTO, 0, len(snapshots))
	for _, s := range snapshots {
		out = append(out, dto.LeadSnapshotDTO{ID: s.ID, PhoneNumber: s.PhoneNumber, Status: s.Status})
	}
	return out
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// pageWindow validates 1-based paging and returns the store offset. Zero values take the defaults.
func pageWindow(page, pageSize int) (int, int, int, error) {
	if page == 0 {
		page = 1
	}
	if page < 1 {
		return 0, 0, 0, newValidationError("page must be at least 1", ErrInvalidPage)
	}
	if pageSize == 0 {
		pageSize = defaultLeadPageSize
	}
	if pageSize < 1 || pageSize > maxLeadPageSize {
		return 0, 0, 0, newValidationError("page_size must be between 1 and 100", ErrInvalidPageSize)
	}
	if page-1 > math.MaxInt/pageSize {
		return 0, 0, 0, newValidationError("page is out of range", ErrInvalidPage)
	}
	return page, pageSize, (page - 1) * pageSize, nil
}
