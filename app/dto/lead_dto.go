package dto

// CreateLeadRequest represents the payload to create a lead
type CreateLeadRequest struct {
	PhoneNumber string  `json:"phone_number" validate:"required,max=32"`
	FirstName   *string `json:"first_name,omitempty" validate:"omitempty,max=255"`
	LastName    *string `json:"last_name,omitempty" validate:"omitempty,max=255"`
	Email       *string `json:"email,omitempty" validate:"omitempty,email,max=255"`
	Source      *string `json:"source,omitempty" validate:"omitempty,max=100"`
	AssignedTo  *string `json:"assigned_to,omitempty" validate:"omitempty,max=100"`
	Status      *string `json:"status,omitempty" validate:"omitempty,max=32"`
}

// UpdateLeadStatusRequest represents the payload to change a lead's status
type UpdateLeadStatusRequest struct {
	Status string `json:"status" validate:"required,max=32"`
}

// ListLeadsRequest carries the query filters for listing and exporting leads
type ListLeadsRequest struct {
	Statuses      []string `json:"status,omitempty"`
	AssignedTo    *string  `json:"assigned_to,omitempty"`
	PhoneNumber   *string  `json:"phone_number,omitempty"`
	UpdatedBefore *string  `json:"updated_before,omitempty"`
	UpdatedAfter  *string  `json:"updated_after,omitempty"`
	Page          int      `json:"page"`
	PageSize      int      `json:"page_size"`
}

// LeadDTO is the API representation of a lead
type LeadDTO struct {
	ID          uint    `json:"id"`
	PhoneNumber string  `json:"phone_number"`
	FirstName   *string `json:"first_name,omitempty"`
	LastName    *string `json:"last_name,omitempty"`
	Email       *string `json:"email,omitempty"`
	Source      *string `json:"source,omitempty"`
	AssignedTo  *string `json:"assigned_to,omitempty"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
	CreatedBy   string  `json:"created_by"`
	UpdatedBy   string  `json:"updated_by"`
}

// ListLeadsResponse is a page of leads
type ListLeadsResponse struct {
	Items      []LeadDTO `json:"items"`
	Total      int64     `json:"total"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
	TotalPages int       `json:"total_pages"`
}
