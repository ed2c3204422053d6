package dto

// MaintenanceRunRequest is the body accepted by both lead maintenance endpoints
type MaintenanceRunRequest struct {
	APIKey        *string  `json:"api_key,omitempty" validate:"omitempty,max=512"`
	ReferenceDate *string  `json:"reference_date,omitempty" validate:"omitempty,max=64"`
	DaysThreshold *float64 `json:"days_threshold,omitempty" validate:"omitempty,gte=0,lte=36500"`
}

// LeadSnapshotDTO is the identity and status of one affected lead
type LeadSnapshotDTO struct {
	ID          uint   `json:"id"`
	PhoneNumber string `json:"phone_number"`
	Status      string `json:"status"`
}

// EscalateStaleLeadsResponse is returned by the stale lead escalation endpoint
type EscalateStaleLeadsResponse struct {
	Success       bool              `json:"success"`
	Message       string            `json:"message"`
	UpdatedCount  int               `json:"updated_count"`
	UpdatedLeads  []LeadSnapshotDTO `json:"updated_leads"`
	ReferenceDate string            `json:"reference_date"`
	DaysThreshold float64           `json:"days_threshold"`
	Cutoff        string            `json:"cutoff"`
}

// PurgeAgedLeadsResponse is returned by the aged lead purge endpoint
type PurgeAgedLeadsResponse struct {
	Success       bool              `json:"success"`
	Message       string            `json:"message"`
	DeletedCount  int               `json:"deleted_count"`
	DeletedLeads  []LeadSnapshotDTO `json:"deleted_leads"`
	ReferenceDate string            `json:"reference_date"`
	DaysThreshold float64           `json:"days_threshold"`
	Cutoff        string            `json:"cutoff"`
}

// MaintenanceRunSummary is the last-run record kept per operator
type MaintenanceRunSummary struct {
	RunID         string  `json:"run_id"`
	Operator      string  `json:"operator"`
	ReferenceDate string  `json:"reference_date"`
	DaysThreshold float64 `json:"days_threshold"`
	Cutoff        string  `json:"cutoff"`
	AffectedCount int     `json:"affected_count"`
	StartedAt     string  `json:"started_at"`
	FinishedAt    string  `json:"finished_at"`
	DurationMs    int64   `json:"duration_ms"`
}
