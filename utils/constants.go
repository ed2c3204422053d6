package utils

import (
	"time"
)

// Request-scoped context keys shared by handlers and flows
type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	UserAgentKey contextKey = "user_agent"
	IPAddressKey contextKey = "ip_address"
	EndpointKey  contextKey = "endpoint"
	TimeoutKey   contextKey = "timeout"
)

// Token and request time constants
const (
	// AccessTokenTTL is the time-to-live for actor access tokens (24 hours)
	AccessTokenTTL = 24 * time.Hour

	// DefaultRequestTimeout bounds every handler-initiated flow call
	DefaultRequestTimeout = 30 * time.Second

	// Day is the unit thresholds are expressed in
	Day = 24 * time.Hour
)

// CORS and security constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)

// Lead maintenance constants
const (
	// DefaultEscalationThresholdDays applies when neither request nor config supplies a threshold
	DefaultEscalationThresholdDays = 14

	// DefaultPurgeThresholdDays applies when neither request nor config supplies a threshold
	DefaultPurgeThresholdDays = 90

	// DefaultSystemActorID is recorded as updated_by when a job mutates a lead
	DefaultSystemActorID = "system"

	// MaxExportRows caps a single XLSX export
	MaxExportRows = 10000
)
