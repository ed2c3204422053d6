package businessflow

import (
	"crypto/subtle"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/amirphl/lead-lifecycle/utils"
)

// MaxThresholdDays bounds every threshold so the cutoff arithmetic cannot overflow
const MaxThresholdDays = 36500

// ThresholdPolicy resolves the age threshold in days for one maintenance operator
type ThresholdPolicy struct {
	defaultDays float64
}

// NewThresholdPolicy parses the configured default. An empty value uses fallback silently;
// a value that is not a finite number in [0, MaxThresholdDays] uses fallback and reports ok=false.
func NewThresholdPolicy(raw string, fallback float64) (policy ThresholdPolicy, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ThresholdPolicy{defaultDays: fallback}, true
	}
	days, err := strconv.ParseFloat(raw, 64)
	if err != nil || !isValidThreshold(days) {
		return ThresholdPolicy{defaultDays: fallback}, false
	}
	return ThresholdPolicy{defaultDays: days}, true
}

// Default returns the threshold used when a request supplies none
func (p ThresholdPolicy) Default() float64 {
	return p.defaultDays
}

// Resolve returns explicit when given and valid, else the configured default
func (p ThresholdPolicy) Resolve(explicit *float64) (float64, error) {
	if explicit == nil {
		return p.defaultDays, nil
	}
	if !isValidThreshold(*explicit) {
		return 0, newValidationError("days_threshold must be a non-negative number of days", ErrInvalidDaysThreshold)
	}
	return *explicit, nil
}

func isValidThreshold(days float64) bool {
	return !math.IsNaN(days) && !math.IsInf(days, 0) && days >= 0 && days <= MaxThresholdDays
}

// ResolveReferenceTime parses an optional ISO-8601 reference date; absent or blank means now
func ResolveReferenceTime(raw *string, now time.Time) (time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return now.UTC(), nil
	}
	t, err := utils.ParseISO8601(*raw)
	if err != nil {
		return time.Time{}, newValidationError("reference_date must be an ISO-8601 date or timestamp", ErrInvalidReferenceDate)
	}
	return t, nil
}

// Cutoff returns reference minus days; rows strictly older than it qualify
func Cutoff(reference time.Time, days float64) time.Time {
	return utils.DaysBefore(reference, days)
}

// APIKeyPolicy authorizes a maintenance trigger against a shared secret.
// With require unset a request without a key is accepted and only a supplied key is checked.
type APIKeyPolicy struct {
	secret  string
	hashed  bool
	require bool
}

func NewAPIKeyPolicy(secret string, require bool) APIKeyPolicy {
	secret = strings.TrimSpace(secret)
	return APIKeyPolicy{
		secret:  secret,
		hashed:  isBcryptHash(secret),
		require: require,
	}
}

// Required reports whether requests without a key are rejected
func (p APIKeyPolicy) Required() bool {
	return p.require
}

// Configured reports whether a secret is set
func (p APIKeyPolicy) Configured() bool {
	return p.secret != ""
}

// Authorize checks the supplied key, if any
func (p APIKeyPolicy) Authorize(supplied *string) error {
	if supplied == nil || *supplied == "" {
		if p.require {
			return newAuthError("API key is required", ErrAPIKeyMissing)
		}
		return nil
	}
	if p.secret == "" {
		return newAuthError("Invalid API key", ErrAPIKeyMismatch)
	}
	if !p.matches(*supplied) {
		return newAuthError("Invalid API key", ErrAPIKeyMismatch)
	}
	return nil
}

func (p APIKeyPolicy) matches(supplied string) bool {
	if p.hashed {
		return bcrypt.CompareHashAndPassword([]byte(p.secret), []byte(supplied)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(p.secret), []byte(supplied)) == 1
}

func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}
