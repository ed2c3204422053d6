package testing

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/amirphl/lead-lifecycle/models"
	"github.com/amirphl/lead-lifecycle/utils"
)

var phoneSeq atomic.Int64

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// UniquePhoneNumber returns a phone number not used by earlier fixtures in this process
func UniquePhoneNumber() string {
	return fmt.Sprintf("+1555%07d", phoneSeq.Add(1))
}

// CreateTestLead inserts a lead with the given status whose updated_at is exactly updatedAt
func (tf *TestFixtures) CreateTestLead(status string, updatedAt time.Time) (*models.Lead, error) {
	lead := &models.Lead{
		PhoneNumber: UniquePhoneNumber(),
		FirstName:   utils.ToPtr("Test"),
		LastName:    utils.ToPtr("Lead"),
		Source:      utils.ToPtr("fixture"),
		Status:      status,
		CreatedAt:   updatedAt,
		UpdatedAt:   updatedAt,
		CreatedBy:   "fixture",
		UpdatedBy:   "fixture",
	}
	if err := tf.DB.DB.Create(lead).Error; err != nil {
		return nil, fmt.Errorf("failed to create test lead: %w", err)
	}
	return lead, nil
}

// CreateAgedLead inserts a lead idle for age before now
func (tf *TestFixtures) CreateAgedLead(status string, now time.Time, age time.Duration) (*models.Lead, error) {
	return tf.CreateTestLead(status, now.Add(-age))
}

// CreateTestAuditLog inserts an audit entry for action
func (tf *TestFixtures) CreateTestAuditLog(actorID, action string, success bool) (*models.AuditLog, error) {
	entry := &models.AuditLog{
		ActorID:     utils.ToPtr(actorID),
		Action:      action,
		Description: utils.ToPtr("fixture entry"),
		Success:     utils.ToPtr(success),
	}
	if !success {
		entry.ErrorMessage = utils.ToPtr("fixture failure")
	}
	if err := tf.DB.DB.Create(entry).Error; err != nil {
		return nil, fmt.Errorf("failed to create test audit log: %w", err)
	}
	return entry, nil
}

// LeadExists reports whether the row with id is still present
func (tf *TestFixtures) LeadExists(id uint) (bool, error) {
	var count int64
	if err := tf.DB.DB.Model(&models.Lead{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ReloadLead reads the lead straight from the table
func (tf *TestFixtures) ReloadLead(id uint) (*models.Lead, error) {
	var lead models.Lead
	if err := tf.DB.DB.First(&lead, id).Error; err != nil {
		return nil, err
	}
	return &lead, nil
}
