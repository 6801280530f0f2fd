package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"grievance/backend/internal/workflow"
)

// Complaint is the public record of a grievance.
// It never stores the submitter's name, email or phone; those live in Identity.
type Complaint struct {
	// ID is the store-assigned identifier (UUID). Internal only.
	ID string `gorm:"primaryKey" json:"id"`
	// TrackingID is the public handle, immutable once assigned.
	TrackingID string `gorm:"uniqueIndex;not null" json:"trackingId"`
	// Title, Description and Category are set at submission and never edited.
	Title       string `gorm:"type:text;not null" json:"title"`
	Description string `gorm:"type:text;not null" json:"description"`
	Category    string `gorm:"type:text;not null" json:"category"`
	// Status changes only through the workflow.
	Status workflow.Status `gorm:"type:text;not null;index" json:"status"`
	// Version increments on every status change; updates compare-and-swap on it.
	Version int `gorm:"not null" json:"version"`
	// CreatedAt is set once. UpdatedAt moves only on a successful status change.
	CreatedAt time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BeforeCreate generates a UUID for the complaint if the ID is not set.
func (c *Complaint) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return
}

// PublicView returns the fields an anonymous caller may see.
func (c *Complaint) PublicView() PublicView {
	return PublicView{
		TrackingID:  c.TrackingID,
		Title:       c.Title,
		Description: c.Description,
		Category:    c.Category,
		Status:      c.Status,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

// AdminView adds the internal reference and version for staff.
func (c *Complaint) AdminView() AdminView {
	return AdminView{
		ID:         c.ID,
		PublicView: c.PublicView(),
		Version:    c.Version,
	}
}
