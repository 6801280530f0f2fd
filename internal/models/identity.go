package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Identity is the private record holding the submitter's contact details.
// It is linked to its Complaint only by TrackingID value and is never
// serialized directly; the joined view copies what super admins may see.
type Identity struct {
	ID         string `gorm:"primaryKey" json:"-"`
	TrackingID string `gorm:"uniqueIndex;not null" json:"-"`
	// Absent values are NULL, never "".
	Name      *string   `gorm:"type:text" json:"-"`
	Email     *string   `gorm:"type:text" json:"-"`
	Phone     *string   `gorm:"type:text" json:"-"`
	CreatedAt time.Time `json:"-"`
}

// TableName keeps identities in their own table, away from complaints.
func (Identity) TableName() string {
	return "identity_map"
}

// BeforeCreate generates a UUID for the identity record if the ID is not set.
func (i *Identity) BeforeCreate(tx *gorm.DB) (err error) {
	if i.ID == "" {
		i.ID = uuid.New().String()
	}
	return
}
