package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message is one entry in a complaint thread. Created once, never edited.
type Message struct {
	ID string `gorm:"primaryKey" json:"id"`
	// ComplaintID holds the tracking id of the complaint, not its internal ID.
	ComplaintID string `gorm:"not null;index:idx_thread" json:"complaintId"`
	// Sender is one of config.MessageSenders.
	Sender    string    `gorm:"type:text;not null" json:"sender"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	Timestamp time.Time `gorm:"not null;index:idx_thread" json:"timestamp"`
}

// BeforeCreate generates a UUID for the message if the ID is not set.
func (m *Message) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return
}
