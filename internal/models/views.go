package models

import (
	"time"

	"grievance/backend/internal/workflow"
)

// PublicView is what the anonymous tracking page gets. It has no identity
// keys at all, not even empty ones.
type PublicView struct {
	TrackingID  string          `json:"trackingId"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Status      workflow.Status `json:"status"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// AdminView is the staff listing row.
type AdminView struct {
	ID string `json:"id"`
	PublicView
	Version int `json:"version"`
}

// JoinedView is a complaint merged with its identity record. Identity keys
// are always present and null when unknown.
type JoinedView struct {
	AdminView
	Name  *string `json:"name"`
	Email *string `json:"email"`
	Phone *string `json:"phone"`
}

// NewJoinedView merges a complaint with its identity. A nil identity yields
// null contact fields.
func NewJoinedView(c *Complaint, identity *Identity) JoinedView {
	view := JoinedView{AdminView: c.AdminView()}
	if identity != nil {
		view.Name = identity.Name
		view.Email = identity.Email
		view.Phone = identity.Phone
	}
	return view
}

// Stats is the per-status breakdown shown on the admin dashboard.
type Stats struct {
	Total         int `json:"total"`
	Pending       int `json:"pending"`
	UnderReview   int `json:"underReview"`
	Investigation int `json:"investigation"`
	Resolved      int `json:"resolved"`
	Rejected      int `json:"rejected"`
}
