package config

import "time"

const (
	// Tracking ids
	TrackingPrefix       = "SEC"
	TrackingAlphabet     = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	TrackingSuffixLength = 5
	MaxTrackingAttempts  = 5

	// Complaint fields
	MaxTitleLength       = 200
	MaxCategoryLength    = 100
	MaxDescriptionLength = 5000
	MaxIdentityLength    = 320

	// Messages
	MaxMessageLength = 2000

	// Privileged listing
	IdentityLookupConcurrency = 8

	// Defaults for tunables that can be overridden through Load
	DefaultPublicCacheTTL  = 2 * time.Minute
	DefaultSubmitPerMinute = 10
	DefaultTokenTTL        = 12 * time.Hour
	DefaultShutdownTimeout = 10 * time.Second
)

// MessageSenders is the fixed set of participant roles in a complaint thread.
var MessageSenders = []string{"admin", "user", "super"}
