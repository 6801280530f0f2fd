// Package workflow holds the complaint status policy.
// Everything here is pure: no storage, no clock, no logging.
package workflow

import "strings"

// Status is the wire value of a complaint status.
type Status string

const (
	StatusPending       Status = "Pending"
	StatusUnderReview   Status = "Under Review"
	StatusInvestigation Status = "Investigation"
	StatusResolved      Status = "Resolved"
	StatusRejected      Status = "Rejected"
)

// InitialStatus is the status every complaint is created in.
const InitialStatus = StatusPending

// statuses keeps the canonical order used in reasons and listings.
var statuses = []Status{
	StatusPending,
	StatusUnderReview,
	StatusInvestigation,
	StatusResolved,
	StatusRejected,
}

var transitions = map[Status][]Status{
	StatusPending:       {StatusUnderReview, StatusRejected},
	StatusUnderReview:   {StatusInvestigation, StatusResolved, StatusRejected},
	StatusInvestigation: {StatusResolved, StatusRejected},
	StatusResolved:      {},
	StatusRejected:      {},
}

// Statuses returns every recognised status in workflow order.
func Statuses() []Status {
	return append([]Status(nil), statuses...)
}

// IsValid reports whether s is one of the recognised statuses.
func IsValid(s Status) bool {
	_, ok := transitions[s]
	return ok
}

// AllowedFrom returns the statuses reachable from s in one step.
// Unknown and terminal statuses yield an empty slice.
func AllowedFrom(s Status) []Status {
	return append([]Status(nil), transitions[s]...)
}

// IsTerminal reports whether s is a recognised status with no way out.
func IsTerminal(s Status) bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

// Canonical maps lenient spellings ("UnderReview", "under_review",
// "under review") to the wire value. Input that matches nothing is returned
// trimmed but otherwise untouched.
func Canonical(raw string) Status {
	trimmed := strings.TrimSpace(raw)
	key := squash(trimmed)
	for _, s := range statuses {
		if squash(string(s)) == key {
			return s
		}
	}
	return Status(trimmed)
}

func squash(s string) string {
	r := strings.NewReplacer(" ", "", "_", "", "-", "")
	return strings.ToLower(r.Replace(s))
}

func join(list []Status, sep string) string {
	parts := make([]string, len(list))
	for i, s := range list {
		parts[i] = string(s)
	}
	return strings.Join(parts, sep)
}
