// Package analysis derives dashboard figures from complaint records.
package analysis

import (
	"grievance/backend/internal/models"
	"grievance/backend/internal/workflow"
)

// Summarize counts complaints per status. Records with a status outside the
// workflow count toward Total only.
func Summarize(complaints []models.Complaint) models.Stats {
	stats := models.Stats{Total: len(complaints)}
	for _, c := range complaints {
		switch c.Status {
		case workflow.StatusPending:
			stats.Pending++
		case workflow.StatusUnderReview:
			stats.UnderReview++
		case workflow.StatusInvestigation:
			stats.Investigation++
		case workflow.StatusResolved:
			stats.Resolved++
		case workflow.StatusRejected:
			stats.Rejected++
		}
	}
	return stats
}
