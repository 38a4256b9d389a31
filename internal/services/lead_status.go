package services

import (
	"strings"

	"github.com/rajmehta89/call-agent-backend/internal/models"
)

// NextLeadStatus is where a lead at current lands after a call that reported d. The result
// never ranks below current.
func NextLeadStatus(current models.LeadStatus, d models.CallData) models.LeadStatus {
	if current == "" {
		current = models.LeadNew
	}
	next := current

	switch {
	case d.Status == models.CallInitiated:
		if current == models.LeadNew {
			next = models.LeadCalled
		}
	case d.Status == models.CallCompleted && d.Duration > 0:
		if current == models.LeadNew || current == models.LeadCalled {
			switch {
			case d.HasConversation(), d.Duration > 5:
				next = models.LeadContacted
			case current == models.LeadNew:
				next = models.LeadCalled
			}
		}
	}

	if a := d.InterestAnalysis; a != nil && a.Status == models.Interested && a.Confidence > 0.7 {
		if current == models.LeadCalled || current == models.LeadContacted {
			next = models.LeadConverted
		}
	}

	if next.Rank() < current.Rank() {
		return current
	}
	return next
}

// LeadStatusForEvent maps a telephony lifecycle event to the status it implies.
// ok is false for events that do not touch leads.
func LeadStatusForEvent(event string, duration float64) (models.LeadStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(event)) {
	case "answer", "answered":
		return models.LeadContacted, true
	case "hangup":
		if duration > 10 {
			return models.LeadContacted, true
		}
		return models.LeadCalled, true
	case "no-answer", "busy", "missed":
		return models.LeadCalled, true
	}
	return "", false
}

// RaiseOnly returns target if it ranks above current, else current.
func RaiseOnly(current, target models.LeadStatus) models.LeadStatus {
	if target.Rank() > current.Rank() {
		return target
	}
	if current == "" {
		return models.LeadNew
	}
	return current
}
