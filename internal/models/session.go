package models

import "time"

// CallSnapshot is the read-only view of a live call session served by the status endpoints.
type CallSnapshot struct {
	SessionID          string    `json:"session_id"`
	PhoneNumber        string    `json:"phone_number"`
	LeadID             string    `json:"lead_id,omitempty"`
	Status             string    `json:"status"` // active|completed
	State              string    `json:"state"`
	StartTime          time.Time `json:"start_time"`
	Duration           float64   `json:"duration"`
	TranscriptionCount int       `json:"transcription_count"`
	ResponseCount      int       `json:"response_count"`
}
