package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type CallStatus string

const (
	CallInitiated CallStatus = "initiated"
	CallCompleted CallStatus = "completed"
	CallFailed    CallStatus = "failed"
)

type CallDirection string

const (
	DirectionInbound  CallDirection = "inbound"
	DirectionOutbound CallDirection = "outbound"
)

// Speaker roles recorded in a call transcript.
const (
	RoleUser     = "user"
	RoleBot      = "bot"
	RoleGreeting = "greeting"
	RoleExit     = "exit"
	RoleSystem   = "system"
)

type TranscriptEntry struct {
	Type      string    `bson:"type" json:"type"` // user|bot|greeting|exit|system
	Content   string    `bson:"content" json:"content"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

type CallRecord struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CallSessionID string             `bson:"call_session_id,omitempty" json:"call_session_id,omitempty"`

	PhoneNumber string        `bson:"phone_number" json:"phone_number"`
	LeadID      string        `bson:"lead_id,omitempty" json:"lead_id,omitempty"`
	Direction   CallDirection `bson:"direction" json:"direction"`
	Status      CallStatus    `bson:"status" json:"status"`
	Duration    float64       `bson:"duration" json:"duration"` // seconds

	Transcription []TranscriptEntry `bson:"transcription" json:"transcription"`
	AIResponses   []TranscriptEntry `bson:"ai_responses" json:"ai_responses"`
	Summary       string            `bson:"call_summary" json:"call_summary"`
	Sentiment     string            `bson:"sentiment" json:"sentiment"`

	InterestAnalysis *InterestAnalysis `bson:"interest_analysis,omitempty" json:"interest_analysis,omitempty"`

	CallDate  time.Time `bson:"call_date" json:"call_date"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// CallData is what a finished (or initiated) call reports to the call log.
type CallData struct {
	CallSessionID    string
	Direction        CallDirection
	Status           CallStatus
	Duration         float64
	Transcription    []TranscriptEntry
	AIResponses      []TranscriptEntry
	Summary          string
	Sentiment        string
	InterestAnalysis *InterestAnalysis
}

func (d CallData) HasConversation() bool {
	return len(d.Transcription) > 0 || len(d.AIResponses) > 0
}

// CallReport is everything a finished session hands over for persistence.
type CallReport struct {
	SessionID   string            `json:"session_id"`
	PhoneNumber string            `json:"phone_number"`
	LeadID      string            `json:"lead_id,omitempty"`
	Direction   CallDirection     `json:"direction"`
	StartTime   time.Time         `json:"start_time"`
	EndTime     time.Time         `json:"end_time"`
	Transcript  []TranscriptEntry `json:"transcript"`
}

func (r CallReport) Duration() float64 {
	d := r.EndTime.Sub(r.StartTime).Seconds()
	if d < 0 {
		return 0
	}
	return d
}

// Split separates the caller's lines from everything the bot said. System entries go to neither.
func (r CallReport) Split() (user, bot []TranscriptEntry) {
	user, bot = []TranscriptEntry{}, []TranscriptEntry{}
	for _, e := range r.Transcript {
		switch e.Type {
		case RoleUser:
			user = append(user, e)
		case RoleBot, RoleGreeting, RoleExit:
			bot = append(bot, e)
		}
	}
	return user, bot
}
