package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// CallTurn is one spoken line of a call, appended to Postgres as the call happens.
type CallTurn struct {
	ID        string         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	SessionID string         `gorm:"column:session_id;type:text;index" json:"session_id"`
	Role      string         `gorm:"column:role;type:text" json:"role"` // user|bot|greeting|exit|system
	Content   string         `gorm:"column:content;type:text" json:"content"`
	Timestamp time.Time      `gorm:"column:timestamp;type:timestamptz;index" json:"timestamp"`
	Metadata  datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata"`
}

func (CallTurn) TableName() string { return "call_turns" }

// CallAnalysis is the post-call interest classification, one row per session.
type CallAnalysis struct {
	SessionID     string         `gorm:"column:session_id;type:text;primaryKey" json:"session_id"`
	PhoneNumber   string         `gorm:"column:phone_number;type:text;index" json:"phone_number"`
	Status        string         `gorm:"column:interest_status;type:text" json:"interest_status"`
	Confidence    float64        `gorm:"column:confidence" json:"confidence"`
	Reasoning     string         `gorm:"column:reasoning;type:text" json:"reasoning"`
	KeyIndicators pq.StringArray `gorm:"column:key_indicators;type:text[]" json:"key_indicators"`
	UpdatedAt     time.Time      `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
}

func (CallAnalysis) TableName() string { return "call_analyses" }
