package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type LeadStatus string

const (
	LeadNew       LeadStatus = "new"
	LeadCalled    LeadStatus = "called"
	LeadContacted LeadStatus = "contacted"
	LeadConverted LeadStatus = "converted"
)

// Rank orders lead statuses on the ladder new < called < contacted < converted.
// Unknown values rank as new.
func (s LeadStatus) Rank() int {
	switch s {
	case LeadCalled:
		return 1
	case LeadContacted:
		return 2
	case LeadConverted:
		return 3
	default:
		return 0
	}
}

type Lead struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name         string             `bson:"name" json:"name"`
	Phone        string             `bson:"phone" json:"phone"`
	Email        string             `bson:"email,omitempty" json:"email,omitempty"`
	Status       LeadStatus         `bson:"status" json:"status"`
	StatusReason string             `bson:"status_reason,omitempty" json:"status_reason,omitempty"`

	LastCall  *time.Time `bson:"last_call,omitempty" json:"last_call,omitempty"`
	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time  `bson:"updated_at" json:"updated_at"`
}
