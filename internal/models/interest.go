package models

type InterestStatus string

const (
	Interested    InterestStatus = "interested"
	NotInterested InterestStatus = "not_interested"
	Neutral       InterestStatus = "neutral"
)

func (s InterestStatus) Valid() bool {
	switch s {
	case Interested, NotInterested, Neutral:
		return true
	}
	return false
}

type InterestAnalysis struct {
	Status        InterestStatus `bson:"interest_status" json:"interest_status"`
	Confidence    float64        `bson:"confidence" json:"confidence"`
	Reasoning     string         `bson:"reasoning" json:"reasoning"`
	KeyIndicators []string       `bson:"key_indicators" json:"key_indicators"`
}
