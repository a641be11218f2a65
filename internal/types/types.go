package types

import (
	"time"

	"github.com/google/uuid"
)

// Attribution is optional campaign metadata a client reports at session
// setup. Empty fields mean "not reported".
type Attribution struct {
	Source   string `json:"source,omitempty"`
	Medium   string `json:"medium,omitempty"`
	Campaign string `json:"campaign,omitempty"`
	Content  string `json:"content,omitempty"`
	Term     string `json:"term,omitempty"`
}

type TransitionType string

const (
	TransitionInitial        TransitionType = "INITIAL"
	TransitionGoCommand      TransitionType = "GO_COMMAND"
	TransitionRecommendation TransitionType = "RECOMMENDATION"
	TransitionHotRoom        TransitionType = "HOT_ROOM"
)

func (t TransitionType) Valid() bool {
	switch t {
	case TransitionInitial, TransitionGoCommand, TransitionRecommendation, TransitionHotRoom:
		return true
	}
	return false
}

type Message struct {
	Text           string    `json:"text"`
	SenderId       uuid.UUID `json:"senderId"`
	SenderNickname string    `json:"senderNickname"`
	CreatedAt      time.Time `json:"createdAt"`
}

// HotRoom is one ranked entry of the hot rooms query.
type HotRoom struct {
	RoomKey         string    `json:"roomKey"`
	TotalVisits     int       `json:"totalVisits"`
	UniqueUserCount int       `json:"uniqueUserCount"`
	AvgDwellSeconds float64   `json:"avgDwellSeconds"`
	LastActivity    time.Time `json:"lastActivity"`
	CreatedAt       time.Time `json:"createdAt"`
	Score           float64   `json:"score"`
}
