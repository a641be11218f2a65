package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/npezzotti/nodechat/internal/types"
)

type User struct {
	Id          uuid.UUID
	LocalToken  string
	Nickname    string
	Attribution types.Attribution
	CreatedAt   time.Time
	LastSeenAt  time.Time
}

type Room struct {
	Id             uuid.UUID
	Key            string
	CreatorId      uuid.NullUUID
	MessageCount   int
	VisitCount     int
	CreatedAt      time.Time
	LastActivityAt time.Time
}

type Transition struct {
	Id              uuid.UUID
	UserId          uuid.UUID
	FromRoomId      uuid.NullUUID
	ToRoomId        uuid.UUID
	Type            types.TransitionType
	DurationSeconds int
	CreatedAt       time.Time
}

// Message carries the sender's current nickname when read back through
// ListMessages.
type Message struct {
	Id             int64
	RoomId         uuid.UUID
	UserId         uuid.UUID
	SenderNickname string
	Content        string
	CreatedAt      time.Time
}

// RoomActivity aggregates the transitions into one destination room.
type RoomActivity struct {
	RoomId            uuid.UUID
	RoomKey           string
	RoomCreatedAt     time.Time
	TotalVisits       int
	UniqueUsers       int
	TotalDwellSeconds int
	LastActivity      time.Time
}

type UpsertUserParams struct {
	LocalToken  string
	Nickname    string
	Attribution types.Attribution
	SeenAt      time.Time
}

type UpsertRoomParams struct {
	Key           string
	IsDestination bool
	CreatorId     uuid.NullUUID
	At            time.Time
}

type CreateTransitionParams struct {
	UserId          uuid.UUID
	FromRoomId      uuid.NullUUID
	ToRoomId        uuid.UUID
	Type            types.TransitionType
	DurationSeconds int
	CreatedAt       time.Time
}

type CreateMessageParams struct {
	RoomId    uuid.UUID
	UserId    uuid.UUID
	Content   string
	CreatedAt time.Time
}
