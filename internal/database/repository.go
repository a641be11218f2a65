package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("not found")
	ErrClosed   = errors.New("store closed")
)

// Store is the shared persistence used by every chat component. Each method
// is a single atomic step; callers never get a transaction spanning two
// methods. UpsertUser and UpsertRoom must be safe under concurrent calls for
// the same unique key.
type Store interface {
	Ping(ctx context.Context) error
	UpsertUser(ctx context.Context, params UpsertUserParams) (User, error)
	UpsertRoom(ctx context.Context, params UpsertRoomParams) (Room, error)
	GetRoomByKey(ctx context.Context, key string) (Room, error)
	CreateTransition(ctx context.Context, params CreateTransitionParams) (Transition, error)
	CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error)
	IncrementMessageCount(ctx context.Context, roomId uuid.UUID, at time.Time) error
	ListMessages(ctx context.Context, roomId uuid.UUID, limit int) ([]Message, error)
	RandomRoomKey(ctx context.Context, excludeKey string) (string, error)
	RoomActivitySince(ctx context.Context, since time.Time) ([]RoomActivity, error)
	Close() error
}
