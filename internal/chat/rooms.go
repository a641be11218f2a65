package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"github.com/npezzotti/nodechat/internal/database"
	"go.uber.org/zap"
)

type ResolveOptions struct {
	IsDestination bool
	CreatorId     uuid.NullUUID
}

// RoomDirectory resolves free-text keys to rooms. Key to id mappings never
// change once created, so they are cached.
type RoomDirectory struct {
	store database.Store
	log   *zap.Logger
	now   func() time.Time
	ids   *lru.ARCCache
}

func NewRoomDirectory(store database.Store, log *zap.Logger, opts Options) (*RoomDirectory, error) {
	opts = opts.withDefaults()
	ids, err := lru.NewARC(opts.RoomCacheSize)
	if err != nil {
		return nil, fmt.Errorf("room cache: %w", err)
	}
	return &RoomDirectory{
		store: store,
		log:   log,
		now:   opts.Now,
		ids:   ids,
	}, nil
}

// NormalizeKey trims surrounding whitespace from a room key.
func NormalizeKey(key string) string {
	return strings.TrimSpace(key)
}

// Resolve returns the room for key, creating it when absent. Only
// destinations count as a visit.
func (d *RoomDirectory) Resolve(ctx context.Context, key string, opts ResolveOptions) (database.Room, error) {
	key = NormalizeKey(key)
	if key == "" {
		return database.Room{}, invalidf("empty room key")
	}

	room, err := d.store.UpsertRoom(ctx, database.UpsertRoomParams{
		Key:           key,
		IsDestination: opts.IsDestination,
		CreatorId:     opts.CreatorId,
		At:            d.now(),
	})
	if err != nil {
		return database.Room{}, fmt.Errorf("resolve room %q: %w", key, err)
	}

	d.ids.Add(room.Key, room.Id)
	return room, nil
}

// RoomID looks up an existing room without creating it. It returns
// database.ErrNotFound for unknown keys.
func (d *RoomDirectory) RoomID(ctx context.Context, key string) (uuid.UUID, error) {
	key = NormalizeKey(key)
	if key == "" {
		return uuid.Nil, invalidf("empty room key")
	}

	if id, ok := d.ids.Get(key); ok {
		return id.(uuid.UUID), nil
	}

	room, err := d.store.GetRoomByKey(ctx, key)
	if err != nil {
		return uuid.Nil, err
	}

	d.ids.Add(room.Key, room.Id)
	return room.Id, nil
}

// Recommend picks a uniformly random room other than excludeKey. ok is false
// when no other room exists.
func (d *RoomDirectory) Recommend(ctx context.Context, excludeKey string) (key string, ok bool, err error) {
	key, err = d.store.RandomRoomKey(ctx, NormalizeKey(excludeKey))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("recommend room: %w", err)
	}
	return key, true, nil
}
