package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/npezzotti/nodechat/internal/database"
	"go.uber.org/zap"
)

type MessageStore struct {
	store        database.Store
	rooms        *RoomDirectory
	log          *zap.Logger
	now          func() time.Time
	historyLimit int
	maxLength    int
}

func NewMessageStore(store database.Store, rooms *RoomDirectory, log *zap.Logger, opts Options) *MessageStore {
	opts = opts.withDefaults()
	return &MessageStore{
		store:        store,
		rooms:        rooms,
		log:          log,
		now:          opts.Now,
		historyLimit: opts.HistoryLimit,
		maxLength:    opts.MaxMessageLength,
	}
}

// Post appends text to an existing room and bumps its counters. Rooms are
// never created here.
func (s *MessageStore) Post(ctx context.Context, userId uuid.UUID, roomKey, text string) (database.Message, error) {
	if userId == uuid.Nil {
		return database.Message{}, invalidf("missing user id")
	}
	if strings.TrimSpace(text) == "" {
		return database.Message{}, invalidf("empty message")
	}
	if n := utf8.RuneCountInString(text); n > s.maxLength {
		return database.Message{}, invalidf("message too long (%d > %d)", n, s.maxLength)
	}

	roomId, err := s.rooms.RoomID(ctx, roomKey)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return database.Message{}, invalidf("room %q does not exist", NormalizeKey(roomKey))
		}
		return database.Message{}, err
	}

	now := s.now()
	msg, err := s.store.CreateMessage(ctx, database.CreateMessageParams{
		RoomId:    roomId,
		UserId:    userId,
		Content:   text,
		CreatedAt: now,
	})
	if err != nil {
		return database.Message{}, fmt.Errorf("post message: %w", err)
	}

	if err := s.store.IncrementMessageCount(ctx, roomId, now); err != nil {
		s.log.Warn("message stored without counter update",
			zap.String("room_id", roomId.String()),
			zap.Int64("message_id", msg.Id),
			zap.Error(err),
		)
	}

	return msg, nil
}

// History returns the oldest messages of a room in ascending order. A
// non-positive limit uses the configured default.
func (s *MessageStore) History(ctx context.Context, roomId uuid.UUID, limit int) ([]database.Message, error) {
	if limit <= 0 {
		limit = s.historyLimit
	}
	msgs, err := s.store.ListMessages(ctx, roomId, limit)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return msgs, nil
}
