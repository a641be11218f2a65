package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/npezzotti/nodechat/internal/database"
	"github.com/npezzotti/nodechat/internal/types"
	"go.uber.org/zap"
)

type RecordParams struct {
	UserId          uuid.UUID
	FromKey         string
	ToKey           string
	Type            types.TransitionType
	DurationSeconds int
}

// TransitionLog appends one immutable row per room move.
type TransitionLog struct {
	store    database.Store
	rooms    *RoomDirectory
	log      *zap.Logger
	now      func() time.Time
	maxDwell int
}

func NewTransitionLog(store database.Store, rooms *RoomDirectory, log *zap.Logger, opts Options) *TransitionLog {
	opts = opts.withDefaults()
	return &TransitionLog{
		store:    store,
		rooms:    rooms,
		log:      log,
		now:      opts.Now,
		maxDwell: opts.MaxDwellSeconds,
	}
}

func (l *TransitionLog) clampDwell(seconds int) int {
	return min(max(seconds, 0), l.maxDwell)
}

func transitionType(t types.TransitionType, hasSource bool) (types.TransitionType, error) {
	if t == "" {
		if hasSource {
			return types.TransitionGoCommand, nil
		}
		return types.TransitionInitial, nil
	}
	if !t.Valid() {
		return "", invalidf("unknown transition type %q", t)
	}
	return t, nil
}

// Record resolves the source room without counting a visit, resolves the
// destination counting one, then appends the transition. The steps are not
// atomic together: if the append fails the destination visit stays counted.
func (l *TransitionLog) Record(ctx context.Context, params RecordParams) (database.Transition, error) {
	if params.UserId == uuid.Nil {
		return database.Transition{}, invalidf("missing user id")
	}
	toKey := NormalizeKey(params.ToKey)
	if toKey == "" {
		return database.Transition{}, invalidf("missing destination room")
	}
	fromKey := NormalizeKey(params.FromKey)

	typ, err := transitionType(params.Type, fromKey != "")
	if err != nil {
		return database.Transition{}, err
	}

	creator := uuid.NullUUID{UUID: params.UserId, Valid: true}

	var from uuid.NullUUID
	if fromKey != "" {
		src, err := l.rooms.Resolve(ctx, fromKey, ResolveOptions{CreatorId: creator})
		if err != nil {
			return database.Transition{}, err
		}
		from = uuid.NullUUID{UUID: src.Id, Valid: true}
	}

	dst, err := l.rooms.Resolve(ctx, toKey, ResolveOptions{IsDestination: true, CreatorId: creator})
	if err != nil {
		return database.Transition{}, err
	}

	t, err := l.store.CreateTransition(ctx, database.CreateTransitionParams{
		UserId:          params.UserId,
		FromRoomId:      from,
		ToRoomId:        dst.Id,
		Type:            typ,
		DurationSeconds: l.clampDwell(params.DurationSeconds),
		CreatedAt:       l.now(),
	})
	if err != nil {
		l.log.Warn("visit counted without transition",
			zap.String("room_key", dst.Key),
			zap.String("user_id", params.UserId.String()),
			zap.Error(err),
		)
		return database.Transition{}, fmt.Errorf("record transition: %w", err)
	}

	return t, nil
}
