package ranking

import (
	"context"
	"fmt"
	"time"

	"github.com/npezzotti/nodechat/internal/database"
	"github.com/npezzotti/nodechat/internal/types"
	"go.uber.org/zap"
)

type Engine struct {
	store database.Store
	log   *zap.Logger
	now   func() time.Time
}

func NewEngine(store database.Store, log *zap.Logger, now func() time.Time) *Engine {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{store: store, log: log, now: now}
}

// HotRooms ranks rooms by activity inside the options' window.
func (e *Engine) HotRooms(ctx context.Context, opts Options) ([]types.HotRoom, error) {
	opts = opts.Normalize()
	now := e.now()

	activity, err := e.store.RoomActivitySince(ctx, opts.Since(now))
	if err != nil {
		return nil, fmt.Errorf("hot rooms: %w", err)
	}

	rooms := Rank(activity, opts, now)
	e.log.Debug("ranked rooms",
		zap.Int("candidates", len(activity)),
		zap.Int("returned", len(rooms)),
		zap.Int("window_hours", opts.WindowHours),
	)
	return rooms, nil
}
