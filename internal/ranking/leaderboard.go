package ranking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/npezzotti/nodechat/internal/stats"
	"github.com/npezzotti/nodechat/internal/types"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const refreshTimeout = 30 * time.Second

// Leaderboard periodically recomputes the default ranking and exposes the
// latest result through the stats provider.
type Leaderboard struct {
	engine *Engine
	log    *zap.Logger
	cron   *cron.Cron

	mu     sync.RWMutex
	latest []types.HotRoom
}

func NewLeaderboard(engine *Engine, log *zap.Logger, spec string, sp stats.StatsProvider) (*Leaderboard, error) {
	lb := &Leaderboard{
		engine: engine,
		log:    log,
		cron:   cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		latest: []types.HotRoom{},
	}

	_, err := lb.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()

		if err := lb.Refresh(ctx); err != nil {
			lb.log.Error("refresh leaderboard", zap.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule leaderboard %q: %w", spec, err)
	}

	sp.Publish(stats.HotRooms, func() any {
		return lb.Snapshot()
	})
	return lb, nil
}

func (lb *Leaderboard) Refresh(ctx context.Context) error {
	rooms, err := lb.engine.HotRooms(ctx, DefaultOptions())
	if err != nil {
		return err
	}

	lb.mu.Lock()
	lb.latest = rooms
	lb.mu.Unlock()
	return nil
}

// Snapshot returns the most recent ranking.
func (lb *Leaderboard) Snapshot() []types.HotRoom {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	out := make([]types.HotRoom, len(lb.latest))
	copy(out, lb.latest)
	return out
}

func (lb *Leaderboard) Start() {
	lb.cron.Start()
}

// Stop halts scheduling and waits for a running refresh to finish or ctx to
// expire.
func (lb *Leaderboard) Stop(ctx context.Context) error {
	done := lb.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
