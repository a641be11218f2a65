// Package ranking scores rooms by recent, time-decayed activity.
package ranking

import (
	"math"
	"sort"
	"time"

	"github.com/npezzotti/nodechat/internal/database"
	"github.com/npezzotti/nodechat/internal/types"
)

const (
	DefaultWindowHours = 24
	DefaultLimit       = 5
	DefaultMinVisits   = 1

	MaxWindowHours = 720
	MaxLimit       = 100
)

// Score weights. Each saturating term is capped at 1 before weighting.
const (
	visitsWeight   = 0.5
	visitsCap      = 100.0
	usersWeight    = 0.8
	usersCap       = 20.0
	dwellWeight    = 0.3
	dwellCap       = 300.0
	recencyWeight  = 1.2
	recencyDecayHr = 12.0
	noveltyWeight  = 0.5
	noveltyDecayHr = 24.0
)

type Options struct {
	WindowHours int
	Limit       int
	MinVisits   int
}

func DefaultOptions() Options {
	return Options{
		WindowHours: DefaultWindowHours,
		Limit:       DefaultLimit,
		MinVisits:   DefaultMinVisits,
	}
}

// Normalize replaces every out of range field with its default.
func (o Options) Normalize() Options {
	if o.WindowHours <= 0 || o.WindowHours > MaxWindowHours {
		o.WindowHours = DefaultWindowHours
	}
	if o.Limit < 1 || o.Limit > MaxLimit {
		o.Limit = DefaultLimit
	}
	if o.MinVisits < 1 {
		o.MinVisits = DefaultMinVisits
	}
	return o
}

func (o Options) Since(now time.Time) time.Time {
	return now.Add(-time.Duration(o.WindowHours) * time.Hour)
}

func hoursSince(now, t time.Time) float64 {
	return max(now.Sub(t).Hours(), 0)
}

func avgDwell(a database.RoomActivity) float64 {
	if a.TotalVisits == 0 {
		return 0
	}
	return float64(a.TotalDwellSeconds) / float64(a.TotalVisits)
}

// Score computes the hotness of one activity row as of now.
func Score(a database.RoomActivity, now time.Time) float64 {
	return math.Min(float64(a.TotalVisits)/visitsCap, 1)*visitsWeight +
		math.Min(float64(a.UniqueUsers)/usersCap, 1)*usersWeight +
		math.Min(avgDwell(a)/dwellCap, 1)*dwellWeight +
		math.Exp(-hoursSince(now, a.LastActivity)/recencyDecayHr)*recencyWeight +
		math.Exp(-hoursSince(now, a.RoomCreatedAt)/noveltyDecayHr)*noveltyWeight
}

// Rank filters, scores and orders activity rows. It is a pure function of
// its inputs; ties keep the input order.
func Rank(activity []database.RoomActivity, opts Options, now time.Time) []types.HotRoom {
	opts = opts.Normalize()

	rooms := make([]types.HotRoom, 0, len(activity))
	for _, a := range activity {
		if a.TotalVisits < opts.MinVisits {
			continue
		}
		rooms = append(rooms, types.HotRoom{
			RoomKey:         a.RoomKey,
			TotalVisits:     a.TotalVisits,
			UniqueUserCount: a.UniqueUsers,
			AvgDwellSeconds: avgDwell(a),
			LastActivity:    a.LastActivity,
			CreatedAt:       a.RoomCreatedAt,
			Score:           Score(a, now),
		})
	}

	sort.SliceStable(rooms, func(i, j int) bool {
		return rooms[i].Score > rooms[j].Score
	})

	if len(rooms) > opts.Limit {
		rooms = rooms[:opts.Limit]
	}
	return rooms
}
