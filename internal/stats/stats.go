package stats

import (
	"expvar"
	"net/http"
	"sync"
	"time"
)

const (
	NumActiveClients    = "NumActiveClients"
	NumActiveRooms      = "NumActiveRooms"
	MessagesSent        = "MessagesSent"
	TransitionsRecorded = "TransitionsRecorded"
	EventsDropped       = "EventsDropped"
	HotRooms            = "HotRooms"
)

type StatsProvider interface {
	Incr(name string)
	Decr(name string)
	RegisterMetric(name string)
	Publish(name string, f func() any)
	Run()
}

// StatsUpdater applies counter deltas on a single goroutine and serves every
// var as one JSON object. Updates sent after Stop are discarded.
type StatsUpdater struct {
	vars     *expvar.Map
	deltas   chan counterDelta
	done     chan struct{}
	stopOnce sync.Once
}

type counterDelta struct {
	name  string
	delta int64
}

// NewStatsUpdater creates a stats updater and mounts it on GET /debug/vars.
// The map is not published to the global expvar registry, so several
// updaters can coexist in one process.
func NewStatsUpdater(mux *http.ServeMux) *StatsUpdater {
	su := &StatsUpdater{
		vars:   new(expvar.Map).Init(),
		deltas: make(chan counterDelta, 512),
		done:   make(chan struct{}),
	}
	mux.Handle("GET /debug/vars", http.HandlerFunc(su.serveVars))

	started := time.Now()
	su.vars.Set("Uptime", expvar.Func(func() any {
		return time.Since(started).Milliseconds()
	}))

	return su
}

func (su *StatsUpdater) serveVars(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Write([]byte(su.vars.String()))
}

func (su *StatsUpdater) apply() {
	for {
		select {
		case d := <-su.deltas:
			su.vars.Add(d.name, d.delta)
		case <-su.done:
			return
		}
	}
}

func (su *StatsUpdater) add(name string, delta int64) {
	select {
	case su.deltas <- counterDelta{name: name, delta: delta}:
	case <-su.done:
	}
}

func (su *StatsUpdater) Incr(name string) {
	su.add(name, 1)
}

func (su *StatsUpdater) Decr(name string) {
	su.add(name, -1)
}

// RegisterMetric makes a counter visible at zero before its first update.
func (su *StatsUpdater) RegisterMetric(name string) {
	su.vars.Set(name, new(expvar.Int))
}

// Publish exposes the value returned by f, evaluated on every read. The name
// must not also be used as a counter.
func (su *StatsUpdater) Publish(name string, f func() any) {
	su.vars.Set(name, expvar.Func(f))
}

func (su *StatsUpdater) Run() {
	go su.apply()
}

func (su *StatsUpdater) Stop() {
	su.stopOnce.Do(func() { close(su.done) })
}
