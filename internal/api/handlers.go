package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"slices"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/nodechat/internal/cache"
	"github.com/npezzotti/nodechat/internal/ranking"
	"github.com/npezzotti/nodechat/internal/server"
	"go.uber.org/zap"
)

func (s *NodeChatApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("json encode", zap.Error(err))
	}
}

// intParam returns 0 for a missing or malformed value, which Normalize then
// replaces with the default.
func intParam(q url.Values, name string) int {
	n, err := strconv.Atoi(q.Get(name))
	if err != nil {
		return 0
	}
	return n
}

func (s *NodeChatApp) hotRooms(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := ranking.Options{
		WindowHours: intParam(q, "windowHours"),
		Limit:       intParam(q, "limit"),
		MinVisits:   intParam(q, "minVisits"),
	}.Normalize()

	key := cache.Key(opts.WindowHours, opts.Limit, opts.MinVisits)
	if s.hotCache != nil {
		rooms, ok, err := s.hotCache.Get(r.Context(), key)
		if err != nil {
			s.log.Warn("hot rooms cache read", zap.Error(err))
		} else if ok {
			s.writeJson(w, http.StatusOK, rooms)
			return
		}
	}

	rooms, err := s.engine.HotRooms(r.Context(), opts)
	if err != nil {
		s.log.Error("hot rooms", zap.Error(err))
		s.writeError(w, NewInternalServerError(err))
		return
	}

	if s.hotCache != nil {
		if err := s.hotCache.Set(r.Context(), key, rooms); err != nil {
			s.log.Warn("hot rooms cache write", zap.Error(err))
		}
	}

	s.writeJson(w, http.StatusOK, rooms)
}

func (s *NodeChatApp) healthz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.log.Error("health check", zap.Error(err))
		s.writeError(w, NewInternalServerError(err))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("OK"))
}

func (s *NodeChatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(s.allowedOrigins) == 0 {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("error upgrading connection", zap.Error(err))
		return
	}

	client := server.NewClient(conn, s.cs, s.log)
	if !s.cs.Register(client) {
		conn.Close()
		return
	}
	go client.Write()
	go client.Read()
}
