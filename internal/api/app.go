package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/nodechat/internal/cache"
	"github.com/npezzotti/nodechat/internal/config"
	"github.com/npezzotti/nodechat/internal/database"
	"github.com/npezzotti/nodechat/internal/ranking"
	"github.com/npezzotti/nodechat/internal/server"
	"go.uber.org/zap"
)

type NodeChatApp struct {
	log            *zap.Logger
	store          database.Store
	srv            *http.Server
	cs             *server.ChatServer
	engine         *ranking.Engine
	hotCache       cache.HotRoomsCache
	allowedOrigins []string
}

// NewNodeChatApp mounts the HTTP routes on mux. hotCache may be nil to
// disable response caching.
func NewNodeChatApp(mux *http.ServeMux, logger *zap.Logger, cs *server.ChatServer, store database.Store, engine *ranking.Engine, hotCache cache.HotRoomsCache, cfg *config.Config) *NodeChatApp {
	s := &NodeChatApp{
		log:            logger,
		store:          store,
		cs:             cs,
		engine:         engine,
		hotCache:       hotCache,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /ws", s.serveWs)
	mux.HandleFunc("GET /api/hot-rooms", s.hotRooms)
	mux.HandleFunc("GET /healthz", s.healthz)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
	)(mux)

	h = s.errorHandler(h)

	s.srv = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

func (s *NodeChatApp) Start() error {
	s.log.Info("starting server", zap.String("addr", s.srv.Addr))
	return s.srv.ListenAndServe()
}

func (s *NodeChatApp) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
