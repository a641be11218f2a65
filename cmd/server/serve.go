package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/npezzotti/nodechat/internal/api"
	"github.com/npezzotti/nodechat/internal/cache"
	"github.com/npezzotti/nodechat/internal/chat"
	"github.com/npezzotti/nodechat/internal/config"
	"github.com/npezzotti/nodechat/internal/database"
	"github.com/npezzotti/nodechat/internal/ranking"
	"github.com/npezzotti/nodechat/internal/server"
	"github.com/npezzotti/nodechat/internal/stats"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	migrateFirst, _ := cmd.Flags().GetBool("migrate")
	if migrateFirst && cfg.Store.Type == config.StorePostgres {
		if err := database.MigratePostgres(cfg.Store.DSN); err != nil {
			return err
		}
		logger.Info("migrations applied")
	}

	store, err := database.Open(cfg.Store.Type, cfg.Store.DSN)
	if err != nil {
		return fmt.Errorf("db open: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("db close", zap.Error(err))
		}
	}()
	logger.Info("store opened", zap.String("type", cfg.Store.Type))

	svc, err := chat.NewService(store, logger, chat.Options{
		HistoryLimit:     cfg.Chat.HistoryLimit,
		MaxDwellSeconds:  cfg.Chat.MaxDwellSeconds,
		MaxMessageLength: cfg.Chat.MaxMessageLength,
		RoomCacheSize:    cfg.Chat.RoomCacheSize,
	})
	if err != nil {
		return fmt.Errorf("chat service: %w", err)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	chatServer, err := server.NewChatServer(logger, svc, statsUpdater, server.Options{
		ReportErrors: cfg.Chat.ReportErrors,
	})
	if err != nil {
		return fmt.Errorf("new chat server: %w", err)
	}

	engine := ranking.NewEngine(store, logger, nil)
	leaderboard, err := ranking.NewLeaderboard(engine, logger, cfg.Ranking.RefreshSpec, statsUpdater)
	if err != nil {
		return fmt.Errorf("leaderboard: %w", err)
	}

	var hotCache cache.HotRoomsCache
	if cfg.Cache.RedisURL != "" {
		rc, err := cache.NewRedisCache(cfg.Cache.RedisURL, cfg.Cache.TTL)
		if err != nil {
			return fmt.Errorf("redis cache: %w", err)
		}
		defer rc.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = rc.Ping(pingCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		hotCache = rc
		logger.Info("hot rooms cache enabled", zap.Duration("ttl", cfg.Cache.TTL))
	}

	srv := api.NewNodeChatApp(mux, logger, chatServer, store, engine, hotCache, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go chatServer.Run()
	leaderboard.Start()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	var serveErr error
	select {
	case sig := <-sigs:
		logger.Info("received signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("server: %w", err)
		}
	}

	shutDownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Error("HTTP server shutdown", zap.Error(err))
	}

	logger.Info("shutting down chat server")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Error("chat server shutdown", zap.Error(err))
	}

	if err := leaderboard.Stop(shutDownCtx); err != nil {
		logger.Error("leaderboard shutdown", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return serveErr
}
