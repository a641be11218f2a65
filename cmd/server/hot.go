package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/npezzotti/nodechat/internal/database"
	"github.com/npezzotti/nodechat/internal/ranking"
	"github.com/spf13/cobra"
)

func runHot(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	store, err := database.Open(cfg.Store.Type, cfg.Store.DSN)
	if err != nil {
		return fmt.Errorf("db open: %w", err)
	}
	defer store.Close()

	var opts ranking.Options
	opts.WindowHours, _ = cmd.Flags().GetInt("window-hours")
	opts.Limit, _ = cmd.Flags().GetInt("limit")
	opts.MinVisits, _ = cmd.Flags().GetInt("min-visits")

	rooms, err := ranking.NewEngine(store, logger, nil).HotRooms(context.Background(), opts)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(rooms)
}
