package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"recruitcrm/api/internal/search"
	"recruitcrm/api/internal/store"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the Meilisearch candidate index from PostgreSQL",
	RunE:  runReindex,
}

func init() {
	rootCmd.AddCommand(reindexCmd)
}

func runReindex(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if strings.TrimSpace(cfg.MeiliURL) == "" {
		return errors.New("MEILI_URL is not set")
	}
	ctx := cmd.Context()
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	meili := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
	defer meili.Close()
	if !meili.Healthy() {
		return errors.New("meilisearch is unreachable")
	}

	n, err := search.NewService(meili, search.NewPgFTS(db), log).ReindexAll(ctx)
	if err != nil {
		return fmt.Errorf("reindex: %w", err)
	}
	log.Info("reindex done", zap.Int("count", n))
	return nil
}
