package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"recruitcrm/api/internal/ai"
	"recruitcrm/api/internal/app"
	"recruitcrm/api/internal/authpw"
	"recruitcrm/api/internal/config"
	"recruitcrm/api/internal/cvtext"
	"recruitcrm/api/internal/email"
	"recruitcrm/api/internal/export"
	"recruitcrm/api/internal/idle"
	"recruitcrm/api/internal/notify"
	"recruitcrm/api/internal/search"
	"recruitcrm/api/internal/session"
	"recruitcrm/api/internal/storage"
	"recruitcrm/api/internal/store"
)

var skipMigrations bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply pending migrations on start")
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	if !skipMigrations {
		applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
		if err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		if len(applied) > 0 {
			log.Info("migrations applied", zap.Strings("versions", applied))
		}
	}

	dataStore := store.NewPostgresStore(db)
	deps := app.Deps{
		Store:     dataStore,
		Text:      cvtext.New(),
		Passwords: authpw.NewService(dataStore, log),
		Export:    export.NewService(log),
		Logger:    log,
		Email: email.NewService(email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		}),
	}

	var redisClient *redis.Client
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisClient, err = session.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()
		deps.Sessions = session.NewRedisStoreWithClient(redisClient)
		deps.Idle = idle.NewRedisTracker(redisClient, cfg.IdleTimeout)
		log.Info("using redis for sessions and live notifications")
	} else {
		deps.Idle = idle.NewMemoryTracker(cfg.IdleTimeout)
		log.Info("redis not configured; sessions in postgres, live notifications off")
	}
	deps.Notify = notify.NewHub(dataStore, redisClient, log)

	var meili *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
		defer meili.Close()
	}
	searchService := search.NewService(meili, search.NewPgFTS(db), log)
	deps.Search = searchService
	if meili != nil {
		go func() {
			n, err := searchService.ReindexAll(ctx)
			if err != nil {
				log.Error("startup reindex", zap.Error(err))
				return
			}
			log.Info("startup reindex done", zap.Int("count", n))
		}()
	}

	if bucket := openBucket(ctx, cfg, log); bucket != nil {
		deps.Bucket = bucket
	}

	aiClient, err := ai.New(ctx, ai.Config{
		APIKey:    cfg.GeminiAPIKey,
		Model:     cfg.GeminiModel,
		RateLimit: cfg.AIRateLimit,
		Burst:     cfg.AIRateBurst,
	}, log)
	switch {
	case errors.Is(err, ai.ErrDisabled):
		log.Warn("GEMINI_API_KEY not set; AI features disabled")
	case err != nil:
		return fmt.Errorf("init ai client: %w", err)
	default:
		deps.AI = aiClient
	}

	service := app.New(cfg, deps)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, log)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Zero so notification streams are not cut off.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("api listening", zap.String("addr", cfg.Addr), zap.String("version", version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", zap.Error(err))
	}
	return nil
}

// openBucket returns nil when object storage is unusable; uploads then fail
// with STORAGE_UNAVAILABLE instead of blocking startup.
func openBucket(ctx context.Context, cfg config.Config, log *zap.Logger) *storage.Bucket {
	if cfg.StorageAccessKey == "" || cfg.StorageSecretKey == "" {
		log.Warn("storage credentials not set; CV uploads disabled")
		return nil
	}
	bucket, err := storage.New(storage.Config{
		Endpoint:  cfg.StorageEndpoint,
		AccessKey: cfg.StorageAccessKey,
		SecretKey: cfg.StorageSecretKey,
		Bucket:    cfg.StorageBucket,
		UseSSL:    cfg.StorageUseSSL,
		PublicURL: cfg.StoragePublicURL,
	})
	if err != nil {
		log.Warn("storage unavailable; CV uploads disabled", zap.Error(err))
		return nil
	}
	ensureCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := bucket.EnsureBucket(ensureCtx); err != nil {
		log.Warn("storage bucket check failed; CV uploads disabled", zap.Error(err))
		return nil
	}
	return bucket
}
