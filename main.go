package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"storyforge/internal/api"
	"storyforge/internal/config"
	"storyforge/internal/logging"
	"storyforge/internal/redis"
	"storyforge/internal/service/ai"
	"storyforge/internal/service/media"
	"storyforge/internal/service/story"
	"storyforge/internal/storage"
)

const (
	defaultAddr     = ":5001"
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg := loadConfig()
	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

func loadConfig() *config.Config {
	cfgPath := os.Getenv("STORYFORGE_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err == nil {
		return cfg
	}
	if cfgPath == "" && errors.Is(err, os.ErrNotExist) {
		return config.Default()
	}
	logger := logging.Setup("", "")
	logger.Fatal().Err(err).Msg("load config")
	return nil
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbType := cfg.DatabaseType()
	logger.Info().Str("driver", dbType).Msg("opening database")
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := storage.Migrate(db, dbType); err != nil {
		return err
	}

	rdb, err := redis.NewRedisClient(ctx, cfg.Redis)
	switch {
	case errors.Is(err, redis.ErrDisabled):
		logger.Info().Msg("redis disabled, caching history in process only")
	case err != nil:
		logger.Warn().Err(err).Msg("redis unavailable, caching history in process only")
	default:
		defer rdb.Close()
	}
	cache := story.NewCache(rdb, uuid.NewString(), logger)
	if err := cache.Listen(ctx); err != nil {
		logger.Warn().Err(err).Msg("history invalidation subscription failed")
	}

	store := story.NewStore(db,
		story.WithHistoryLimit(cfg.BasicConfig.HistoryLimit),
		story.WithCache(cache),
	)
	handlers := api.NewHandler(
		ai.NewService(cfg, logger),
		media.NewService(cfg.Media, logger),
		store,
		logger,
	)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), api.CORS(), api.RequestLogger(logging.Component(logger, "http")))
	handlers.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              listenAddr(cfg),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", srv.Addr).Msg("StoryForge backend listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info().Msg("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func listenAddr(cfg *config.Config) string {
	if cfg.BasicConfig.ServerAddress != "" {
		return cfg.BasicConfig.ServerAddress
	}
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return defaultAddr
}
