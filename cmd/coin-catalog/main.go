// Command coin-catalog serves the coin catalog and the favorites of one
// device as JSON over HTTP.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/coin-catalog/pkg/aggregator"
	"github.com/Sternrassler/coin-catalog/pkg/catalog"
	"github.com/Sternrassler/coin-catalog/pkg/client"
	"github.com/Sternrassler/coin-catalog/pkg/config"
	"github.com/Sternrassler/coin-catalog/pkg/favorites"
	"github.com/Sternrassler/coin-catalog/pkg/kv"
	"github.com/Sternrassler/coin-catalog/pkg/logging"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Setup(cfg.LoggingConfig())
	logger := logging.NewLogger("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var redisClient *redis.Client
	if opts := cfg.RedisOptions(); opts != nil {
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Str("addr", opts.Addr).Msg("Failed to connect to Redis")
		}
		logger.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
	}

	gateway, err := client.New(cfg.ClientConfig(redisClient))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create coin API client")
	}
	defer gateway.Close()

	db, err := kv.OpenBolt(cfg.Favorites.Path)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Favorites.Path).Msg("Failed to open favorites")
	}
	defer db.Close()

	favs, err := favorites.New(db, favorites.WithKey(cfg.Favorites.Key))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create favorites store")
	}

	cat, err := catalog.New(gateway, cfg.CatalogConfig())
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create catalog")
	}
	sortBy, _ := catalog.ParseSort(cfg.Catalog.Sort)
	if err := cat.SetSort(sortBy); err != nil {
		logger.Fatal().Err(err).Msg("Failed to apply sort")
	}

	agg, err := aggregator.New(favs, gateway, cfg.AggregatorConfig())
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create favorites aggregator")
	}
	go func() {
		if err := agg.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("Favorites aggregator stopped")
		}
	}()

	addr := ":" + getEnv("PORT", "8080")
	srv := &http.Server{
		Addr:              addr,
		Handler:           newServer(gateway, cat, favs, agg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Shutdown failed")
		}
	}()

	logger.Info().Str("addr", addr).Str("base_url", cfg.API.BaseURL).Msg("Starting coin catalog server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("Server failed")
	}
	logger.Info().Msg("Server stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
