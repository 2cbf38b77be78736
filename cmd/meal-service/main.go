package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"

	"github.com/nitesh/meal_service/internal/api"
	"github.com/nitesh/meal_service/internal/cache"
	"github.com/nitesh/meal_service/internal/config"
	"github.com/nitesh/meal_service/internal/discovery"
	"github.com/nitesh/meal_service/internal/logging"
	"github.com/nitesh/meal_service/internal/service"
	"github.com/nitesh/meal_service/internal/store"
)

// backend is what both store implementations offer.
type backend interface {
	service.ListingStore
	cache.UserStore
	api.Pinger
}

func openPostgres(cfg config.DBConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, err
	}
	// simple ping + wait (db might be starting in docker)
	for i := 0; i < cfg.PingAttempts; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		logging.Warn().Err(err).Int("attempt", i+1).Msg("waiting for db")
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func openBackend(cfg config.DBConfig) (backend, func(), error) {
	if cfg.Driver == config.DriverMemory {
		logging.Warn().Msg("using in-memory store, data is lost on exit")
		return store.NewMemStore(), func() {}, nil
	}
	db, err := openPostgres(cfg)
	if err != nil {
		return nil, nil, err
	}
	// ensure tables exist (run migrations)
	if err := store.RunMigrations(db); err != nil {
		db.Close()
		return nil, nil, err
	}
	return store.NewPgStore(db), func() { db.Close() }, nil
}

func sellerCache(cfg config.RedisConfig, users cache.UserStore) *cache.Sellers {
	if !cfg.Enabled {
		return cache.NewSellers(users, nil, 0)
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logging.Warn().Err(err).Str("addr", cfg.Addr).Msg("redis ping failed, seller lookups fall through to the store")
	}
	return cache.NewSellers(users, rdb, cfg.SellerTTL)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("config")
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	repo, closeRepo, err := openBackend(cfg.DB)
	if err != nil {
		logging.Fatal().Err(err).Str("driver", cfg.DB.Driver).Msg("could not open store")
	}
	defer closeRepo()

	users := sellerCache(cfg.Redis, repo)
	svc := service.NewService(repo, users, discovery.Options{
		DefaultLimit:    cfg.Discovery.DefaultLimit,
		MaxLimit:        cfg.Discovery.MaxLimit,
		OverfetchFactor: cfg.Discovery.OverfetchFactor,
		SellerWorkers:   cfg.Discovery.SellerWorkers,
	})
	handler := api.NewHandler(svc, repo, cfg.Server.RequestTimeout)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	api.RegisterRoutes(router, handler)

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.Server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", api.HeaderUserID, api.HeaderRequestID},
		ExposedHeaders: []string{api.HeaderRequestID},
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           c.Handler(router),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logging.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logging.Error().Err(err).Msg("shutdown")
	}
	logging.Info().Msg("stopped")
}
