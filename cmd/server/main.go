package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	httpapi "github.com/negotiation-hub/negotiation-hub/internal/api/http"
	"github.com/negotiation-hub/negotiation-hub/internal/application/auth"
	"github.com/negotiation-hub/negotiation-hub/internal/application/negotiation"
	"github.com/negotiation-hub/negotiation-hub/internal/config"
	domain "github.com/negotiation-hub/negotiation-hub/internal/domain/negotiation"
	"github.com/negotiation-hub/negotiation-hub/internal/infrastructure/catalog"
	"github.com/negotiation-hub/negotiation-hub/internal/infrastructure/keystore"
	"github.com/negotiation-hub/negotiation-hub/internal/infrastructure/memory"
	"github.com/negotiation-hub/negotiation-hub/internal/infrastructure/postgres"
	"github.com/negotiation-hub/negotiation-hub/internal/infrastructure/sse"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var repo domain.Repository
	switch cfg.StoreDriver {
	case "memory":
		logger.Warn().Msg("using in-memory store; data is lost on restart")
		repo = memory.NewNegotiationRepository()
	default:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
		if err != nil {
			log.Fatalf("db error: %v", err)
		}
		defer pool.Close()
		if err := postgres.RunMigrations(ctx, pool, cfg.MigrationsDir); err != nil {
			log.Fatalf("migration error: %v", err)
		}
		repo = postgres.NewNegotiationRepository(pool)
	}

	sseHub := sse.NewHub()
	opts := negotiation.Options{
		LockTTLSeconds:     cfg.LockTTLSeconds(),
		ForceReleasePolicy: domain.ForceReleasePolicy(cfg.ForceReleasePolicy),
		DuplicatePolicy:    negotiation.DuplicatePolicy(cfg.DuplicatePolicy),
		Publisher:          sse.NewNegotiationPublisher(sseHub, nil, logger),
	}
	if cfg.CatalogURL != "" {
		opts.Catalog = catalog.NewClient(cfg.CatalogURL, cfg.CatalogTimeout, cfg.CatalogCacheSize, cfg.CatalogCacheTTL)
	}
	negotiationSvc := negotiation.NewService(repo, opts, logger)
	var keys auth.KeyResolver
	switch {
	case cfg.JWTKeys != "":
		ks, err := keystore.Parse(cfg.JWTKeys, cfg.JWTDefaultKeyID)
		if err != nil {
			log.Fatalf("JWT_KEYS error: %v", err)
		}
		keys = ks
	case cfg.JWTSecret != "":
		keys = keystore.NewSingle(cfg.JWTSecret)
	}
	authSvc := auth.NewService(keys, logger)

	var limiter *httpapi.RateLimiter
	if cfg.RateLimitRPS > 0 {
		limiter = httpapi.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	server := httpapi.NewServer(negotiationSvc, authSvc, sseHub, httpapi.Options{
		TrustedHeader: cfg.TrustedHeaderAuth,
		Limiter:       limiter,
	}, logger)

	httpServer := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", cfg.ServerAddr).Str("store", cfg.StoreDriver).Msg("server starting")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// expired lease sweeper; reads never depend on it
	g.Go(func() error {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if _, err := negotiationSvc.ProcessExpiredLocks(gctx, cfg.SweepBatch); err != nil && gctx.Err() == nil {
					logger.Error().Err(err).Msg("lock sweep failed")
				}
			}
		}
	})

	if limiter != nil {
		g.Go(func() error { return limiter.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		sseHub.Stop()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(ctxShutdown)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("server stopped")
}
