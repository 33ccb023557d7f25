// SPDX-License-Identifier: MIT

// Command daemon runs the collaborative playback session engine.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/jamcast/jamd/internal/api"
	"github.com/jamcast/jamd/internal/catalog"
	"github.com/jamcast/jamd/internal/config"
	"github.com/jamcast/jamd/internal/domain/session/dispatch"
	"github.com/jamcast/jamd/internal/domain/session/manager"
	"github.com/jamcast/jamd/internal/domain/session/store"
	"github.com/jamcast/jamd/internal/log"
)

func main() {
	configPath := flag.String("config", os.Getenv("JAMD_CONFIG"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger := log.L()
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	log.Configure(log.Config{Level: cfg.LogLevel})
	logger := log.WithComponent("daemon")

	if err := run(cfg); err != nil {
		logger.Fatal().Err(err).Msg("daemon exited with error")
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := log.WithComponent("daemon")

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return err
	}
	st, err := store.NewSqliteStore(filepath.Join(cfg.DataDir, "sessions.db"))
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	resolver, err := buildCatalog(cfg)
	if err != nil {
		return err
	}

	dispatcher := dispatch.New(cfg.SubscriberBuffer)
	engine := manager.New(st, resolver, dispatcher, manager.Options{
		AcquireTimeout: cfg.AcquireTimeout,
		RemovalPolicy:  cfg.RemovalPolicy,
		IdempotencyTTL: cfg.IdempotencyTTL,
		AutoAdvance:    cfg.AutoAdvance,
	})
	if err := engine.Load(ctx); err != nil {
		return err
	}

	server := api.NewServer(engine, cfg)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", cfg.ListenAddr).Str("event", "daemon.listening").Msg("serving")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		sweeper := &manager.Sweeper{
			Engine: engine,
			Conf: manager.SweeperConfig{
				Interval: cfg.SweepInterval,
				IdleTTL:  cfg.IdleSessionTTL,
			},
		}
		sweeper.Run(ctx)
		return nil
	})

	err = g.Wait()
	logger.Info().Str("event", "daemon.stopped").Msg("shutdown complete")
	return err
}

// buildCatalog assembles the catalog collaborator: a static library when
// configured, optionally fronted by a Redis read-through cache.
func buildCatalog(cfg config.Config) (catalog.Resolver, error) {
	var resolver catalog.Resolver
	if cfg.CatalogFile != "" {
		static, err := catalog.LoadStatic(cfg.CatalogFile)
		if err != nil {
			return nil, err
		}
		resolver = static
	} else {
		resolver = catalog.NewStatic()
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		resolver = catalog.NewCache(resolver, client, cfg.CatalogTTL)
	}
	return resolver, nil
}
