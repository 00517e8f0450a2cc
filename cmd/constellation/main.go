package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/star/constellation/internal/api"
	"github.com/star/constellation/internal/cache"
	"github.com/star/constellation/internal/coverage"
	"github.com/star/constellation/internal/params"
	"github.com/star/constellation/internal/planner"
	"github.com/star/constellation/internal/propagation"
	"github.com/star/constellation/internal/scene"
	"github.com/star/constellation/internal/stream"
	"github.com/star/constellation/internal/tle"
)

func main() {
	v, err := newViper(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	level, levelErr := loadLogLevel(v)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	if levelErr != nil {
		logger.Warn("invalid log level, using info", "error", levelErr)
	}
	if f := v.ConfigFileUsed(); f != "" {
		logger.Info("loaded config file", "path", f)
	}

	authCfg, err := loadAuthConfig(v, logger)
	if err != nil {
		logger.Error("invalid auth configuration", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tleCfg := loadTLEConfig(v, logger)
	store := tle.NewStore()
	pl := planner.New(store, tle.NewCache(tleCfg.CacheDir, tleCfg.MaxFiles), logger.With("component", "planner"))

	if !v.GetBool("demo") {
		if _, err := pl.Restore(); err != nil {
			logger.Info("no cached constellation, loading demo", "error", err)
		}
	}
	if store.Get() == nil {
		if _, err := pl.LoadDemo(ctx); err != nil {
			logger.Error("failed to load demo constellation", "error", err)
			os.Exit(1)
		}
	}

	propCfg := loadPropConfig(v, logger)
	prop, err := propagation.NewPropagator(propCfg.Backend)
	if err != nil {
		logger.Error("invalid propagation configuration", "error", err)
		os.Exit(1)
	}
	engine := propagation.NewEngine(store, prop, propCfg, logger.With("component", "propagation"))

	covCfg := loadCoverageConfig(v, logger)
	agg, err := coverage.NewAggregator(prop, covCfg, logger.With("component", "coverage"))
	if err == nil {
		// An explicit 0 deg mask would otherwise take the default.
		agg, err = agg.With(0, covCfg.MinElevationDeg)
	}
	if err != nil {
		logger.Error("invalid coverage configuration", "error", err)
		os.Exit(1)
	}

	frames := cache.NewFrameCache(loadCacheConfig(v, logger), scene.NewBuilder(store, engine, agg), store, logger)
	streamHandler := stream.NewHandler(frames, store, loadStreamConfig(v, logger), logger)

	paramStore := params.NewMemoryStore()
	watcher := params.NewWatcher(paramStore, params.LatestKey, pl, logger.With("component", "watcher"))
	poller := params.NewPoller(loadPollInterval(v, logger), watcher, logger.With("component", "poller"))

	addr := v.GetString("http.addr")
	srv := api.NewServer(api.Config{
		Addr:       addr,
		Auth:       authCfg,
		RateLimit:  loadRateLimitConfig(v, logger),
		TrustProxy: v.GetBool("http.trust_proxy"),
	}, api.Deps{
		Store:      store,
		Params:     paramStore,
		Planner:    pl,
		Engine:     engine,
		Aggregator: agg,
		Frames:     frames,
		Stream:     streamHandler,
	}, logger)

	go frames.Start(ctx)
	go poller.Run(ctx)

	go func() {
		c := store.Get()
		logger.Info("starting server",
			"addr", addr,
			"auth_enabled", authCfg.Enabled,
			"source", c.Source,
			"satellites", c.Size(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
