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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/atmx/gts-market/internal/api"
	"github.com/atmx/gts-market/internal/config"
	"github.com/atmx/gts-market/internal/entry"
	"github.com/atmx/gts-market/internal/game"
	"github.com/atmx/gts-market/internal/listing"
	"github.com/atmx/gts-market/internal/market"
	"github.com/atmx/gts-market/internal/metrics"
	"github.com/atmx/gts-market/internal/notify"
	"github.com/atmx/gts-market/internal/storage"
	"github.com/atmx/gts-market/internal/store"
	"github.com/atmx/gts-market/internal/text"
)

func main() {
	cfg, err := config.Load(os.Getenv("GTS_CONFIG"))
	if err != nil {
		slog.Error("configuration failed", "err", err)
		os.Exit(1)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Logging.Level)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Config was validated by Load.
	limits, _ := cfg.Limits()
	rules, _ := cfg.Rules()
	taxRate, _ := cfg.TaxRate()

	// --- Game bridge ---
	inv := game.NewInventory(0)
	bank := game.NewBank()
	reg := entry.NewRegistry(inv, rules, limits)

	// --- Initialize store ---
	var cleanup []func()
	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}()

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		slog.Error("storage backend failed", "backend", cfg.Storage.Backend, "err", err)
		os.Exit(1)
	}
	if err := backend.Init(ctx); err != nil {
		slog.Error("storage init failed", "backend", backend.Name(), "err", err)
		os.Exit(1)
	}

	async := storage.NewAsync(backend, listing.Codec{Registry: reg},
		storage.NewPool(cfg.Storage.Workers, cfg.Storage.QueueSize))
	cached := storage.NewCached(async)
	if err := cached.Load(ctx); err != nil {
		slog.Error("loading market failed", "backend", backend.Name(), "err", err)
		os.Exit(1)
	}
	slog.Info("market loaded", "backend", backend.Name(), "listings", len(cached.Snapshot()))

	// --- Notifications ---
	hub := notify.NewHub(cached.IsIgnoring)
	go hub.Run(ctx)
	notifiers := notify.Multi{hub}

	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name("gts-market"))
		if err != nil {
			slog.Error("NATS connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, func() { _ = nc.Drain() })
		notifiers = append(notifiers, notify.NewNATSPublisher(nc, cfg.NATS.SubjectPrefix))
		slog.Info("NATS events enabled", "prefix", cfg.NATS.SubjectPrefix)
	}

	// --- Market ---
	renderer := text.NewRenderer(cfg)
	coord := market.New(cached, bank, renderer, notifiers, limits, market.Options{
		MaxListings:     cfg.Market.MaxListings,
		TaxRate:         taxRate,
		DefaultDuration: cfg.Market.DefaultDuration,
	})

	go runEvery(ctx, cfg.Market.SweepInterval, func() {
		coord.ExpireSweep(ctx, time.Now())
	})
	go runEvery(ctx, cfg.Storage.SaveInterval, func() {
		_ = coord.Save(ctx)
	})

	svc := api.NewService(coord, reg, renderer)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"gts-market"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	// WebSocket endpoint for player notifications; outside the timeout.
	r.Get("/api/v1/ws", hub.HandleWS)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Route("/api/v1", svc.Routes)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("gts-market listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()

	// Graceful shutdown: stop taking requests, flush, then drain storage.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down gts-market...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	if err := coord.Save(shutdownCtx); err != nil {
		slog.Error("final save failed", "err", err)
	}
	if err := async.Close(); err != nil {
		slog.Error("closing storage failed", "err", err)
	}
	fmt.Println("gts-market stopped")
}

// openBackend builds the configured persistence backend. Backends own
// their connections and release them on Close.
func openBackend(ctx context.Context, cfg *config.Config) (store.Backend, error) {
	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		slog.Info("connected to PostgreSQL")
		return store.NewPostgresStore(pool), nil

	case config.BackendRedis:
		opt, err := redis.ParseURL(cfg.Storage.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opt)
		slog.Info("connected to Redis", "prefix", cfg.Storage.RedisPrefix)
		return store.NewRedisStore(rdb, cfg.Storage.RedisPrefix), nil

	case config.BackendSQLite:
		return store.NewSQLiteStore(cfg.Storage.SQLitePath), nil

	case config.BackendFlatFile:
		return store.NewFlatFileStore(cfg.Storage.FlatFilePath), nil
	}
	slog.Warn("using in-memory store (data will not persist)")
	return store.NewMemoryStore(), nil
}

func runEvery(ctx context.Context, every time.Duration, fn func()) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			fn()
		}
	}
}
