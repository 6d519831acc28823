package main

import (
	"context"
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
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/stockdash/trade-engine/internal/auth"
	"github.com/stockdash/trade-engine/internal/engine"
	"github.com/stockdash/trade-engine/internal/metrics"
	"github.com/stockdash/trade-engine/internal/oracle"
	"github.com/stockdash/trade-engine/internal/store"
	"github.com/stockdash/trade-engine/internal/symbol"
	"github.com/stockdash/trade-engine/internal/trade"
)

func main() {
	godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		slog.Error("JWT_SECRET is required; anonymous trading is not supported")
		os.Exit(1)
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)

		pg := store.NewPostgresStore(pool)
		if err := pg.EnsureSchema(context.Background()); err != nil {
			slog.Error("schema setup failed", "err", err)
			os.Exit(1)
		}
		st = pg
		slog.Info("connected to PostgreSQL")
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Symbol table ---
	symCfg := symbol.DefaultConfig()
	if path := os.Getenv("SYMBOL_TABLE_FILE"); path != "" {
		cfg, err := symbol.LoadConfig(path)
		if err != nil {
			slog.Error("failed to load symbol table", "path", path, "err", err)
			os.Exit(1)
		}
		symCfg = cfg
		slog.Info("loaded symbol table", "path", path)
	}
	symbols := symbol.NewNormalizer(symCfg)

	// --- Price oracle ---
	priceURL := os.Getenv("PRICE_API_URL")
	if priceURL == "" {
		priceURL = "https://query1.finance.yahoo.com"
	}
	var prices oracle.Source = oracle.NewYahooSource(priceURL, nil)

	// Wrap with a Redis quote cache if configured.
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		prices = oracle.NewCachedSource(prices, rdb, 15*time.Second)
		slog.Info("Redis quote cache enabled")
	}

	// --- Settlement engine ---
	eng := engine.New(st, prices, symbols)

	// --- WebSocket hub ---
	wsHub := trade.NewWSHub()
	go wsHub.Run()

	// --- Trade service ---
	tradeSvc := trade.NewService(eng, st, prices, symbols, wsHub)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for dashboard cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"trade-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	requireAuth := auth.Middleware([]byte(jwtSecret))

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time trade updates.
		r.Get("/ws", wsHub.HandleWS)

		// Public quote proxy and endpoint discovery.
		r.Get("/quotes/{symbol}", tradeSvc.GetQuote)
		r.Get("/trades", tradeSvc.DescribeTrades)

		// Authenticated trading surface.
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/trades", tradeSvc.SubmitTrade)
			r.Get("/portfolio", tradeSvc.GetPortfolio)
			r.Get("/transactions", tradeSvc.GetTransactions)
		})
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Serve in a goroutine so the main goroutine can wait on both a
	// server failure and a shutdown signal; deferred cleanup (pool,
	// redis) runs on either path.
	serverErr := make(chan error, 1)
	go func() {
		slog.Info("trade-engine listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		slog.Error("server error", "err", err)
		return
	case <-quit:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down trade-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("trade-engine stopped")
}
