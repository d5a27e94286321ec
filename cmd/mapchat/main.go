package main

import (
	"context"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"mapchat/internal/cache"
	"mapchat/internal/config"
	"mapchat/internal/handler"
	"mapchat/internal/hub"
	"mapchat/internal/ingestor"
	"mapchat/internal/middleware"
	"mapchat/internal/routegen"
	"mapchat/internal/sim"
	"mapchat/internal/store"
	"mapchat/pkg/mapdata"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("starting mapchat server",
		"log_level", cfg.LogLevel.String(),
		"http_addr", cfg.HTTPAddr,
		"tick_interval", cfg.TickInterval,
		"redis_enabled", cfg.RedisEnabled,
	)

	venueStore := store.New(cfg.PresenceStaleAfter)
	wsHub := hub.NewHub(logger)

	dataClient, err := mapdata.New(cfg.SupabaseURL, cfg.SupabaseAnonKey)
	if err != nil {
		logger.Error("failed to create data client", "error", err)
		os.Exit(1)
	}

	builder := routegen.NewBuilder(routegen.Config{
		BearingStepDeg: cfg.BearingStepDeg,
		DistanceMiles:  cfg.RouteDistanceMile,
		LegPoints:      cfg.RouteLegPoints,
		CurveOffsetDeg: cfg.RouteCurveOffset,
	})

	seed := cfg.SimSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	engine := sim.NewEngine(builder, rng, cfg.TileZoomLevel, cfg.TickInterval, wsHub, logger)
	ing := ingestor.New(dataClient, venueStore, engine, wsHub, cfg, logger)

	var redisCache *cache.RedisCache
	var warmer *cache.CacheWarmer
	if cfg.RedisEnabled {
		redisCache, err = cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
		if err != nil {
			logger.Warn("redis unavailable, caching disabled", "error", err)
			redisCache = nil
		}
	}
	if redisCache != nil {
		warmer = cache.NewCacheWarmer(redisCache, venueStore, engine, cfg.CacheTTL, logger)
		ing.SetCacheInvalidator(warmer)
	}

	httpHandler := handler.NewHTTPHandler(venueStore, engine, redisCache, cfg.CacheTTL, cfg.TileZoomLevel)
	wsHandler := handler.NewWSHandler(wsHub, venueStore, engine, cfg.TileZoomLevel, cfg.FlyToZoom, cfg.FlyToDuration, logger)
	healthHandler := handler.NewHealthHandler(ing, venueStore, engine)
	statsHandler := handler.NewStatsHandler(venueStore, engine)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/venues", httpHandler.ListVenues)
	mux.HandleFunc("GET /v1/venues/{id}", httpHandler.GetVenue)
	mux.HandleFunc("GET /v1/venues/{id}/route", httpHandler.GetVenueRoute)
	mux.HandleFunc("GET /v1/routes", httpHandler.ListRoutes)
	mux.HandleFunc("GET /v1/agents", httpHandler.ListAgents)
	mux.HandleFunc("GET /v1/scene", httpHandler.GetScene)
	mux.HandleFunc("GET /v1/stats", statsHandler.GetStats)
	mux.HandleFunc("/v1/ws", wsHandler.ServeWS)

	mux.HandleFunc("GET /healthz", healthHandler.Healthz)
	mux.HandleFunc("GET /readyz", healthHandler.Readyz)

	rateLimiter := middleware.NewRateLimiter(
		cfg.RateLimitPerWindow,
		cfg.RateLimitWindow,
		cfg.RateLimitWhitelist,
		handler.ServerStats.IncRateLimitBlocked,
		logger,
	)

	var rootHandler http.Handler = mux
	rootHandler = handler.GzipMiddleware(rootHandler)
	rootHandler = handler.CORSMiddleware(rootHandler)
	rootHandler = rateLimiter.Middleware(rootHandler)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      rootHandler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go wsHub.Run(ctx)

	go ing.Run(ctx)

	engine.Start()

	if warmer != nil && cfg.CacheWarmOnStart {
		go func() {
			// Wait for first ingest before warming
			for !ing.IsReady() {
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
			}
			if err := warmer.WarmAll(ctx); err != nil {
				logger.Warn("cache warm failed", "error", err)
			}
		}()
	}

	go func() {
		logger.Info("starting HTTP server", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case <-ctx.Done():
	}

	engine.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
