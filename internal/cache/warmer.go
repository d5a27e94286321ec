package cache

import (
	"context"
	"log/slog"
	"time"

	"mapchat/internal/sim"
	"mapchat/internal/store"
)

// CacheWarmer pre-populates the cache with the venue directory and the
// generated route polylines so cold REST reads don't hit the in-memory
// stores under burst load.
type CacheWarmer struct {
	cache  *RedisCache
	store  *store.Store
	engine *sim.Engine
	ttl    time.Duration
	logger *slog.Logger
}

func NewCacheWarmer(cache *RedisCache, st *store.Store, engine *sim.Engine, ttl time.Duration, logger *slog.Logger) *CacheWarmer {
	return &CacheWarmer{
		cache:  cache,
		store:  st,
		engine: engine,
		ttl:    ttl,
		logger: logger.With("component", "cache_warmer"),
	}
}

func (w *CacheWarmer) WarmAll(ctx context.Context) error {
	start := time.Now()
	w.logger.Info("starting cache warming")

	if err := w.warmDirectory(ctx); err != nil {
		w.logger.Error("failed to warm venue directory", "error", err)
	}

	if err := w.warmRoutes(ctx); err != nil {
		w.logger.Error("failed to warm routes", "error", err)
	}

	w.logger.Info("cache warming completed", "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (w *CacheWarmer) warmDirectory(ctx context.Context) error {
	start := time.Now()

	venues := w.store.VenuesSnapshot()
	if err := w.cache.SetJSON(ctx, KeyVenueDirectory, venues, w.ttl); err != nil {
		return err
	}

	warmed := 0
	for _, v := range venues {
		if err := w.cache.SetJSON(ctx, KeyVenue(v.ID), v, w.ttl); err != nil {
			w.logger.Debug("failed to cache venue", "venue_id", v.ID, "error", err)
			continue
		}
		warmed++
	}

	w.logger.Info("warmed venue directory",
		"venues", len(venues),
		"warmed", warmed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (w *CacheWarmer) warmRoutes(ctx context.Context) error {
	start := time.Now()

	routes := w.engine.Routes()
	if err := w.cache.SetJSONCompressed(ctx, KeyRouteSet, routes, w.ttl); err != nil {
		return err
	}

	warmed := 0
	for _, rt := range routes {
		if err := w.cache.SetJSON(ctx, KeyVenueRoute(rt.VenueID), rt, w.ttl); err != nil {
			w.logger.Debug("failed to cache route", "venue_id", rt.VenueID, "error", err)
			continue
		}
		warmed++
	}

	w.logger.Info("warmed routes",
		"routes", len(routes),
		"warmed", warmed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Invalidate drops cached routes and directory entries after a venue-set
// change so REST reads don't serve routes for removed venues.
func (w *CacheWarmer) Invalidate(ctx context.Context) {
	if err := w.cache.Delete(ctx, KeyVenueDirectory); err != nil {
		w.logger.Debug("failed to invalidate directory key", "error", err)
	}
	if err := w.cache.Delete(ctx, KeyRouteSet); err != nil {
		w.logger.Debug("failed to invalidate route set key", "error", err)
	}
	if err := w.cache.DeletePattern(ctx, "route:*"); err != nil {
		w.logger.Debug("failed to invalidate route keys", "error", err)
	}
	if err := w.cache.DeletePattern(ctx, "venue:*"); err != nil {
		w.logger.Debug("failed to invalidate venue keys", "error", err)
	}
}
