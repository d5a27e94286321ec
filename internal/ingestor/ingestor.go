package ingestor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"mapchat/internal/config"
	"mapchat/internal/domain"
	"mapchat/internal/sim"
	"mapchat/internal/store"
	"mapchat/internal/viewport"
)

type Broadcaster interface {
	Broadcast(deltas []domain.SceneDelta)
}

// CacheInvalidator drops cached venue and route entries when the
// directory changes, so REST reads never outlive a rebuild.
type CacheInvalidator interface {
	Invalidate(ctx context.Context)
}

// DataSource is the remote table store feeding the map
type DataSource interface {
	FetchVenues() ([]*domain.Venue, error)
	FetchPresence() ([]*domain.PresenceDot, error)
}

// Ingestor keeps the store in sync with the hosted table store: venues on
// a slow cycle, presence on a fast one. A venue-set change triggers a
// route rebuild in the simulation engine; everything else is deltas fanned
// out through the broadcaster.
type Ingestor struct {
	client      DataSource
	store       *store.Store
	engine      *sim.Engine
	broadcaster Broadcaster
	config      *config.Config
	logger      *slog.Logger
	tileZoom    int
	invalidator CacheInvalidator

	ready   bool
	readyMu sync.RWMutex
}

func New(client DataSource, st *store.Store, engine *sim.Engine, broadcaster Broadcaster, cfg *config.Config, logger *slog.Logger) *Ingestor {
	return &Ingestor{
		client:      client,
		store:       st,
		engine:      engine,
		broadcaster: broadcaster,
		config:      cfg,
		logger:      logger.With("component", "ingestor"),
		tileZoom:    cfg.TileZoomLevel,
	}
}

// SetCacheInvalidator attaches the cache layer; optional, main only
// wires it when redis is enabled.
func (i *Ingestor) SetCacheInvalidator(inv CacheInvalidator) {
	i.invalidator = inv
}

func (i *Ingestor) Run(ctx context.Context) {
	venueTicker := time.NewTicker(i.config.VenuePollInterval)
	defer venueTicker.Stop()

	presenceTicker := time.NewTicker(i.config.PresenceRefreshInterval)
	defer presenceTicker.Stop()

	pruneTicker := time.NewTicker(i.config.PresenceRefreshInterval * 3)
	defer pruneTicker.Stop()

	i.pollVenues(ctx)
	i.pollPresence()

	for {
		select {
		case <-ctx.Done():
			return
		case <-venueTicker.C:
			i.pollVenues(ctx)
		case <-presenceTicker.C:
			i.pollPresence()
		case <-pruneTicker.C:
			i.prunePresence()
		}
	}
}

func (i *Ingestor) pollVenues(ctx context.Context) {
	venues, err := i.client.FetchVenues()
	if err != nil {
		// keep serving the last known directory
		i.logger.Error("failed to fetch venues", "error", err)
		return
	}

	for _, v := range venues {
		v.TileID = viewport.TileIDAt(v.Lat, v.Lng, i.tileZoom)
	}

	deltas, setChanged := i.store.ReplaceVenues(venues)

	if setChanged {
		i.engine.Rebuild(i.store.VenuesSnapshot())
	}

	// Any directory change makes cached venue and route entries stale
	if (setChanged || len(deltas) > 0) && i.invalidator != nil {
		i.invalidator.Invalidate(ctx)
	}

	if i.broadcaster != nil {
		i.broadcaster.Broadcast(deltas)
	}

	if !i.IsReady() {
		i.setReady(true)
		i.logger.Info("ingestor ready", "venues", len(venues))
	}

	i.logger.Debug("venue poll completed",
		"venues", len(venues),
		"deltas", len(deltas),
		"set_changed", setChanged,
	)
}

func (i *Ingestor) pollPresence() {
	dots, err := i.client.FetchPresence()
	if err != nil {
		i.logger.Error("failed to fetch presence", "error", err)
		return
	}

	for _, d := range dots {
		d.TileID = viewport.TileIDAt(d.Lat, d.Lng, i.tileZoom)
	}

	deltas := i.store.UpdatePresence(dots)

	if i.broadcaster != nil {
		i.broadcaster.Broadcast(deltas)
	}

	i.logger.Debug("presence poll completed", "dots", len(dots), "deltas", len(deltas))
}

func (i *Ingestor) prunePresence() {
	deltas := i.store.PruneStalePresence()
	if len(deltas) > 0 {
		if i.broadcaster != nil {
			i.broadcaster.Broadcast(deltas)
		}
		i.logger.Info("pruned stale presence dots", "count", len(deltas))
	}
}

func (i *Ingestor) IsReady() bool {
	i.readyMu.RLock()
	defer i.readyMu.RUnlock()
	return i.ready
}

func (i *Ingestor) setReady(ready bool) {
	i.readyMu.Lock()
	defer i.readyMu.Unlock()
	i.ready = ready
}
