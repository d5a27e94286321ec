package store

import (
	"sort"
	"sync"
	"time"

	"mapchat/internal/domain"
)

type ListOptions struct {
	Category string
	BBox     *domain.BoundingBox
}

// Store holds the current venue directory and presence feed in memory,
// indexed by tile for viewport-scoped snapshots. The directory fetch is
// authoritative: venues absent from an update are removed.
type Store struct {
	mu         sync.RWMutex
	venues     map[string]*domain.Venue
	byTile     map[string]map[string]struct{}
	byCategory map[string]map[string]struct{}

	presence       map[string]*domain.PresenceDot
	presenceByTile map[string]map[string]struct{}

	presenceStaleAfter time.Duration
}

func New(presenceStaleAfter time.Duration) *Store {
	return &Store{
		venues:             make(map[string]*domain.Venue),
		byTile:             make(map[string]map[string]struct{}),
		byCategory:         make(map[string]map[string]struct{}),
		presence:           make(map[string]*domain.PresenceDot),
		presenceByTile:     make(map[string]map[string]struct{}),
		presenceStaleAfter: presenceStaleAfter,
	}
}

// ReplaceVenues applies a full directory fetch. It returns deltas for
// changed and removed venues, and whether the venue set itself changed
// (membership or any coordinates), which is what forces a route rebuild.
func (s *Store) ReplaceVenues(venues []*domain.Venue) (deltas []domain.SceneDelta, setChanged bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	seen := make(map[string]struct{}, len(venues))

	for _, v := range venues {
		if v.ID == "" {
			continue
		}
		seen[v.ID] = struct{}{}
		v.UpdatedAt = now

		existing, exists := s.venues[v.ID]
		if !exists || movedVenue(existing, v) {
			setChanged = true
		}

		if !exists || venueChanged(existing, v) {
			if exists && existing.TileID != v.TileID {
				s.removeFromTileIndex(existing.ID, existing.TileID)
			}
			if exists && existing.Category != v.Category {
				s.removeFromCategoryIndex(existing.ID, existing.Category)
			}

			s.venues[v.ID] = v
			s.addToIndices(v)

			deltas = append(deltas, domain.SceneDelta{
				Type:   domain.DeltaUpdate,
				Kind:   domain.KindVenue,
				Venue:  v,
				TileID: v.TileID,
			})
		} else {
			existing.UpdatedAt = now
		}
	}

	for id, v := range s.venues {
		if _, ok := seen[id]; ok {
			continue
		}
		setChanged = true
		deltas = append(deltas, domain.SceneDelta{
			Type:   domain.DeltaRemove,
			Kind:   domain.KindVenue,
			Key:    id,
			TileID: v.TileID,
		})
		s.removeFromTileIndex(id, v.TileID)
		s.removeFromCategoryIndex(id, v.Category)
		delete(s.venues, id)
	}

	return deltas, setChanged
}

// UpdatePresence merges a presence feed refresh into the store
func (s *Store) UpdatePresence(dots []*domain.PresenceDot) []domain.SceneDelta {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	deltas := make([]domain.SceneDelta, 0, len(dots))

	for _, d := range dots {
		if d.ID == "" {
			continue
		}
		d.UpdatedAt = now

		existing, exists := s.presence[d.ID]
		if !exists || presenceChanged(existing, d) {
			if exists && existing.TileID != d.TileID {
				s.removeFromPresenceTileIndex(existing.ID, existing.TileID)
			}

			s.presence[d.ID] = d
			if s.presenceByTile[d.TileID] == nil {
				s.presenceByTile[d.TileID] = make(map[string]struct{})
			}
			s.presenceByTile[d.TileID][d.ID] = struct{}{}

			deltas = append(deltas, domain.SceneDelta{
				Type:     domain.DeltaUpdate,
				Kind:     domain.KindPresence,
				Presence: d,
				TileID:   d.TileID,
			})
		} else {
			existing.UpdatedAt = now
		}
	}

	return deltas
}

// PruneStalePresence drops dots the feed stopped refreshing. Heat decay
// already floors their weight; this just bounds memory.
func (s *Store) PruneStalePresence() []domain.SceneDelta {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-s.presenceStaleAfter)
	var deltas []domain.SceneDelta

	for id, d := range s.presence {
		if d.UpdatedAt.Before(cutoff) {
			deltas = append(deltas, domain.SceneDelta{
				Type:   domain.DeltaRemove,
				Kind:   domain.KindPresence,
				Key:    id,
				TileID: d.TileID,
			})
			s.removeFromPresenceTileIndex(id, d.TileID)
			delete(s.presence, id)
		}
	}

	return deltas
}

func (s *Store) GetVenue(id string) (*domain.Venue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.venues[id]
	if !ok {
		return nil, false
	}
	cp := *v
	return &cp, true
}

func (s *Store) ListVenues(opts ListOptions) []*domain.Venue {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates map[string]struct{}
	if opts.Category != "" {
		candidates = s.byCategory[opts.Category]
	}

	result := make([]*domain.Venue, 0, len(s.venues))
	for id, v := range s.venues {
		if opts.Category != "" {
			if _, ok := candidates[id]; !ok {
				continue
			}
		}
		if opts.BBox != nil && !opts.BBox.Contains(v.Lat, v.Lng) {
			continue
		}
		cp := *v
		result = append(result, &cp)
	}
	return result
}

// VenuesSnapshot returns all venues ordered by ID, so route generation
// sees a stable ordering across fetches.
func (s *Store) VenuesSnapshot() []*domain.Venue {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.venues))
	for id := range s.venues {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	result := make([]*domain.Venue, 0, len(ids))
	for _, id := range ids {
		cp := *s.venues[id]
		result = append(result, &cp)
	}
	return result
}

func (s *Store) PresenceSnapshot() []*domain.PresenceDot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.PresenceDot, 0, len(s.presence))
	for _, d := range s.presence {
		cp := *d
		result = append(result, &cp)
	}
	return result
}

// VenuesForTiles returns the venues inside the given tile set
func (s *Store) VenuesForTiles(tileIDs []string) []*domain.Venue {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	var result []*domain.Venue
	for _, tileID := range tileIDs {
		for id := range s.byTile[tileID] {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			cp := *s.venues[id]
			result = append(result, &cp)
		}
	}
	return result
}

// PresenceForTiles returns the presence dots inside the given tile set
func (s *Store) PresenceForTiles(tileIDs []string) []*domain.PresenceDot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	var result []*domain.PresenceDot
	for _, tileID := range tileIDs {
		for id := range s.presenceByTile[tileID] {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			cp := *s.presence[id]
			result = append(result, &cp)
		}
	}
	return result
}

func (s *Store) VenueCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.venues)
}

func (s *Store) PresenceCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.presence)
}

func (s *Store) CategoryCounts() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int, len(s.byCategory))
	for cat, ids := range s.byCategory {
		counts[cat] = len(ids)
	}
	return counts
}

func (s *Store) addToIndices(v *domain.Venue) {
	if s.byTile[v.TileID] == nil {
		s.byTile[v.TileID] = make(map[string]struct{})
	}
	s.byTile[v.TileID][v.ID] = struct{}{}

	if s.byCategory[v.Category] == nil {
		s.byCategory[v.Category] = make(map[string]struct{})
	}
	s.byCategory[v.Category][v.ID] = struct{}{}
}

func (s *Store) removeFromTileIndex(id, tileID string) {
	if s.byTile[tileID] != nil {
		delete(s.byTile[tileID], id)
		if len(s.byTile[tileID]) == 0 {
			delete(s.byTile, tileID)
		}
	}
}

func (s *Store) removeFromCategoryIndex(id, category string) {
	if s.byCategory[category] != nil {
		delete(s.byCategory[category], id)
		if len(s.byCategory[category]) == 0 {
			delete(s.byCategory, category)
		}
	}
}

func (s *Store) removeFromPresenceTileIndex(id, tileID string) {
	if s.presenceByTile[tileID] != nil {
		delete(s.presenceByTile[tileID], id)
		if len(s.presenceByTile[tileID]) == 0 {
			delete(s.presenceByTile, tileID)
		}
	}
}

const coordEpsilon = 0.000001

func movedVenue(old, new *domain.Venue) bool {
	return absDiff(old.Lat, new.Lat) > coordEpsilon || absDiff(old.Lng, new.Lng) > coordEpsilon
}

func venueChanged(old, new *domain.Venue) bool {
	if movedVenue(old, new) {
		return true
	}
	if old.Name != new.Name || old.Category != new.Category {
		return true
	}
	if old.Participants != new.Participants || old.PriceTier != new.PriceTier {
		return true
	}
	if absDiff(old.Rating, new.Rating) > coordEpsilon {
		return true
	}
	if old.Popularity != new.Popularity {
		return true
	}
	return false
}

func presenceChanged(old, new *domain.PresenceDot) bool {
	if absDiff(old.Lat, new.Lat) > coordEpsilon || absDiff(old.Lng, new.Lng) > coordEpsilon {
		return true
	}
	return !old.LastActive.Equal(new.LastActive)
}

func absDiff(a, b float64) float64 {
	d := a - b
	if d < 0 {
		return -d
	}
	return d
}
