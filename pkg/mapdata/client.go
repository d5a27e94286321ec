// Package mapdata reads the hosted table store backing the map: the venue
// directory and the user-presence feed. The store is treated as an opaque
// remote table service queried through PostgREST.
package mapdata

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/supabase-community/supabase-go"

	"mapchat/internal/domain"
)

const (
	venuesTable   = "venues"
	presenceTable = "user_locations"
)

type Client struct {
	sb *supabase.Client
}

func New(url, anonKey string) (*Client, error) {
	sb, err := supabase.NewClient(url, anonKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("initializing table store client: %w", err)
	}
	return &Client{sb: sb}, nil
}

type venueRow struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	Location     *GeoPoint       `json:"location"`
	Participants int             `json:"participant_count"`
	Rating       float64         `json:"rating"`
	PriceTier    int             `json:"price_tier"`
	Popularity   json.RawMessage `json:"popularity"`
	Photos       []string        `json:"photos"`
}

type presenceRow struct {
	UserID     string    `json:"user_id"`
	Location   *GeoPoint `json:"location"`
	LastActive time.Time `json:"last_active"`
}

// FetchVenues reads the full venue directory. Rows without coordinates are
// skipped; they cannot be placed on the map or given a route. The
// PostgREST client offers no per-request cancellation, so there is no
// context parameter to honor.
func (c *Client) FetchVenues() ([]*domain.Venue, error) {
	data, _, err := c.sb.From(venuesTable).Select("*", "exact", false).Execute()
	if err != nil {
		return nil, fmt.Errorf("fetching venues: %w", err)
	}

	var rows []venueRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decoding venues: %w", err)
	}

	venues := make([]*domain.Venue, 0, len(rows))
	for _, row := range rows {
		if row.ID == "" {
			continue
		}
		lat, lng, ok := row.Location.LatLng()
		if !ok {
			continue
		}

		var pop domain.Popularity
		if len(row.Popularity) > 0 {
			// malformed popularity JSON leaves the descriptor zeroed
			_ = json.Unmarshal(row.Popularity, &pop)
		}

		venues = append(venues, &domain.Venue{
			ID:           row.ID,
			Name:         row.Name,
			Category:     row.Category,
			Lat:          lat,
			Lng:          lng,
			Participants: row.Participants,
			Rating:       row.Rating,
			PriceTier:    row.PriceTier,
			Popularity:   pop,
			Photos:       row.Photos,
		})
	}
	return venues, nil
}

// FetchPresence reads the user-presence feed consumed by the heatmap and
// dot layers.
func (c *Client) FetchPresence() ([]*domain.PresenceDot, error) {
	data, _, err := c.sb.From(presenceTable).Select("*", "exact", false).Execute()
	if err != nil {
		return nil, fmt.Errorf("fetching presence: %w", err)
	}

	var rows []presenceRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decoding presence: %w", err)
	}

	dots := make([]*domain.PresenceDot, 0, len(rows))
	for _, row := range rows {
		if row.UserID == "" {
			continue
		}
		lat, lng, ok := row.Location.LatLng()
		if !ok {
			continue
		}
		dots = append(dots, &domain.PresenceDot{
			ID:         row.UserID,
			Lat:        lat,
			Lng:        lng,
			LastActive: row.LastActive,
		})
	}
	return dots, nil
}
