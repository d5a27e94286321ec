package cache

import "fmt"

const (
	KeyVenueDirectory = "directory:venues"
	KeyRouteSet       = "routes:all"
)

func KeyVenue(venueID string) string {
	return fmt.Sprintf("venue:%s", venueID)
}

func KeyVenueRoute(venueID string) string {
	return fmt.Sprintf("route:%s", venueID)
}
