package store

import "time"

// Favorite is a station the user has bookmarked
type Favorite struct {
	ID          int64     `json:"id"`
	StationUUID string    `json:"stationuuid"`
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	Favicon     string    `json:"favicon,omitempty"`
	CountryCode string    `json:"countrycode,omitempty"`
	Tags        string    `json:"tags,omitempty"`
	AddedAt     time.Time `json:"added_at"`
}
