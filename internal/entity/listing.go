package entity

import "time"

// RawListing is a candidate as extracted from a list or detail page.
// Every field is a pre-normalization string; empty means "not found".
type RawListing struct {
	Source      Source
	Kind        ListingKind
	URL         string // absolute, not yet canonical
	SiteID      string
	Title       string
	ZoneText    string
	PriceText   string
	Bedrooms    string
	AreaText    string
	Floor       string
	Description string
	ImageURLs   []string
	// BaseURL is the final URL of the page the candidate was parsed from.
	BaseURL string
}

// Listing mirrors the `listings` table.
type Listing struct {
	ID           string
	CanonicalURL string
	Source       Source
	Kind         ListingKind
	Title        string
	ZoneText     string
	PriceMinor   int64
	BedroomsRaw  string
	BedroomsNum  *int
	AreaM2       *float64
	FloorRaw     string
	Description  string
	ImageURLs    []string
	ParishID     *int
	CountyID     *int
	DistrictID   *int
	FirstSeenAt  time.Time
	LastSeenAt   time.Time
}

// Outcome is the result of an upsert.
type Outcome string

const (
	OutcomeCreated        Outcome = "created"
	OutcomeRefreshed      Outcome = "refreshed"
	OutcomeSkippedInvalid Outcome = "skipped_invalid"
)
