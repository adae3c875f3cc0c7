package model

import "time"

// Listing is a raw marketplace search result as returned by a marketplace
// searcher. Missing fields are empty, not errors.
type Listing struct {
	ExternalID  string
	Title       string
	Description string
	Seller      string
	Price       float64
	Currency    string
	URL         string
	ImageURLs   []string
}

// CandidateListing is a listing scored against a banned product. Created by
// the executor; ownership passes to the review workflow once persisted.
type CandidateListing struct {
	ID              string
	RunID           string
	MarketplaceID   string
	ProductID       string
	Listing         Listing
	ConfidenceScore float64 // always in [0,1]
	Flagged         bool    // true iff score >= configured threshold
	DiscoveredAt    time.Time
}
