package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"RecallSentinel/internal/model"
)

// Endpoint describes one marketplace's search API.
type Endpoint struct {
	BaseURL string
	APIKey  string
}

// HTTPSearcher implements Searcher against generic JSON search endpoints,
// one per marketplace id.
type HTTPSearcher struct {
	Endpoints map[string]Endpoint
	Client    *http.Client
}

// NewHTTPSearcher creates a searcher with optional proxy support. The client
// timeout is a backstop; per-call deadlines come from the context.
func NewHTTPSearcher(endpoints map[string]Endpoint, proxyURL string) *HTTPSearcher {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &HTTPSearcher{
		Endpoints: endpoints,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	}
}

func (s *HTTPSearcher) Name() string { return "http" }

// searchItem is the expected JSON shape of one result from a marketplace
// search endpoint.
type searchItem struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Seller      string   `json:"seller"`
	Price       float64  `json:"price"`
	Currency    string   `json:"currency"`
	URL         string   `json:"url"`
	Images      []string `json:"images"`
}

// Search issues one search query against the marketplace's endpoint.
func (s *HTTPSearcher) Search(ctx context.Context, marketplaceID, query string) ([]model.Listing, error) {
	ep, ok := s.Endpoints[marketplaceID]
	if !ok {
		return nil, fmt.Errorf("marketplace %q not configured", marketplaceID)
	}

	endpoint := fmt.Sprintf("%s/search?q=%s", ep.BaseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if ep.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+ep.APIKey)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", marketplaceID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("search %s: status %d, body: %s", marketplaceID, resp.StatusCode, string(body))
	}

	var items []searchItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("search %s: decode: %w", marketplaceID, err)
	}

	listings := make([]model.Listing, 0, len(items))
	for _, it := range items {
		if it.ID == "" && it.Title == "" {
			continue // skip empty records
		}
		listings = append(listings, model.Listing{
			ExternalID:  it.ID,
			Title:       it.Title,
			Description: it.Description,
			Seller:      it.Seller,
			Price:       it.Price,
			Currency:    it.Currency,
			URL:         it.URL,
			ImageURLs:   it.Images,
		})
	}
	return listings, nil
}
