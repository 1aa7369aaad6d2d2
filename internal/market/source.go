package market

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/go-resty/resty/v2"

	"agromarket/internal/models"
)

// Source returns the authoritative listing set.
type Source interface {
	Fetch(ctx context.Context) ([]models.Listing, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]models.Listing, error)

func (f SourceFunc) Fetch(ctx context.Context) ([]models.Listing, error) { return f(ctx) }

// SeedListings is the built-in remote listing set served when no remote
// endpoint is configured.
func SeedListings() []models.Listing {
	return []models.Listing{
		{ID: 1, Farmer: "Ravi Kumar", Crop: "Tomato", Qty: "500 kg", Price: 28, FairMin: 24, FairMax: 32, Location: "Coimbatore", Trend: 12},
		{ID: 2, Farmer: "Meena Devi", Crop: "Onion", Qty: "1200 kg", Price: 18, FairMin: 16, FairMax: 22, Location: "Salem", Trend: -5},
		{ID: 3, Farmer: "Arjun S", Crop: "Brinjal", Qty: "300 kg", Price: 22, FairMin: 19, FairMax: 26, Location: "Erode", Trend: 8},
		{ID: 4, Farmer: "Priya M", Crop: "Chilli", Qty: "200 kg", Price: 85, FairMin: 78, FairMax: 95, Location: "Guntur", Trend: 15},
		{ID: 5, Farmer: "Suresh P", Crop: "Paddy", Qty: "2000 kg", Price: 22, FairMin: 20, FairMax: 25, Location: "Thanjavur", Trend: 2},
	}
}

// StaticSource serves a fixed listing set after an optional simulated delay.
type StaticSource struct {
	Listings []models.Listing
	Delay    time.Duration
}

func NewStaticSource() *StaticSource {
	return &StaticSource{Listings: SeedListings(), Delay: 300 * time.Millisecond}
}

func (s *StaticSource) Fetch(ctx context.Context) ([]models.Listing, error) {
	if s.Delay > 0 {
		t := time.NewTimer(s.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	return slices.Clone(s.Listings), nil
}

// HTTPSource reads the listing set as a JSON array from a remote endpoint.
type HTTPSource struct {
	url    string
	client *resty.Client
}

func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("Accept", "application/json")
	return &HTTPSource{url: url, client: client}
}

func (s *HTTPSource) Fetch(ctx context.Context) ([]models.Listing, error) {
	resp, err := s.client.R().SetContext(ctx).Get(s.url)
	if err != nil {
		return nil, fmt.Errorf("get listings: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("get listings: http %d", resp.StatusCode())
	}

	var listings []models.Listing
	if err := json.Unmarshal(resp.Body(), &listings); err != nil {
		return nil, fmt.Errorf("decode listings: %w", err)
	}
	return listings, nil
}
