package market

import (
	"context"
	"encoding/json"
	"fmt"

	"agromarket/internal/models"
)

// Keys under which the store persists its two collections.
const (
	ListingsKey = "agro_market_listings"
	AlertsKey   = "agro_price_alerts"
)

// Storage is a durable string key-value store. Get reports ok=false for a
// missing key. Writes are expected to be atomic per key.
type Storage interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

func encodeListings(listings []models.Listing) (string, error) {
	if listings == nil {
		listings = []models.Listing{}
	}
	b, err := json.Marshal(listings)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeListings(raw string) ([]models.Listing, error) {
	var listings []models.Listing
	if err := json.Unmarshal([]byte(raw), &listings); err != nil {
		return nil, err
	}
	return listings, nil
}

func encodeAlerts(alerts []models.PriceAlert) (string, error) {
	if alerts == nil {
		alerts = []models.PriceAlert{}
	}
	b, err := json.Marshal(alerts)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeAlerts(raw string) ([]models.PriceAlert, error) {
	var alerts []models.PriceAlert
	if err := json.Unmarshal([]byte(raw), &alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

// LoadPriceAlerts reads the persisted alert collection directly from
// storage, for processes that evaluate alerts without running a Store.
// A missing key yields an empty collection.
func LoadPriceAlerts(ctx context.Context, storage Storage) ([]models.PriceAlert, error) {
	raw, ok, err := storage.Get(ctx, AlertsKey)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", AlertsKey, err)
	}
	if !ok {
		return nil, nil
	}
	alerts, err := decodeAlerts(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", AlertsKey, err)
	}
	return alerts, nil
}
