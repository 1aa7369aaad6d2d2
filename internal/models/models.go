package models

import (
	"time"
)

// LocalIDThreshold is the first id of the on-device id range. Listings
// persisted before origins were recorded are classified by it.
const LocalIDThreshold = 1000

// Origin records where a listing came from.
type Origin string

const (
	OriginRemote Origin = "remote"
	OriginLocal  Origin = "local"
)

// Listing is a marketplace offer of produce with its fair price band.
type Listing struct {
	ID        int     `json:"id"`
	Farmer    string  `json:"farmer"`
	Crop      string  `json:"crop"`
	Qty       string  `json:"qty"`
	Price     float64 `json:"price"`
	FairMin   float64 `json:"fairMin"`
	FairMax   float64 `json:"fairMax"`
	Location  string  `json:"location"`
	Trend     int     `json:"trend"`
	UpdatedAt int64   `json:"updatedAt"`
	Origin    Origin  `json:"origin,omitempty"`
}

// IsLocal reports whether the listing was created on this device and has
// not been confirmed by the remote source.
func (l Listing) IsLocal() bool {
	switch l.Origin {
	case OriginLocal:
		return true
	case OriginRemote:
		return false
	default:
		return l.ID >= LocalIDThreshold
	}
}

// NewListing carries the caller-supplied fields of a local listing.
type NewListing struct {
	Farmer   string  `json:"farmer"`
	Crop     string  `json:"crop"`
	Qty      string  `json:"qty"`
	Price    float64 `json:"price"`
	Location string  `json:"location"`
}

// Direction is the side of the threshold a price alert watches.
type Direction string

const (
	DirectionAbove Direction = "above"
	DirectionBelow Direction = "below"
)

func (d Direction) Valid() bool {
	return d == DirectionAbove || d == DirectionBelow
}

// PriceAlert asks for a notification when a crop's price in a region
// crosses TargetPrice in Direction.
type PriceAlert struct {
	ID          string    `json:"id"`
	Crop        string    `json:"crop"`
	Region      string    `json:"region"`
	TargetPrice float64   `json:"targetPrice"`
	Direction   Direction `json:"direction"`
	Enabled     bool      `json:"enabled"`
}

// PriceUpdate is a single observed price for a crop in a region, as carried
// on the price stream.
type PriceUpdate struct {
	Source    string  `json:"source"`
	ListingID int     `json:"listing_id,omitempty"`
	Crop      string  `json:"crop"`
	Region    string  `json:"region"`
	Price     float64 `json:"price"`
	Timestamp string  `json:"timestamp"`
}

// AlertMessage is a fired price alert as streamed to clients.
type AlertMessage struct {
	AlertID   string    `json:"alert_id,omitempty"`
	Crop      string    `json:"crop,omitempty"`
	Region    string    `json:"region,omitempty"`
	Price     float64   `json:"price,omitempty"`
	Threshold float64   `json:"threshold,omitempty"`
	Triggered Direction `json:"triggered,omitempty"`
	Timestamp string    `json:"timestamp"`
}

// Weather is the current conditions plus tomorrow's rain for a coordinate.
type Weather struct {
	Temperature int    `json:"temperature"`
	Windspeed   int    `json:"windspeed"`
	Weathercode int    `json:"weathercode"`
	Rain        int    `json:"rain"`
	Description string `json:"description"`
	Advisory    string `json:"alert,omitempty"`
}

// Diagnosis is the structured result of a plant image classification.
type Diagnosis struct {
	PlantSpecies    string   `json:"plant_species"`
	DiseaseName     string   `json:"disease_name"`
	Confidence      float64  `json:"confidence"`
	Severity        float64  `json:"severity"`
	Treatments      []string `json:"treatments"`
	PreventionSteps []string `json:"prevention_steps"`
}

// ScanRecord is a stored diagnosis for a user's uploaded image.
type ScanRecord struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	ImageURL  string    `json:"image_url" db:"image_url"`
	Diagnosis
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
