package alerts

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"agromarket/internal/models"
)

// DefaultCooldown is the minimum gap between two firings of the same alert.
const DefaultCooldown = 30 * time.Second

var alertsTriggeredTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "price_alerts_triggered_total",
		Help: "Price alerts fired, by direction",
	},
	[]string{"direction"},
)

func init() {
	prometheus.MustRegister(alertsTriggeredTotal)
}

// Matches reports whether an enabled alert fires for the update. Crop and
// region compare case-insensitively; an empty region matches any region.
func Matches(a models.PriceAlert, u models.PriceUpdate) bool {
	if !a.Enabled {
		return false
	}
	if !strings.EqualFold(strings.TrimSpace(a.Crop), strings.TrimSpace(u.Crop)) {
		return false
	}
	if region := strings.TrimSpace(a.Region); region != "" && !strings.EqualFold(region, strings.TrimSpace(u.Region)) {
		return false
	}

	switch a.Direction {
	case models.DirectionAbove:
		return u.Price >= a.TargetPrice
	case models.DirectionBelow:
		return u.Price <= a.TargetPrice
	default:
		return false
	}
}

// UpdateFromListing turns a listing into the price update it represents.
func UpdateFromListing(l models.Listing) models.PriceUpdate {
	return models.PriceUpdate{
		Source:    "listing",
		ListingID: l.ID,
		Crop:      l.Crop,
		Region:    l.Location,
		Price:     l.Price,
		Timestamp: time.UnixMilli(l.UpdatedAt).UTC().Format(time.RFC3339),
	}
}

// MatchListings returns one message per (alert, listing) pair that matches.
// No cooldown applies.
func MatchListings(alerts []models.PriceAlert, listings []models.Listing) []models.AlertMessage {
	var out []models.AlertMessage
	for _, l := range listings {
		u := UpdateFromListing(l)
		for _, a := range alerts {
			if Matches(a, u) {
				out = append(out, message(a, u))
			}
		}
	}
	return out
}

// Evaluator fires alerts against a stream of price updates, suppressing
// repeats of the same alert within the cooldown.
type Evaluator struct {
	Cooldown time.Duration
	Now      func() time.Time

	mu        sync.Mutex
	lastFired map[string]time.Time
}

func NewEvaluator(cooldown time.Duration) *Evaluator {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Evaluator{Cooldown: cooldown, Now: time.Now, lastFired: make(map[string]time.Time)}
}

// Evaluate returns a message for each alert that fires on u and is not
// cooling down.
func (e *Evaluator) Evaluate(alerts []models.PriceAlert, u models.PriceUpdate) []models.AlertMessage {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.Now()
	var out []models.AlertMessage
	for _, a := range alerts {
		if !Matches(a, u) {
			continue
		}
		if last, ok := e.lastFired[a.ID]; ok && now.Sub(last) < e.Cooldown {
			continue
		}
		e.lastFired[a.ID] = now
		alertsTriggeredTotal.WithLabelValues(string(a.Direction)).Inc()

		msg := message(a, u)
		msg.Timestamp = now.UTC().Format(time.RFC3339)
		out = append(out, msg)
	}
	return out
}

func message(a models.PriceAlert, u models.PriceUpdate) models.AlertMessage {
	return models.AlertMessage{
		AlertID:   a.ID,
		Crop:      u.Crop,
		Region:    u.Region,
		Price:     u.Price,
		Threshold: a.TargetPrice,
		Triggered: a.Direction,
		Timestamp: u.Timestamp,
	}
}
