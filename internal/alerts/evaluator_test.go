package alerts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agromarket/internal/models"
)

func TestMatches(t *testing.T) {
	above := models.PriceAlert{ID: "a1", Crop: "Tomato", Region: "Salem", TargetPrice: 30, Direction: models.DirectionAbove, Enabled: true}
	below := models.PriceAlert{ID: "a2", Crop: "Onion", TargetPrice: 15, Direction: models.DirectionBelow, Enabled: true}

	cases := []struct {
		name  string
		alert models.PriceAlert
		u     models.PriceUpdate
		want  bool
	}{
		{"above crossed", above, models.PriceUpdate{Crop: "tomato", Region: "SALEM", Price: 31}, true},
		{"above at threshold", above, models.PriceUpdate{Crop: "Tomato", Region: "Salem", Price: 30}, true},
		{"above not reached", above, models.PriceUpdate{Crop: "Tomato", Region: "Salem", Price: 29.5}, false},
		{"other region", above, models.PriceUpdate{Crop: "Tomato", Region: "Erode", Price: 40}, false},
		{"other crop", above, models.PriceUpdate{Crop: "Onion", Region: "Salem", Price: 40}, false},
		{"below any region", below, models.PriceUpdate{Crop: "Onion", Region: "Nashik", Price: 12}, true},
		{"below not reached", below, models.PriceUpdate{Crop: "Onion", Price: 16}, false},
		{"disabled", models.PriceAlert{Crop: "Onion", TargetPrice: 15, Direction: models.DirectionBelow}, models.PriceUpdate{Crop: "Onion", Price: 1}, false},
		{"unknown direction", models.PriceAlert{Crop: "Onion", TargetPrice: 15, Direction: "sideways", Enabled: true}, models.PriceUpdate{Crop: "Onion", Price: 1}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Matches(tc.alert, tc.u))
		})
	}
}

func TestEvaluatorCooldown(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	e := NewEvaluator(30 * time.Second)
	e.Now = func() time.Time { return now }

	alerts := []models.PriceAlert{{ID: "a1", Crop: "Chilli", TargetPrice: 80, Direction: models.DirectionAbove, Enabled: true}}
	u := models.PriceUpdate{Crop: "Chilli", Region: "Guntur", Price: 85}

	fired := e.Evaluate(alerts, u)
	require.Len(t, fired, 1)
	assert.Equal(t, "a1", fired[0].AlertID)
	assert.Equal(t, models.DirectionAbove, fired[0].Triggered)
	assert.Equal(t, 80.0, fired[0].Threshold)

	now = now.Add(10 * time.Second)
	assert.Empty(t, e.Evaluate(alerts, u))

	now = now.Add(25 * time.Second)
	assert.Len(t, e.Evaluate(alerts, u), 1)
}

func TestNewEvaluatorDefaultsCooldown(t *testing.T) {
	assert.Equal(t, DefaultCooldown, NewEvaluator(0).Cooldown)
}

func TestMatchListings(t *testing.T) {
	alerts := []models.PriceAlert{
		{ID: "a1", Crop: "Tomato", TargetPrice: 25, Direction: models.DirectionAbove, Enabled: true},
		{ID: "a2", Crop: "Paddy", Region: "Thanjavur", TargetPrice: 21, Direction: models.DirectionBelow, Enabled: true},
	}
	listings := []models.Listing{
		{ID: 1, Crop: "Tomato", Location: "Coimbatore", Price: 28, UpdatedAt: 1700000000000},
		{ID: 5, Crop: "Paddy", Location: "Thanjavur", Price: 22},
	}

	got := MatchListings(alerts, listings)
	require.Len(t, got, 1)
	assert.Equal(t, "a1", got[0].AlertID)
	assert.Equal(t, "Coimbatore", got[0].Region)
	assert.Equal(t, "2023-11-14T22:13:20Z", got[0].Timestamp)
}
