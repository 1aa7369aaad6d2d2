package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agromarket/internal/models"
)

type listingsData struct {
	Listings []models.Listing `json:"listings"`
	Offline  bool             `json:"offline"`
}

func TestCreateAndBrowseListings(t *testing.T) {
	env := newTestEnv(t)

	w, resp := env.do(t, http.MethodPost, "/listings", models.NewListing{
		Farmer: "Kavya R", Crop: "Banana", Qty: "150 kg", Price: 40, Location: "Trichy",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created models.Listing
	require.NoError(t, json.Unmarshal(resp.Data, &created))
	assert.GreaterOrEqual(t, created.ID, 1001)
	assert.LessOrEqual(t, created.ID, 9999)
	assert.Equal(t, 36.0, created.FairMin)
	assert.Equal(t, 46.0, created.FairMax)
	assert.Equal(t, models.OriginLocal, created.Origin)

	w, resp = env.do(t, http.MethodGet, "/listings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got listingsData
	require.NoError(t, json.Unmarshal(resp.Data, &got))
	require.Len(t, got.Listings, 1)
	assert.Equal(t, created.ID, got.Listings[0].ID)
	assert.False(t, got.Offline)
}

func TestCreateListingRequiresFields(t *testing.T) {
	env := newTestEnv(t)

	for name, body := range map[string]any{
		"missing crop":  models.NewListing{Qty: "10 kg", Price: 20},
		"missing qty":   models.NewListing{Crop: "Okra", Price: 20},
		"zero price":    models.NewListing{Crop: "Okra", Qty: "10 kg"},
		"not an object": "okra",
	} {
		t.Run(name, func(t *testing.T) {
			w, resp := env.do(t, http.MethodPost, "/listings", body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.NotEmpty(t, resp.Error)
		})
	}
	assert.Empty(t, env.api.Store.Listings())
}

func TestSyncListingsMergesLocalAdditions(t *testing.T) {
	env := newTestEnv(t)
	_, _ = env.do(t, http.MethodPost, "/listings", models.NewListing{Crop: "Banana", Qty: "150 kg", Price: 40})

	w, resp := env.do(t, http.MethodPost, "/listings/sync", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got listingsData
	require.NoError(t, json.Unmarshal(resp.Data, &got))
	require.Len(t, got.Listings, 6)
	assert.Equal(t, 1, got.Listings[0].ID)
	assert.Equal(t, "Banana", got.Listings[5].Crop)
}

func TestSyncListingsFailureKeepsCache(t *testing.T) {
	env := newTestEnv(t)
	_, _ = env.do(t, http.MethodPost, "/listings/sync", nil)
	env.fetchErr = errors.New("connection refused")

	w, resp := env.do(t, http.MethodPost, "/listings/sync", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.NotEmpty(t, resp.Error)
	assert.Len(t, env.api.Store.Listings(), 5)
}

func TestExportListings(t *testing.T) {
	env := newTestEnv(t)
	_, _ = env.do(t, http.MethodPost, "/listings/sync", nil)

	w, _ := env.do(t, http.MethodGet, "/listings/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".csv")
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 6)
	assert.True(t, strings.HasPrefix(lines[0], "ID,Farmer,Crop,Quantity,Price"))

	w, _ = env.do(t, http.MethodGet, "/listings/export?format=xlsx", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".xlsx")
	assert.True(t, strings.HasPrefix(w.Body.String(), "PK"))

	w, resp := env.do(t, http.MethodGet, "/listings/export?format=pdf", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotEmpty(t, resp.Error)
}
