package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agromarket/internal/models"
)

func TestCreateAlertGeneratesID(t *testing.T) {
	env := newTestEnv(t)

	w, resp := env.do(t, http.MethodPost, "/alerts", AlertRequest{
		Crop: "Tomato", Region: "Coimbatore", TargetPrice: 30, Direction: models.DirectionAbove,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var alert models.PriceAlert
	require.NoError(t, json.Unmarshal(resp.Data, &alert))
	_, err := uuid.Parse(alert.ID)
	assert.NoError(t, err)
	assert.True(t, alert.Enabled)
	assert.Equal(t, []models.PriceAlert{alert}, env.api.Store.PriceAlerts())
}

func TestCreateAlertKeepsClientID(t *testing.T) {
	env := newTestEnv(t)

	w, resp := env.do(t, http.MethodPost, "/alerts", AlertRequest{
		ID: "device-7", Crop: "Onion", TargetPrice: 15, Direction: models.DirectionBelow,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var alert models.PriceAlert
	require.NoError(t, json.Unmarshal(resp.Data, &alert))
	assert.Equal(t, "device-7", alert.ID)

	w, _ = env.do(t, http.MethodPost, "/alerts", AlertRequest{
		ID: "device-7", Crop: "Onion", TargetPrice: 12, Direction: models.DirectionBelow,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	alerts := env.api.Store.PriceAlerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, 12.0, alerts[0].TargetPrice)
}

func TestCreateAlertValidation(t *testing.T) {
	env := newTestEnv(t)

	for name, req := range map[string]AlertRequest{
		"missing crop":        {TargetPrice: 30, Direction: models.DirectionAbove},
		"bad direction":       {Crop: "Onion", TargetPrice: 30, Direction: "sideways"},
		"non-positive target": {Crop: "Onion", Direction: models.DirectionBelow},
	} {
		t.Run(name, func(t *testing.T) {
			w, resp := env.do(t, http.MethodPost, "/alerts", req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.NotEmpty(t, resp.Error)
		})
	}
	assert.Empty(t, env.api.Store.PriceAlerts())
}

func TestUpdateBrowseAndDeleteAlerts(t *testing.T) {
	env := newTestEnv(t)
	disabled := false

	w, _ := env.do(t, http.MethodPut, "/alerts/onion-salem", AlertRequest{
		Crop: "Onion", Region: "Salem", TargetPrice: 15, Direction: models.DirectionBelow,
	})
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = env.do(t, http.MethodPut, "/alerts/chilli", AlertRequest{
		Crop: "Chilli", TargetPrice: 90, Direction: models.DirectionAbove,
	})
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = env.do(t, http.MethodPut, "/alerts/onion-salem", AlertRequest{
		Crop: "Onion", Region: "Salem", TargetPrice: 14, Direction: models.DirectionBelow, Enabled: &disabled,
	})
	require.Equal(t, http.StatusOK, w.Code)

	w, resp := env.do(t, http.MethodGet, "/alerts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.PriceAlert
	require.NoError(t, json.Unmarshal(resp.Data, &list))
	require.Len(t, list, 2)
	assert.Equal(t, "chilli", list[0].ID)
	assert.Equal(t, "onion-salem", list[1].ID)
	assert.Equal(t, 14.0, list[1].TargetPrice)
	assert.False(t, list[1].Enabled)

	w, resp = env.do(t, http.MethodGet, "/alerts?crop=onion", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(resp.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "onion-salem", list[0].ID)

	w, _ = env.do(t, http.MethodDelete, "/alerts/chilli", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = env.do(t, http.MethodDelete, "/alerts/missing", nil)
	require.Equal(t, http.StatusOK, w.Code)

	alerts := env.api.Store.PriceAlerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, "onion-salem", alerts[0].ID)
}

func TestTriggeredAlerts(t *testing.T) {
	env := newTestEnv(t)
	_, _ = env.do(t, http.MethodPost, "/listings/sync", nil)
	_, _ = env.do(t, http.MethodPut, "/alerts/tomato", AlertRequest{
		Crop: "tomato", TargetPrice: 30, Direction: models.DirectionBelow,
	})
	_, _ = env.do(t, http.MethodPut, "/alerts/chilli", AlertRequest{
		Crop: "Chilli", TargetPrice: 90, Direction: models.DirectionAbove,
	})

	w, resp := env.do(t, http.MethodGet, "/alerts/triggered", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var hits []models.AlertMessage
	require.NoError(t, json.Unmarshal(resp.Data, &hits))
	require.Len(t, hits, 1)
	assert.Equal(t, "tomato", hits[0].AlertID)
	assert.Equal(t, 28.0, hits[0].Price)
	assert.Equal(t, models.DirectionBelow, hits[0].Triggered)
}
