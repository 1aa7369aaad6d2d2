package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"agromarket/internal/alerts"
	"agromarket/internal/cache"
	"agromarket/internal/logger"
	"agromarket/internal/models"
)

const browseAlertsPrefix = "browse_alerts_"

type AlertRequest struct {
	ID          string           `json:"id,omitempty"`
	Crop        string           `json:"crop"`
	Region      string           `json:"region"`
	TargetPrice float64          `json:"targetPrice"`
	Direction   models.Direction `json:"direction"`
	Enabled     *bool            `json:"enabled,omitempty"`
}

func (r AlertRequest) toAlert(id string) models.PriceAlert {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	return models.PriceAlert{
		ID:          id,
		Crop:        strings.TrimSpace(r.Crop),
		Region:      strings.TrimSpace(r.Region),
		TargetPrice: r.TargetPrice,
		Direction:   r.Direction,
		Enabled:     enabled,
	}
}

func (r AlertRequest) validate() string {
	if strings.TrimSpace(r.Crop) == "" {
		return "Missing required field: crop"
	}
	if r.TargetPrice <= 0 {
		return "targetPrice must be positive"
	}
	if !r.Direction.Valid() {
		return "direction must be above or below"
	}
	return ""
}

// BrowseAlerts lists price alerts, optionally filtered by crop.
func (a *API) BrowseAlerts(c *gin.Context) {
	ctx, span, traceID := startSpan(c, "BrowseAlerts")
	defer span.End()

	cacheKey := generateCacheKey(c.Request, browseAlertsPrefix)
	cached, err := cache.GetCache(ctx, cacheKey, "/alerts", a.Instance)
	if err == nil && cached != "" {
		logger.Log.Info("Cache hit for /alerts",
			zap.String("trace_id", traceID),
			zap.String("cache_key", cacheKey),
		)
		c.Data(http.StatusOK, "application/json", []byte(cached))
		return
	}

	crop := c.Query("crop")
	list := a.Store.PriceAlerts()
	if crop != "" {
		filtered := list[:0]
		for _, al := range list {
			if strings.EqualFold(al.Crop, crop) {
				filtered = append(filtered, al)
			}
		}
		list = filtered
	}

	respBytes, err := json.Marshal(Response{
		Message: "Alerts retrieved successfully",
		Data:    list,
	})
	if err != nil {
		logger.Log.Error("Failed to encode JSON response",
			zap.String("trace_id", traceID),
			zap.Error(err),
		)
		abortError(c, http.StatusInternalServerError, "Failed to encode JSON response")
		return
	}

	if cacheErr := cache.SetCache(ctx, cacheKey, string(respBytes), 30*time.Second, "/alerts", a.Instance); cacheErr != nil {
		logger.Log.Warn("Failed to store response in cache",
			zap.String("trace_id", traceID),
			zap.String("cache_key", cacheKey),
			zap.Error(cacheErr),
		)
	}
	c.Data(http.StatusOK, "application/json", respBytes)
}

// CreateAlert stores a price alert under the client-supplied id, or a
// generated one when the id is empty.
func (a *API) CreateAlert(c *gin.Context) {
	ctx, span, traceID := startSpan(c, "CreateAlert")
	defer span.End()

	var req AlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Log.Error("Failed to parse request body",
			zap.String("trace_id", traceID),
			zap.Error(err),
		)
		abortError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		abortError(c, http.StatusBadRequest, msg)
		return
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.New().String()
	}
	alert := req.toAlert(id)
	a.Store.SavePriceAlert(ctx, alert)
	cache.InvalidateByPrefix(ctx, browseAlertsPrefix, "/alerts", a.Instance)

	logger.Log.Info("Price alert created",
		zap.String("trace_id", traceID),
		zap.String("alert_id", alert.ID),
		zap.String("crop", alert.Crop),
	)
	c.JSON(http.StatusCreated, Response{
		Message: "Alert created successfully",
		Data:    alert,
	})
}

// UpdateAlert replaces the alert with the path id, creating it if absent.
func (a *API) UpdateAlert(c *gin.Context) {
	ctx, span, traceID := startSpan(c, "UpdateAlert")
	defer span.End()

	alertID := c.Param("id")
	var req AlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Log.Error("Failed to parse request body",
			zap.String("trace_id", traceID),
			zap.Error(err),
		)
		abortError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		abortError(c, http.StatusBadRequest, msg)
		return
	}

	alert := req.toAlert(alertID)
	a.Store.SavePriceAlert(ctx, alert)
	cache.InvalidateByPrefix(ctx, browseAlertsPrefix, "/alerts", a.Instance)

	logger.Log.Info("Price alert updated",
		zap.String("trace_id", traceID),
		zap.String("alert_id", alertID),
	)
	c.JSON(http.StatusOK, Response{
		Message: "Alert updated successfully",
		Data:    alert,
	})
}

func (a *API) DeleteAlert(c *gin.Context) {
	ctx, span, traceID := startSpan(c, "DeleteAlert")
	defer span.End()

	alertID := c.Param("id")
	a.Store.RemovePriceAlert(ctx, alertID)
	cache.InvalidateByPrefix(ctx, browseAlertsPrefix, "/alerts", a.Instance)

	logger.Log.Info("Price alert deleted",
		zap.String("trace_id", traceID),
		zap.String("alert_id", alertID),
	)
	c.JSON(http.StatusOK, Response{Message: "Alert deleted successfully"})
}

// TriggeredAlerts evaluates every enabled alert against the current listings.
func (a *API) TriggeredAlerts(c *gin.Context) {
	_, span, traceID := startSpan(c, "TriggeredAlerts")
	defer span.End()

	hits := alerts.MatchListings(a.Store.PriceAlerts(), a.Store.Listings())
	if hits == nil {
		hits = []models.AlertMessage{}
	}
	logger.Log.Debug("Triggered alerts evaluated",
		zap.String("trace_id", traceID),
		zap.Int("count", len(hits)),
	)
	c.JSON(http.StatusOK, Response{
		Message: "Triggered alerts retrieved successfully",
		Data:    hits,
	})
}
