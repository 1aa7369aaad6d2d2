package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"agromarket/internal/cache"
	"agromarket/internal/diagnosis"
	"agromarket/internal/logger"
	"agromarket/internal/models"
	"agromarket/internal/translate"
)

const (
	weatherCacheTTL   = 30 * time.Minute
	translateCacheTTL = 24 * time.Hour
	scansPageSize     = 50
)

// GetWeather returns current conditions at lat/lon, falling back to the
// configured default location.
func (a *API) GetWeather(c *gin.Context) {
	ctx, span, traceID := startSpan(c, "GetWeather")
	defer span.End()

	lat, err := queryFloat(c, "lat", a.DefaultLat)
	if err != nil {
		abortError(c, http.StatusBadRequest, "Invalid lat")
		return
	}
	lon, err := queryFloat(c, "lon", a.DefaultLon)
	if err != nil {
		abortError(c, http.StatusBadRequest, "Invalid lon")
		return
	}

	cacheKey := generateCacheKey(c.Request, "weather_")
	if cached, err := cache.GetCache(ctx, cacheKey, "/weather", a.Instance); err == nil && cached != "" {
		logger.Log.Info("Cache hit for /weather",
			zap.String("trace_id", traceID),
			zap.String("cache_key", cacheKey),
		)
		c.Data(http.StatusOK, "application/json", []byte(cached))
		return
	}

	w, err := a.Weather.Current(ctx, lat, lon)
	if err != nil {
		logger.Log.Error("Weather fetch failed",
			zap.String("trace_id", traceID),
			zap.Float64("lat", lat),
			zap.Float64("lon", lon),
			zap.Error(err),
		)
		abortError(c, http.StatusBadGateway, "Weather service unavailable")
		return
	}

	a.respondCached(c, traceID, cacheKey, "/weather", weatherCacheTTL, Response{
		Message: "Weather retrieved successfully",
		Data:    w,
	})
}

type translateRequest struct {
	Text string `json:"text"`
	Lang string `json:"lang"`
}

// TranslateText translates UI text. Upstream failures return the source
// text so the client can always render something.
func (a *API) TranslateText(c *gin.Context) {
	ctx, span, traceID := startSpan(c, "TranslateText")
	defer span.End()

	var req translateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	cacheKey := hashKey("translate_", req.Lang+"\x00"+req.Text)
	if cached, err := cache.GetCache(ctx, cacheKey, "/translate", a.Instance); err == nil && cached != "" {
		c.Data(http.StatusOK, "application/json", []byte(cached))
		return
	}

	translated, err := a.Translator.Translate(ctx, req.Text, req.Lang)
	if errors.Is(err, translate.ErrEmptyText) {
		abortError(c, http.StatusBadRequest, "Missing required field: text")
		return
	}
	if err != nil {
		logger.Log.Warn("Translation failed, returning source text",
			zap.String("trace_id", traceID),
			zap.String("lang", req.Lang),
			zap.Error(err),
		)
		c.JSON(http.StatusOK, Response{
			Message: "Translation unavailable",
			Data:    gin.H{"text": req.Text, "lang": translate.SourceLanguage},
		})
		return
	}

	a.respondCached(c, traceID, cacheKey, "/translate", translateCacheTTL, Response{
		Message: "Text translated successfully",
		Data:    gin.H{"text": translated, "lang": req.Lang},
	})
}

type diagnoseRequest struct {
	ImageURL string `json:"imageUrl"`
}

// Diagnose classifies a leaf image for the calling user and records the
// result when scan storage is configured.
func (a *API) Diagnose(c *gin.Context) {
	ctx, span, traceID := startSpan(c, "Diagnose")
	defer span.End()

	userID, ok := callerID(c)
	if !ok {
		abortError(c, http.StatusUnauthorized, "Not authenticated")
		return
	}

	if a.Limiter != nil && a.DiagnosePerMinute > 0 {
		res, err := a.Limiter.Allow(ctx, "diagnose:"+userID, redis_rate.PerMinute(a.DiagnosePerMinute))
		if err != nil {
			logger.Log.Warn("Rate limiter unavailable, allowing request",
				zap.String("trace_id", traceID),
				zap.Error(err),
			)
		} else if res.Allowed == 0 {
			c.Header("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())+1))
			abortError(c, http.StatusTooManyRequests, "Rate limit exceeded, please try again later.")
			return
		}
	}

	var req diagnoseRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.ImageURL) == "" {
		abortError(c, http.StatusBadRequest, "imageUrl required")
		return
	}

	result, err := a.Diagnoser.Diagnose(ctx, req.ImageURL)
	if err != nil {
		logger.Log.Error("Diagnosis failed",
			zap.String("trace_id", traceID),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		switch {
		case errors.Is(err, diagnosis.ErrRateLimited):
			abortError(c, http.StatusTooManyRequests, "Rate limit exceeded, please try again later.")
		case errors.Is(err, diagnosis.ErrCreditsExhausted):
			abortError(c, http.StatusPaymentRequired, "AI credits exhausted. Please add funds.")
		case errors.Is(err, diagnosis.ErrNotConfigured):
			abortError(c, http.StatusServiceUnavailable, "Diagnosis is not configured")
		default:
			abortError(c, http.StatusInternalServerError, "AI analysis failed")
		}
		return
	}

	scan := &models.ScanRecord{
		ID:        uuid.New().String(),
		UserID:    userID,
		ImageURL:  req.ImageURL,
		Diagnosis: *result,
		CreatedAt: time.Now().UTC(),
	}
	if a.Scans != nil {
		if err := a.Scans.CreateScan(ctx, scan); err != nil {
			logger.Log.Error("Failed to save scan result",
				zap.String("trace_id", traceID),
				zap.String("scan_id", scan.ID),
				zap.Error(err),
			)
			abortError(c, http.StatusInternalServerError, "Failed to save scan result")
			return
		}
	}

	logger.Log.Info("Plant diagnosed",
		zap.String("trace_id", traceID),
		zap.String("scan_id", scan.ID),
		zap.String("disease", scan.DiseaseName),
		zap.Float64("confidence", scan.Confidence),
	)
	c.JSON(http.StatusOK, Response{
		Message: "Diagnosis completed successfully",
		Data:    scan,
	})
}

// BrowseScans lists the caller's recent diagnoses.
func (a *API) BrowseScans(c *gin.Context) {
	ctx, span, traceID := startSpan(c, "BrowseScans")
	defer span.End()

	userID, ok := callerID(c)
	if !ok {
		abortError(c, http.StatusUnauthorized, "Not authenticated")
		return
	}

	scans, err := a.Scans.ListScansByUser(ctx, userID, scansPageSize)
	if err != nil {
		logger.Log.Error("Failed to fetch scans",
			zap.String("trace_id", traceID),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		abortError(c, http.StatusInternalServerError, "Failed to fetch scans")
		return
	}
	if scans == nil {
		scans = []*models.ScanRecord{}
	}
	c.JSON(http.StatusOK, Response{
		Message: "Scans retrieved successfully",
		Data:    scans,
	})
}

// respondCached writes resp and stores the encoded body under cacheKey.
func (a *API) respondCached(c *gin.Context, traceID, cacheKey, endpoint string, ttl time.Duration, resp Response) {
	respBytes, err := json.Marshal(resp)
	if err != nil {
		logger.Log.Error("Failed to encode JSON response",
			zap.String("trace_id", traceID),
			zap.Error(err),
		)
		abortError(c, http.StatusInternalServerError, "Failed to encode JSON response")
		return
	}
	if cacheErr := cache.SetCache(c.Request.Context(), cacheKey, string(respBytes), ttl, endpoint, a.Instance); cacheErr != nil {
		logger.Log.Warn("Failed to store response in cache",
			zap.String("trace_id", traceID),
			zap.String("cache_key", cacheKey),
			zap.Error(cacheErr),
		)
	}
	c.Data(http.StatusOK, "application/json", respBytes)
}

// callerID identifies the caller from X-User-ID, or from a digest of the
// bearer token when that header is absent. A request without an
// Authorization header is anonymous.
func callerID(c *gin.Context) (string, bool) {
	auth := strings.TrimSpace(c.GetHeader("Authorization"))
	if auth == "" {
		return "", false
	}
	if id := strings.TrimSpace(c.GetHeader("X-User-ID")); id != "" {
		return id, true
	}
	return hashKey("user_", strings.TrimPrefix(auth, "Bearer ")), true
}

func queryFloat(c *gin.Context, name string, fallback float64) (float64, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(raw, 64)
}
