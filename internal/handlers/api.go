package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"agromarket/internal/logger"
	"agromarket/internal/market"
	"agromarket/internal/models"
	"agromarket/internal/tracing"
)

type Response struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type WeatherService interface {
	Current(ctx context.Context, lat, lon float64) (*models.Weather, error)
}

type Translator interface {
	Translate(ctx context.Context, text, lang string) (string, error)
}

type Diagnoser interface {
	Diagnose(ctx context.Context, imageURL string) (*models.Diagnosis, error)
}

// ScanRecorder persists diagnosis results.
type ScanRecorder interface {
	CreateScan(ctx context.Context, scan *models.ScanRecord) error
	ListScansByUser(ctx context.Context, userID string, limit int) ([]*models.ScanRecord, error)
}

// API serves the market store and the external-service proxies. Optional
// collaborators left nil disable the routes or features that need them.
type API struct {
	Store      *market.Store
	Weather    WeatherService
	Translator Translator
	Diagnoser  Diagnoser
	Scans      ScanRecorder
	Limiter    *redis_rate.Limiter
	Hub        *ListingHub

	Instance          string
	DefaultLat        float64
	DefaultLon        float64
	DiagnosePerMinute int
}

// Router builds the gin engine with every route registered.
func (a *API) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(), cors())

	r.GET("/health", a.Health)
	r.GET("/status", a.Status)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	listings := r.Group("/listings")
	listings.GET("", a.BrowseListings)
	listings.POST("", a.CreateListing)
	listings.POST("/sync", a.SyncListings)
	listings.GET("/export", a.ExportListings)
	if a.Hub != nil {
		listings.GET("/ws", a.ListingsSocket)
	}

	alerts := r.Group("/alerts")
	alerts.GET("", a.BrowseAlerts)
	alerts.POST("", a.CreateAlert)
	alerts.GET("/triggered", a.TriggeredAlerts)
	alerts.GET("/stream", gin.WrapF(StreamAlertsHandler))
	alerts.PUT("/:id", a.UpdateAlert)
	alerts.DELETE("/:id", a.DeleteAlert)

	if a.Weather != nil {
		r.GET("/weather", a.GetWeather)
	}
	if a.Translator != nil {
		r.POST("/translate", a.TranslateText)
	}
	if a.Diagnoser != nil {
		r.POST("/diagnose", a.Diagnose)
	}
	if a.Scans != nil {
		r.GET("/scans", a.BrowseScans)
	}
	return r
}

func (a *API) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *API) Status(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Message: "Status retrieved successfully",
		Data: gin.H{
			"instance":     a.Instance,
			"offline":      a.Store.IsOffline(),
			"listings":     len(a.Store.Listings()),
			"price_alerts": len(a.Store.PriceAlerts()),
		},
	})
}

func startSpan(c *gin.Context, name string) (context.Context, trace.Span, string) {
	ctx, span := otel.Tracer(tracing.TracerName).Start(c.Request.Context(), name)
	return ctx, span, span.SpanContext().TraceID().String()
}

func abortError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Log.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func generateCacheKey(r *http.Request, prefix string) string {
	queryParams := r.URL.Query()
	var keys []string
	for k := range queryParams {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var queryString []string
	for _, k := range keys {
		queryString = append(queryString, fmt.Sprintf("%s=%s", k, strings.Join(queryParams[k], ",")))
	}
	return hashKey(prefix, strings.Join(queryString, "&"))
}

func hashKey(prefix, s string) string {
	hash := sha256.Sum256([]byte(s))
	return prefix + hex.EncodeToString(hash[:8])
}
