package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"agromarket/internal/logger"
	"agromarket/internal/models"
	"agromarket/internal/report"
)

type listingsPayload struct {
	Listings []models.Listing `json:"listings"`
	Offline  bool             `json:"offline"`
}

// BrowseListings returns the cached listings. The store answers from memory,
// so this works while offline.
func (a *API) BrowseListings(c *gin.Context) {
	_, span, traceID := startSpan(c, "BrowseListings")
	defer span.End()

	listings := a.Store.Listings()
	logger.Log.Debug("Listings served",
		zap.String("trace_id", traceID),
		zap.Int("count", len(listings)),
	)
	c.JSON(http.StatusOK, Response{
		Message: "Listings retrieved successfully",
		Data:    listingsPayload{Listings: listings, Offline: a.Store.IsOffline()},
	})
}

// CreateListing adds a local listing. Crop, quantity and a positive price
// are required.
func (a *API) CreateListing(c *gin.Context) {
	ctx, span, traceID := startSpan(c, "CreateListing")
	defer span.End()

	var req models.NewListing
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Log.Error("Failed to parse request body",
			zap.String("trace_id", traceID),
			zap.Error(err),
		)
		abortError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Crop) == "" || strings.TrimSpace(req.Qty) == "" || req.Price <= 0 {
		abortError(c, http.StatusBadRequest, "Missing required fields: crop, qty, price")
		return
	}

	listing := a.Store.AddListing(ctx, req)
	logger.Log.Info("Listing created",
		zap.String("trace_id", traceID),
		zap.Int("listing_id", listing.ID),
	)
	c.JSON(http.StatusCreated, Response{
		Message: "Listing created successfully",
		Data:    listing,
	})
}

// SyncListings runs a reconciliation immediately.
func (a *API) SyncListings(c *gin.Context) {
	ctx, span, traceID := startSpan(c, "SyncListings")
	defer span.End()

	if err := a.Store.Reconcile(ctx); err != nil {
		logger.Log.Warn("Manual listing sync failed",
			zap.String("trace_id", traceID),
			zap.Error(err),
		)
		abortError(c, http.StatusBadGateway, "Listing sync failed, showing cached listings")
		return
	}
	c.JSON(http.StatusOK, Response{
		Message: "Listings synced successfully",
		Data:    listingsPayload{Listings: a.Store.Listings(), Offline: a.Store.IsOffline()},
	})
}

// ExportListings streams the listings as CSV (default) or XLSX.
func (a *API) ExportListings(c *gin.Context) {
	_, span, traceID := startSpan(c, "ExportListings")
	defer span.End()

	format := strings.ToLower(c.DefaultQuery("format", "csv"))
	name := fmt.Sprintf("agromarket-listings-%s", time.Now().Format("2006-01-02"))
	listings := a.Store.Listings()

	var err error
	switch format {
	case "csv":
		c.Header("Content-Type", "text/csv")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".csv"))
		err = report.WriteCSV(c.Writer, listings)
	case "xlsx":
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".xlsx"))
		err = report.WriteXLSX(c.Writer, listings)
	default:
		abortError(c, http.StatusBadRequest, "Unsupported format, use csv or xlsx")
		return
	}

	if err != nil {
		logger.Log.Error("Failed to export listings",
			zap.String("trace_id", traceID),
			zap.String("format", format),
			zap.Error(err),
		)
		if !c.Writer.Written() {
			abortError(c, http.StatusInternalServerError, "Failed to export listings")
		}
	}
}

// ListingsSocket upgrades to a WebSocket that receives listing snapshots.
func (a *API) ListingsSocket(c *gin.Context) {
	a.Hub.ServeWS(c.Writer, c.Request, a.Store.Listings())
}
