package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"dvfmarket/server/config"
	"dvfmarket/server/internal/database"
	"dvfmarket/server/internal/geocoding"
	"dvfmarket/server/internal/ingest"
	"dvfmarket/server/internal/market"
	"dvfmarket/server/internal/notify"
	"dvfmarket/server/internal/stats"
)

type Handler struct {
	db           *database.Database
	orchestrator *ingest.Orchestrator
	statsEngine  *stats.Engine
	market       *market.Service
	hub          *notify.Hub
	geocoder     *geocoding.Geocoder
	logger       *logrus.Logger
}

type DateRange struct {
	StartDate string `form:"startDate"`
	EndDate   string `form:"endDate"`
}

type ImportRequest struct {
	Year       string `json:"year" binding:"required"`
	Department string `json:"department" binding:"required"`
	ActorID    string `json:"actor_id" binding:"required"`
}

func NewHandler(db *database.Database, orchestrator *ingest.Orchestrator, statsEngine *stats.Engine, marketService *market.Service, hub *notify.Hub, geocoder *geocoding.Geocoder, logger *logrus.Logger) *Handler {
	return &Handler{
		db:           db,
		orchestrator: orchestrator,
		statsEngine:  statsEngine,
		market:       marketService,
		hub:          hub,
		geocoder:     geocoder,
		logger:       logger,
	}
}

// StartImport accepts an import request and returns immediately; the
// terminal state is delivered over the notification socket.
func (h *Handler) StartImport(c *gin.Context) {
	var req ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Error("Failed to parse import request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request parameters"})
		return
	}

	run, err := h.orchestrator.StartImport(req.Year, req.Department, req.ActorID)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrImportInProgress):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, ingest.ErrInvalidYear), errors.Is(err, ingest.ErrInvalidDepartment):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logger.WithError(err).Error("Failed to start import")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start import"})
		}
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status": "accepted",
		"run":    run,
	})
}

// CleanVintage removes every transaction of one import year.
func (h *Handler) CleanVintage(c *gin.Context) {
	year := c.Param("year")

	deleted, err := h.orchestrator.CleanVintage(year)
	if err != nil {
		if errors.Is(err, ingest.ErrInvalidYear) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.WithError(err).Error("Failed to clean vintage")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clean vintage"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// GetVintage reports how many transactions a vintage currently holds,
// so an operator can check what a clean would remove.
func (h *Handler) GetVintage(c *gin.Context) {
	year := c.Param("year")

	count, err := h.db.CountByVintage(year)
	if err != nil {
		h.logger.WithError(err).Error("Failed to count vintage")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count vintage"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"year":         year,
		"transactions": count,
	})
}

// ListDepartments returns the departments exposed for import.
func (h *Handler) ListDepartments(c *gin.Context) {
	c.JSON(http.StatusOK, config.KnownDepartments)
}

// GetImportRun returns a single run by id.
func (h *Handler) GetImportRun(c *gin.Context) {
	runID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid run id"})
		return
	}

	run, err := h.db.GetImportRun(runID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get import run")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get import run"})
		return
	}
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Import run not found"})
		return
	}

	c.JSON(http.StatusOK, run)
}

// ListImportRuns returns the run history, newest first.
func (h *Handler) ListImportRuns(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "0"))
	if err != nil || page < 0 {
		page = 0
	}
	size, err := strconv.Atoi(c.DefaultQuery("size", "20"))
	if err != nil || size <= 0 {
		size = 20
	}

	runs, err := h.db.ListImportRuns(page, size)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list import runs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list import runs"})
		return
	}

	c.JSON(http.StatusOK, runs)
}

// GetGlobalStats summarizes the whole store.
func (h *Handler) GetGlobalStats(c *gin.Context) {
	globalStats, err := h.db.GlobalStats()
	if err != nil {
		h.logger.WithError(err).Error("Failed to get global stats")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get global stats"})
		return
	}

	c.JSON(http.StatusOK, globalStats)
}

// GetMarketSnapshot computes a snapshot for an arbitrary slice.
func (h *Handler) GetMarketSnapshot(c *gin.Context) {
	postalCode := c.Query("postalCode")
	if postalCode == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "postalCode is required"})
		return
	}

	start, end, err := h.parseWindow(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snapshot, err := h.statsEngine.ComputeSnapshot(postalCode, c.Query("propertyType"), start, end)
	if err != nil {
		h.logger.WithError(err).Error("Failed to compute snapshot")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute snapshot"})
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

// GetMarketDataForListing positions a listing against its local market.
func (h *Handler) GetMarketDataForListing(c *gin.Context) {
	listingID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing id"})
		return
	}

	start, end, err := h.parseWindow(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snapshot, comparison, err := h.market.MarketDataForListing(listingID, start, end)
	if err != nil {
		switch {
		case errors.Is(err, market.ErrListingNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, market.ErrNotInFrance), errors.Is(err, market.ErrNoPostalCode):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logger.WithError(err).Error("Failed to get market data for listing")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get market data"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"snapshot":   snapshot,
		"comparison": comparison,
	})
}

// FindSimilarTransactions lists comparables for a listing.
func (h *Handler) FindSimilarTransactions(c *gin.Context) {
	listingID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing id"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit <= 0 {
		limit = 10
	}

	transactions, err := h.market.FindSimilarTransactions(listingID, limit)
	if err != nil {
		if errors.Is(err, market.ErrListingNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.logger.WithError(err).Error("Failed to find similar transactions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to find similar transactions"})
		return
	}

	c.JSON(http.StatusOK, transactions)
}

// Notifications upgrades the connection to the actor's push channel.
func (h *Handler) Notifications(c *gin.Context) {
	actorID := c.Query("actorId")
	if actorID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "actorId is required"})
		return
	}

	if err := h.hub.Upgrade(c.Writer, c.Request, actorID); err != nil {
		h.logger.WithError(err).Error("Failed to upgrade notification socket")
	}
}

// BackfillCoordinates geocodes transactions that came without coordinates.
func (h *Handler) BackfillCoordinates(c *gin.Context) {
	err := h.db.UpdateMissingCoordinates(h.geocoder)
	if err != nil {
		h.logger.WithError(err).Error("Failed to backfill coordinates")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to backfill coordinates"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "Coordinate backfill completed",
	})
}

// parseWindow reads the optional date range; defaults to the last five
// years ending today.
func (h *Handler) parseWindow(c *gin.Context) (time.Time, time.Time, error) {
	var dateRange DateRange
	if err := c.ShouldBindQuery(&dateRange); err != nil {
		h.logger.WithError(err).Error("Failed to parse date range")
	}

	end := time.Now().Truncate(24 * time.Hour)
	if dateRange.EndDate != "" {
		parsed, err := time.Parse("2006-01-02", dateRange.EndDate)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("endDate must be formatted YYYY-MM-DD")
		}
		end = parsed
	}

	start := end.AddDate(-5, 0, 0)
	if dateRange.StartDate != "" {
		parsed, err := time.Parse("2006-01-02", dateRange.StartDate)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("startDate must be formatted YYYY-MM-DD")
		}
		start = parsed
	}

	return start, end, nil
}
