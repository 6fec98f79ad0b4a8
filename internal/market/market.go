package market

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"dvfmarket/server/internal/models"
	"dvfmarket/server/internal/stats"
)

var (
	ErrListingNotFound = errors.New("listing not found")
	ErrNotInFrance     = errors.New("market analysis is only available for listings located in France")
	ErrNoPostalCode    = errors.New("listing has no postal code")
	ErrInvalidArea     = errors.New("listing area must be positive")
)

// Classification thresholds, in percent deviation from the market average.
const (
	overpricedThreshold  = 10.0
	underpricedThreshold = -10.0
)

// Area band for comparable transactions: ±20% around the listing area.
const similarAreaBand = 0.2

// similarLookback is the default window for comparable lookups.
const similarLookbackYears = 5

var recommendations = map[models.Classification]string{
	models.Overpriced:  "The asking price is above the local market. Consider negotiating or lowering the price.",
	models.Underpriced: "The asking price is below the local market. This may be a good opportunity.",
	models.Fair:        "The asking price is in line with the local market.",
}

const noMarketDataRecommendation = "Not enough market data in this area to evaluate the asking price."

// ListingSource provides the read-only listing view from the surrounding
// application.
type ListingSource interface {
	GetListing(id int64) (*models.Listing, error)
}

// Repository is the read-only slice of the store the engine needs.
type Repository interface {
	SimilarTransactions(postalCode, typeLabel string, start, end time.Time, minArea, maxArea, area float64, limit int) ([]models.Transaction, error)
}

// SnapshotEngine computes market snapshots; implemented by stats.Engine.
type SnapshotEngine interface {
	ComputeSnapshot(postalCode, propertyType string, start, end time.Time) (models.MarketSnapshot, error)
}

// Service positions listings against the DVF market data.
type Service struct {
	listings ListingSource
	repo     Repository
	stats    SnapshotEngine
	logger   *logrus.Logger
}

func NewService(listings ListingSource, repo Repository, snapshots SnapshotEngine, logger *logrus.Logger) *Service {
	return &Service{
		listings: listings,
		repo:     repo,
		stats:    snapshots,
		logger:   logger,
	}
}

// CompareListing positions a listing price against a snapshot. When the
// snapshot carries no average, the result has no classification: the
// absence of market data is explicit, not a default FAIR.
func CompareListing(listingPrice, listingArea float64, snapshot models.MarketSnapshot) (models.ComparisonResult, error) {
	if listingArea <= 0 {
		return models.ComparisonResult{}, ErrInvalidArea
	}

	result := models.ComparisonResult{
		ListingPricePerArea: listingPrice / listingArea,
		Recommendation:      noMarketDataRecommendation,
	}

	if snapshot.AveragePricePerArea == nil || *snapshot.AveragePricePerArea == 0 {
		return result, nil
	}

	avg := *snapshot.AveragePricePerArea
	deviation := (result.ListingPricePerArea - avg) / avg * 100
	result.DeviationPct = &deviation

	classification := models.Fair
	switch {
	case deviation > overpricedThreshold:
		classification = models.Overpriced
	case deviation < underpricedThreshold:
		classification = models.Underpriced
	}
	result.Classification = &classification
	result.Recommendation = recommendations[classification]

	return result, nil
}

// MarketDataForListing computes the snapshot for a listing's location and
// type, plus the price comparison when the listing has a usable area.
// Fails with a domain error for listings outside France or without a
// postal code.
func (s *Service) MarketDataForListing(listingID int64, start, end time.Time) (models.MarketSnapshot, *models.ComparisonResult, error) {
	listing, err := s.listings.GetListing(listingID)
	if err != nil {
		return models.MarketSnapshot{}, nil, fmt.Errorf("failed to load listing %d: %w", listingID, err)
	}
	if listing == nil {
		return models.MarketSnapshot{}, nil, ErrListingNotFound
	}
	if !isFrance(listing.Country) {
		return models.MarketSnapshot{}, nil, ErrNotInFrance
	}
	if listing.PostalCode == "" {
		return models.MarketSnapshot{}, nil, ErrNoPostalCode
	}

	snapshot, err := s.stats.ComputeSnapshot(listing.PostalCode, listing.PropertyType, start, end)
	if err != nil {
		return models.MarketSnapshot{}, nil, err
	}

	if listing.BuiltArea == nil || *listing.BuiltArea <= 0 {
		return snapshot, nil, nil
	}

	comparison, err := CompareListing(listing.Price, *listing.BuiltArea, snapshot)
	if err != nil {
		return snapshot, nil, err
	}
	return snapshot, &comparison, nil
}

// FindSimilarTransactions returns historical transactions comparable to
// the listing: same postal code and type, built area within ±20%, closest
// area first. Empty when the listing lacks a postal code or area.
func (s *Service) FindSimilarTransactions(listingID int64, limit int) ([]models.Transaction, error) {
	listing, err := s.listings.GetListing(listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load listing %d: %w", listingID, err)
	}
	if listing == nil {
		return nil, ErrListingNotFound
	}

	if listing.PostalCode == "" || listing.BuiltArea == nil || *listing.BuiltArea <= 0 {
		return []models.Transaction{}, nil
	}

	if limit <= 0 {
		limit = 10
	}

	area := *listing.BuiltArea
	end := time.Now()
	start := end.AddDate(-similarLookbackYears, 0, 0)

	return s.repo.SimilarTransactions(
		listing.PostalCode,
		stats.MapPropertyType(listing.PropertyType),
		start, end,
		area*(1-similarAreaBand), area*(1+similarAreaBand),
		area,
		limit,
	)
}

func isFrance(country string) bool {
	switch strings.ToUpper(strings.TrimSpace(country)) {
	case "FR", "FRA", "FRANCE":
		return true
	}
	return false
}
