package models

import "time"

// GeoBounds is the bounding box of the transactions behind a snapshot,
// in WGS84. Used by the map view.
type GeoBounds struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// QuarterPoint is one point of a quarterly price series, labelled YYYY-Qn.
type QuarterPoint struct {
	Label               string  `json:"label"`
	AveragePricePerArea float64 `json:"average_price_per_area"`
	TransactionCount    int     `json:"transaction_count"`
}

// MarketSnapshot is a computed, non-persisted aggregate over the
// transactions matching a (postal code, property type, window) slice.
// Aggregates are nil when no transaction carries a price-per-area.
type MarketSnapshot struct {
	PostalCode          string         `json:"postal_code"`
	PropertyType        string         `json:"property_type"`
	Start               time.Time      `json:"start"`
	End                 time.Time      `json:"end"`
	TransactionCount    int            `json:"transaction_count"`
	AveragePricePerArea *float64       `json:"average_price_per_area"`
	MedianPricePerArea  *float64       `json:"median_price_per_area"`
	MinPricePerArea     *float64       `json:"min_price_per_area"`
	MaxPricePerArea     *float64       `json:"max_price_per_area"`
	Quarters            []QuarterPoint `json:"quarters"`
	Bounds              *GeoBounds     `json:"bounds,omitempty"`
}

// Classification of a listing price against the market average.
type Classification string

const (
	Overpriced  Classification = "OVERPRICED"
	Underpriced Classification = "UNDERPRICED"
	Fair        Classification = "FAIR"
)

// ComparisonResult positions a listing against a market snapshot.
// Classification and DeviationPct are nil when the snapshot has no
// average to compare against.
type ComparisonResult struct {
	ListingPricePerArea float64         `json:"listing_price_per_area"`
	DeviationPct        *float64        `json:"deviation_pct,omitempty"`
	Classification      *Classification `json:"classification,omitempty"`
	Recommendation      string          `json:"recommendation"`
}

// GlobalStats summarizes everything currently in the store plus the
// import-run history.
type GlobalStats struct {
	TotalTransactions     int64      `json:"total_transactions"`
	CoveredDepartments    int        `json:"covered_departments"`
	AvailableYears        []string   `json:"available_years"`
	AvgPricePerArea       *float64   `json:"avg_price_per_area"`
	MedianPricePerArea    *float64   `json:"median_price_per_area"`
	LastUpdate            *time.Time `json:"last_update"`
	CompletedImportCount  int        `json:"completed_import_count"`
	InProgressImportCount int        `json:"in_progress_import_count"`
}
