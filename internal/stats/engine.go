package stats

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"

	"dvfmarket/server/internal/models"
)

// Repository is the read-only slice of the store the engine needs.
type Repository interface {
	FilterTransactions(postalCode, typeLabel string, start, end time.Time) ([]models.Transaction, error)
}

// Engine computes market snapshots over the transaction store. Pure and
// read-only; safe for concurrent callers.
type Engine struct {
	repo   Repository
	logger *logrus.Logger
}

func NewEngine(repo Repository, logger *logrus.Logger) *Engine {
	return &Engine{repo: repo, logger: logger}
}

// propertyTypeLabels translates the application vocabulary to the labels
// the DVF dataset uses in its type_local column.
var propertyTypeLabels = map[string]string{
	"HOUSE":      "Maison",
	"APARTMENT":  "Appartement",
	"COMMERCIAL": "Local industriel. commercial ou assimilé",
	"DEPENDENCY": "Dépendance",
}

// MapPropertyType returns the DVF label for an application property type.
// Unrecognized types pass through unchanged.
func MapPropertyType(propertyType string) string {
	if label, ok := propertyTypeLabels[strings.ToUpper(strings.TrimSpace(propertyType))]; ok {
		return label
	}
	return propertyType
}

// ComputeSnapshot aggregates price-per-area over the matching slice of the
// store. An empty slice yields a zero-count snapshot with nil aggregates,
// never an error.
//
// The median is the upper-middle element of the ordered values (index n/2),
// a documented approximation rather than an interpolated median.
func (e *Engine) ComputeSnapshot(postalCode, propertyType string, start, end time.Time) (models.MarketSnapshot, error) {
	snapshot := models.MarketSnapshot{
		PostalCode:   postalCode,
		PropertyType: propertyType,
		Start:        start,
		End:          end,
	}

	transactions, err := e.repo.FilterTransactions(postalCode, MapPropertyType(propertyType), start, end)
	if err != nil {
		return snapshot, fmt.Errorf("failed to filter transactions: %w", err)
	}

	snapshot.TransactionCount = len(transactions)
	if len(transactions) == 0 {
		return snapshot, nil
	}

	values := pricesPerArea(transactions)
	if len(values) > 0 {
		sort.Float64s(values)

		avg := roundHalfUp(mean(values))
		median := values[len(values)/2]
		min := values[0]
		max := values[len(values)-1]

		snapshot.AveragePricePerArea = &avg
		snapshot.MedianPricePerArea = &median
		snapshot.MinPricePerArea = &min
		snapshot.MaxPricePerArea = &max
	}

	snapshot.Quarters = quarterize(transactions, start, end)
	snapshot.Bounds = computeBounds(transactions)

	return snapshot, nil
}

// ComputeQuarterlyEvolution partitions [start, end] into consecutive
// 3-month windows and averages price-per-area per window. Empty windows
// are omitted: the series is sparse, not continuous.
func (e *Engine) ComputeQuarterlyEvolution(postalCode, propertyType string, start, end time.Time) ([]models.QuarterPoint, error) {
	transactions, err := e.repo.FilterTransactions(postalCode, MapPropertyType(propertyType), start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to filter transactions: %w", err)
	}
	return quarterize(transactions, start, end), nil
}

func quarterize(transactions []models.Transaction, start, end time.Time) []models.QuarterPoint {
	var points []models.QuarterPoint

	for cur := start; cur.Before(end) || cur.Equal(end); cur = cur.AddDate(0, 3, 0) {
		next := cur.AddDate(0, 3, 0)
		windowEnd := next
		if windowEnd.After(end) {
			// Last window truncated to the requested end, inclusive.
			windowEnd = end.AddDate(0, 0, 1)
		}

		var values []float64
		var count int
		for _, t := range transactions {
			if t.MutationDate.Before(cur) || !t.MutationDate.Before(windowEnd) {
				continue
			}
			count++
			if t.PricePerArea != nil {
				values = append(values, *t.PricePerArea)
			}
		}

		if count == 0 {
			continue
		}

		point := models.QuarterPoint{
			Label:            quarterLabel(cur),
			TransactionCount: count,
		}
		if len(values) > 0 {
			point.AveragePricePerArea = roundHalfUp(mean(values))
		}
		points = append(points, point)
	}

	return points
}

func quarterLabel(t time.Time) string {
	quarter := (int(t.Month())-1)/3 + 1
	return fmt.Sprintf("%d-Q%d", t.Year(), quarter)
}

// computeBounds returns the bounding box of the transactions that carry
// coordinates, nil when none do.
func computeBounds(transactions []models.Transaction) *models.GeoBounds {
	var points orb.MultiPoint
	for _, t := range transactions {
		if t.Latitude == nil || t.Longitude == nil {
			continue
		}
		points = append(points, orb.Point{*t.Longitude, *t.Latitude})
	}
	if len(points) == 0 {
		return nil
	}

	bound := points.Bound()
	return &models.GeoBounds{
		MinLat: bound.Min.Y(),
		MinLon: bound.Min.X(),
		MaxLat: bound.Max.Y(),
		MaxLon: bound.Max.X(),
	}
}

func pricesPerArea(transactions []models.Transaction) []float64 {
	var values []float64
	for _, t := range transactions {
		if t.PricePerArea != nil {
			values = append(values, *t.PricePerArea)
		}
	}
	return values
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// roundHalfUp rounds to 2 decimals, ties away from zero upward.
func roundHalfUp(v float64) float64 {
	return math.Floor(v*100+0.5) / 100
}
