package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"dvfmarket/server/internal/models"
)

// Database owns the SQLite store. Analytical reads go through plain
// database/sql; batch writes and run bookkeeping go through gorm.
type Database struct {
	db     *sql.DB
	orm    *gorm.DB
	logger *logrus.Logger
}

func NewDatabase(dbPath string, logger *logrus.Logger) (*Database, error) {
	dsn := dbPath + "?_busy_timeout=5000&_journal_mode=WAL"

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	orm, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm connection: %w", err)
	}

	return &Database{db: db, orm: orm, logger: logger}, nil
}

// FilterTransactions returns the transactions matching a postal code, an
// optional source property-type label and a mutation-date window.
func (d *Database) FilterTransactions(postalCode, typeLabel string, start, end time.Time) ([]models.Transaction, error) {
	query := `
        SELECT id, mutation_date, mutation_nature, value, lot_number, lot_area,
               property_type_code, property_type_label, built_area, room_count,
               land_area, latitude, longitude, postal_code, commune_name,
               commune_code, department_code, vintage, price_per_area
        FROM transactions
        WHERE postal_code = ?
        AND (? = '' OR property_type_label = ?)
        AND date(mutation_date) >= date(?)
        AND date(mutation_date) <= date(?)
        ORDER BY mutation_date ASC, id ASC
    `
	rows, err := d.db.Query(query,
		postalCode,
		typeLabel, typeLabel,
		start.Format("2006-01-02"), end.Format("2006-01-02"),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// SimilarTransactions returns transactions inside [minArea, maxArea] for
// the given slice, closest built area first.
func (d *Database) SimilarTransactions(postalCode, typeLabel string, start, end time.Time, minArea, maxArea, area float64, limit int) ([]models.Transaction, error) {
	query := `
        SELECT id, mutation_date, mutation_nature, value, lot_number, lot_area,
               property_type_code, property_type_label, built_area, room_count,
               land_area, latitude, longitude, postal_code, commune_name,
               commune_code, department_code, vintage, price_per_area
        FROM transactions
        WHERE postal_code = ?
        AND (? = '' OR property_type_label = ?)
        AND date(mutation_date) >= date(?)
        AND date(mutation_date) <= date(?)
        AND built_area IS NOT NULL
        AND built_area >= ?
        AND built_area <= ?
        ORDER BY ABS(built_area - ?) ASC, mutation_date DESC
        LIMIT ?
    `
	rows, err := d.db.Query(query,
		postalCode,
		typeLabel, typeLabel,
		start.Format("2006-01-02"), end.Format("2006-01-02"),
		minArea, maxArea,
		area,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// GlobalStats aggregates the whole store plus the import-run history.
// The median is the upper-middle element of the ordered price-per-area
// values, the same approximation the snapshot engine uses.
func (d *Database) GlobalStats() (models.GlobalStats, error) {
	var stats models.GlobalStats

	err := d.db.QueryRow(`
        SELECT COUNT(*), COUNT(DISTINCT department_code)
        FROM transactions
    `).Scan(&stats.TotalTransactions, &stats.CoveredDepartments)
	if err != nil {
		return stats, fmt.Errorf("failed to aggregate transactions: %v", err)
	}

	var avg float64
	var priced int64
	err = d.db.QueryRow(`
        SELECT COALESCE(ROUND(AVG(price_per_area), 2), 0), COUNT(price_per_area)
        FROM transactions
        WHERE price_per_area IS NOT NULL
    `).Scan(&avg, &priced)
	if err != nil {
		return stats, fmt.Errorf("failed to average price per area: %v", err)
	}
	if priced > 0 {
		stats.AvgPricePerArea = &avg

		var median float64
		err = d.db.QueryRow(`
            SELECT price_per_area
            FROM transactions
            WHERE price_per_area IS NOT NULL
            ORDER BY price_per_area ASC
            LIMIT 1 OFFSET ?
        `, priced/2).Scan(&median)
		if err != nil {
			return stats, fmt.Errorf("failed to compute median price per area: %v", err)
		}
		stats.MedianPricePerArea = &median
	}

	rows, err := d.db.Query(`SELECT DISTINCT vintage FROM transactions ORDER BY vintage ASC`)
	if err != nil {
		return stats, fmt.Errorf("failed to list vintages: %v", err)
	}
	defer rows.Close()
	for rows.Next() {
		var year string
		if err := rows.Scan(&year); err != nil {
			return stats, fmt.Errorf("failed to scan vintage: %v", err)
		}
		stats.AvailableYears = append(stats.AvailableYears, year)
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	err = d.db.QueryRow(`
        SELECT COALESCE(SUM(CASE WHEN status = 'COMPLETED' THEN 1 ELSE 0 END), 0),
               COALESCE(SUM(CASE WHEN status IN ('PENDING', 'RUNNING') THEN 1 ELSE 0 END), 0)
        FROM import_runs
    `).Scan(&stats.CompletedImportCount, &stats.InProgressImportCount)
	if err != nil {
		return stats, fmt.Errorf("failed to count import runs: %v", err)
	}

	var lastUpdate sql.NullString
	err = d.db.QueryRow(`
        SELECT MAX(completed_at) FROM import_runs WHERE status = 'COMPLETED'
    `).Scan(&lastUpdate)
	if err != nil {
		return stats, fmt.Errorf("failed to read last update: %v", err)
	}
	if lastUpdate.Valid && lastUpdate.String != "" {
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, lastUpdate.String); err == nil {
				stats.LastUpdate = &t
				break
			}
		}
	}

	return stats, nil
}

// CountByVintage returns how many transactions carry the given vintage.
func (d *Database) CountByVintage(year string) (int64, error) {
	var count int64
	err := d.db.QueryRow(`SELECT COUNT(*) FROM transactions WHERE vintage = ?`, year).Scan(&count)
	return count, err
}

func scanTransactions(rows *sql.Rows) ([]models.Transaction, error) {
	var transactions []models.Transaction
	for rows.Next() {
		var t models.Transaction
		var mutationDate, nature, lotNumber, typeCode, typeLabel sql.NullString
		var communeName, communeCode, postalCode, department, vintage sql.NullString
		var value, lotArea, builtArea, landArea, lat, lon, ppa sql.NullFloat64
		var roomCount sql.NullInt64

		err := rows.Scan(
			&t.ID,
			&mutationDate,
			&nature,
			&value,
			&lotNumber,
			&lotArea,
			&typeCode,
			&typeLabel,
			&builtArea,
			&roomCount,
			&landArea,
			&lat,
			&lon,
			&postalCode,
			&communeName,
			&communeCode,
			&department,
			&vintage,
			&ppa,
		)
		if err != nil {
			return nil, err
		}

		if nature.Valid {
			t.MutationNature = nature.String
		}
		if lotNumber.Valid {
			t.LotNumber = lotNumber.String
		}
		if typeCode.Valid {
			t.PropertyTypeCode = typeCode.String
		}
		if typeLabel.Valid {
			t.PropertyTypeLabel = typeLabel.String
		}
		if postalCode.Valid {
			t.PostalCode = postalCode.String
		}
		if communeName.Valid {
			t.CommuneName = communeName.String
		}
		if communeCode.Valid {
			t.CommuneCode = communeCode.String
		}
		if department.Valid {
			t.DepartmentCode = department.String
		}
		if vintage.Valid {
			t.Vintage = vintage.String
		}

		if value.Valid {
			v := value.Float64
			t.Value = &v
		}
		if lotArea.Valid {
			v := lotArea.Float64
			t.LotArea = &v
		}
		if builtArea.Valid {
			v := builtArea.Float64
			t.BuiltArea = &v
		}
		if landArea.Valid {
			v := landArea.Float64
			t.LandArea = &v
		}
		if lat.Valid {
			v := lat.Float64
			t.Latitude = &v
		}
		if lon.Valid {
			v := lon.Float64
			t.Longitude = &v
		}
		if ppa.Valid {
			v := ppa.Float64
			t.PricePerArea = &v
		}
		if roomCount.Valid {
			n := int(roomCount.Int64)
			t.RoomCount = &n
		}

		if mutationDate.Valid && mutationDate.String != "" {
			for _, layout := range []string{"2006-01-02", "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05-07:00", time.RFC3339} {
				if parsed, err := time.Parse(layout, mutationDate.String); err == nil {
					t.MutationDate = parsed
					break
				}
			}
		}

		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return transactions, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}
