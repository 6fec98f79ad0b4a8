package database

import "fmt"

// Geocoder resolves a commune-level address to coordinates.
type Geocoder interface {
	GeocodeCommune(postalCode, commune string) (float64, float64, error)
}

// UpdateMissingCoordinates backfills latitude/longitude for transactions
// that came without them. DVF rows only locate at commune precision, so
// one lookup per (postal code, commune) pair is enough; failed lookups are
// marked attempted and not retried.
func (d *Database) UpdateMissingCoordinates(geocoder Geocoder) error {
	var totalCount int
	err := d.db.QueryRow(`
		SELECT COUNT(*)
		FROM transactions
		WHERE (latitude IS NULL OR longitude IS NULL)
		AND geocoding_attempted = 0
		AND postal_code != ''
		AND commune_name != ''
	`).Scan(&totalCount)
	if err != nil {
		return fmt.Errorf("failed to count transactions: %v", err)
	}

	if totalCount == 0 {
		d.logger.Info("No transactions need geocoding")
		return nil
	}

	d.logger.Infof("Found %d transactions that need geocoding", totalCount)

	rows, err := d.db.Query(`
		SELECT DISTINCT postal_code, commune_name
		FROM transactions
		WHERE (latitude IS NULL OR longitude IS NULL)
		AND geocoding_attempted = 0
		AND postal_code != ''
		AND commune_name != ''
	`)
	if err != nil {
		return fmt.Errorf("failed to query communes: %v", err)
	}

	type commune struct {
		postalCode string
		name       string
	}
	var communes []commune
	for rows.Next() {
		var c commune
		if err := rows.Scan(&c.postalCode, &c.name); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan commune: %v", err)
		}
		communes = append(communes, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	var processed, failed int
	for _, c := range communes {
		tx, err := d.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %v", err)
		}

		lat, lon, err := geocoder.GeocodeCommune(c.postalCode, c.name)
		if err != nil {
			d.logger.WithError(err).WithField("postal_code", c.postalCode).Warn("Failed to geocode commune")
			_, err = tx.Exec(`
				UPDATE transactions
				SET geocoding_attempted = 1
				WHERE postal_code = ? AND commune_name = ?
				AND (latitude IS NULL OR longitude IS NULL)
			`, c.postalCode, c.name)
			if err != nil {
				tx.Rollback()
				return fmt.Errorf("failed to mark geocoding attempt: %v", err)
			}
			failed++
		} else {
			_, err = tx.Exec(`
				UPDATE transactions
				SET latitude = ?, longitude = ?, geocoding_attempted = 1
				WHERE postal_code = ? AND commune_name = ?
				AND (latitude IS NULL OR longitude IS NULL)
			`, lat, lon, c.postalCode, c.name)
			if err != nil {
				tx.Rollback()
				return fmt.Errorf("failed to update coordinates: %v", err)
			}
			processed++
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %v", err)
		}
	}

	d.logger.Infof("Geocoding completed: %d/%d communes resolved, %d failed",
		processed, len(communes), failed)

	return nil
}
