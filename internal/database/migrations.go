package database

import "fmt"

func (d *Database) RunMigrations() error {
	// Transactions are append-only; updates never happen outside the
	// coordinate backfill.
	_, err := d.db.Exec(`
		CREATE TABLE IF NOT EXISTS transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			mutation_date TIMESTAMP,
			mutation_nature TEXT,
			value REAL,
			lot_number TEXT,
			lot_area REAL,
			property_type_code TEXT,
			property_type_label TEXT,
			built_area REAL,
			room_count INTEGER,
			land_area REAL,
			latitude REAL,
			longitude REAL,
			postal_code TEXT,
			commune_name TEXT,
			commune_code TEXT,
			department_code TEXT,
			vintage TEXT,
			price_per_area REAL,
			geocoding_attempted BOOLEAN DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create transactions table: %v", err)
	}

	_, err = d.db.Exec(`
		CREATE TABLE IF NOT EXISTS import_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			year TEXT NOT NULL,
			department TEXT NOT NULL,
			status TEXT NOT NULL,
			transaction_count INTEGER,
			error_message TEXT,
			started_by TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			completed_at TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create import_runs table: %v", err)
	}

	// Read-only view of adverts, populated by the surrounding application.
	_, err = d.db.Exec(`
		CREATE TABLE IF NOT EXISTS listings (
			id INTEGER PRIMARY KEY,
			price REAL NOT NULL,
			built_area REAL,
			postal_code TEXT,
			property_type TEXT,
			country TEXT
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create listings table: %v", err)
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_transactions_postal_code ON transactions(postal_code);`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_type_label ON transactions(property_type_label);`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_mutation_date ON transactions(mutation_date);`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_vintage ON transactions(vintage);`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_department ON transactions(department_code);`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_coordinates ON transactions(latitude, longitude);`,
		`CREATE INDEX IF NOT EXISTS idx_import_runs_key ON import_runs(year, department);`,
		`CREATE INDEX IF NOT EXISTS idx_import_runs_status ON import_runs(status);`,
	}
	for _, stmt := range indexes {
		if _, err := d.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create index: %v", err)
		}
	}

	return nil
}
