package database

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"dvfmarket/server/internal/models"
)

// InsertTransactions persists one batch inside a single gorm transaction.
// The orchestrator calls this sequentially per run; the batch is either
// fully committed or not at all.
func (d *Database) InsertTransactions(batch []*models.Transaction) error {
	if len(batch) == 0 {
		return nil
	}
	return d.orm.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(batch).Error; err != nil {
			return fmt.Errorf("failed to insert transaction batch: %w", err)
		}
		return nil
	})
}

// DeleteVintage removes every transaction imported under the given year.
// Not reversible.
func (d *Database) DeleteVintage(year string) (int64, error) {
	res := d.orm.Where("vintage = ?", year).Delete(&models.Transaction{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete vintage %s: %w", year, res.Error)
	}
	return res.RowsAffected, nil
}

// CreateImportRun inserts a new run in PENDING state.
func (d *Database) CreateImportRun(year, department, startedBy string) (*models.ImportRun, error) {
	run := &models.ImportRun{
		Year:       year,
		Department: department,
		Status:     models.ImportPending,
		StartedBy:  startedBy,
	}
	if err := d.orm.Create(run).Error; err != nil {
		return nil, fmt.Errorf("failed to create import run: %w", err)
	}
	return run, nil
}

// MarkRunRunning flips a run to RUNNING.
func (d *Database) MarkRunRunning(runID int64) error {
	return d.orm.Model(&models.ImportRun{}).
		Where("id = ?", runID).
		Update("status", models.ImportRunning).Error
}

// MarkRunCompleted records the terminal COMPLETED state with the count
// actually persisted and the completion timestamp.
func (d *Database) MarkRunCompleted(runID int64, count int) error {
	now := time.Now()
	return d.orm.Model(&models.ImportRun{}).
		Where("id = ?", runID).
		Updates(map[string]interface{}{
			"status":            models.ImportCompleted,
			"transaction_count": count,
			"completed_at":      now,
		}).Error
}

// MarkRunFailed records the terminal FAILED state with the error message.
// TransactionCount stays null; batches committed before the failure remain
// in the store.
func (d *Database) MarkRunFailed(runID int64, message string) error {
	now := time.Now()
	return d.orm.Model(&models.ImportRun{}).
		Where("id = ?", runID).
		Updates(map[string]interface{}{
			"status":        models.ImportFailed,
			"error_message": message,
			"completed_at":  now,
		}).Error
}

// ListImportRuns returns the run history newest first.
func (d *Database) ListImportRuns(page, size int) ([]models.ImportRun, error) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = 20
	}
	var runs []models.ImportRun
	err := d.orm.Order("created_at DESC, id DESC").
		Limit(size).
		Offset(page * size).
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list import runs: %w", err)
	}
	return runs, nil
}

// ActiveRunExists reports whether a PENDING or RUNNING run already exists
// for the (year, department) key.
func (d *Database) ActiveRunExists(year, department string) (bool, error) {
	var count int64
	err := d.orm.Model(&models.ImportRun{}).
		Where("year = ? AND department = ? AND status IN ?",
			year, department, []models.ImportRunStatus{models.ImportPending, models.ImportRunning}).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetImportRun fetches a single run, or nil when unknown.
func (d *Database) GetImportRun(runID int64) (*models.ImportRun, error) {
	var run models.ImportRun
	err := d.orm.First(&run, runID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// GetListing returns the read-only listing view, or nil when unknown.
func (d *Database) GetListing(id int64) (*models.Listing, error) {
	var listing models.Listing
	err := d.orm.First(&listing, id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &listing, nil
}
