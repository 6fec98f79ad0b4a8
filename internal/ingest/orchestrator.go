package ingest

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/sirupsen/logrus"

	"dvfmarket/server/config"
	"dvfmarket/server/internal/models"
	"dvfmarket/server/internal/parser"
)

var (
	ErrImportInProgress  = errors.New("an import is already active for this year and department")
	ErrInvalidYear       = errors.New("year must be a four digit number")
	ErrInvalidDepartment = errors.New("invalid department code")
)

var yearPattern = regexp.MustCompile(`^\d{4}$`)

// Store is the persistence surface the orchestrator owns: run bookkeeping
// plus append-only batch writes.
type Store interface {
	CreateImportRun(year, department, startedBy string) (*models.ImportRun, error)
	MarkRunRunning(runID int64) error
	MarkRunCompleted(runID int64, count int) error
	MarkRunFailed(runID int64, message string) error
	ActiveRunExists(year, department string) (bool, error)
	InsertTransactions(batch []*models.Transaction) error
	DeleteVintage(year string) (int64, error)
}

// Notifier pushes terminal-state payloads to the actor that started a
// run. Fire-and-forget.
type Notifier interface {
	Notify(actorID string, payload models.ImportNotification)
}

// Orchestrator drives DVF imports: download, parse, persist in bounded
// batches, track the run, notify. Each run owns its own batch loop;
// distinct (year, department) keys run concurrently on the worker pool.
type Orchestrator struct {
	store      Store
	downloader Downloader
	notifier   Notifier
	config     *config.Config
	logger     *logrus.Logger
	pool       pond.Pool
}

func NewOrchestrator(store Store, downloader Downloader, notifier Notifier, cfg *config.Config, logger *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		store:      store,
		downloader: downloader,
		notifier:   notifier,
		config:     cfg,
		logger:     logger,
		pool:       pond.NewPool(cfg.Import.WorkerCount),
	}
}

// StartImport validates the key, registers a PENDING run and schedules
// the pipeline on the worker pool. The caller gets the accepted run
// immediately; the terminal state arrives through the notifier.
//
// A key with a PENDING or RUNNING run is rejected rather than raced.
func (o *Orchestrator) StartImport(year, department, actorID string) (*models.ImportRun, error) {
	if !yearPattern.MatchString(year) {
		return nil, ErrInvalidYear
	}
	department = config.NormalizeDepartment(department)
	if !config.IsValidDepartment(department) {
		return nil, ErrInvalidDepartment
	}

	active, err := o.store.ActiveRunExists(year, department)
	if err != nil {
		return nil, fmt.Errorf("failed to check active runs: %w", err)
	}
	if active {
		return nil, ErrImportInProgress
	}

	run, err := o.store.CreateImportRun(year, department, actorID)
	if err != nil {
		return nil, err
	}

	o.pool.Submit(func() {
		o.runImport(run, actorID)
	})

	return run, nil
}

// CleanVintage removes every transaction imported under the given year.
// Not reversible; intended for re-import scenarios.
func (o *Orchestrator) CleanVintage(year string) (int64, error) {
	if !yearPattern.MatchString(year) {
		return 0, ErrInvalidYear
	}
	deleted, err := o.store.DeleteVintage(year)
	if err != nil {
		return 0, err
	}
	o.logger.WithFields(logrus.Fields{
		"year":    year,
		"deleted": deleted,
	}).Info("Cleaned vintage")
	return deleted, nil
}

// Stop waits for in-flight imports to finish.
func (o *Orchestrator) Stop() {
	o.pool.StopAndWait()
}

// runImport is the whole pipeline for one run. Every failure terminates
// the run as FAILED with a message; nothing escapes as a panic or crash.
func (o *Orchestrator) runImport(run *models.ImportRun, actorID string) {
	log := o.logger.WithFields(logrus.Fields{
		"run_id":     run.ID,
		"year":       run.Year,
		"department": run.Department,
	})

	if err := o.store.MarkRunRunning(run.ID); err != nil {
		log.WithError(err).Error("Failed to mark run as running")
	}

	count, err := o.ingest(run, log)
	if err != nil {
		log.WithError(err).Error("Import failed")
		if markErr := o.store.MarkRunFailed(run.ID, err.Error()); markErr != nil {
			log.WithError(markErr).Error("Failed to mark run as failed")
		}
		o.notifier.Notify(actorID, models.ImportNotification{
			Status:     models.ImportFailed,
			Year:       run.Year,
			Department: run.Department,
			Error:      err.Error(),
			Message:    fmt.Sprintf("Import of DVF %s for department %s failed", run.Year, run.Department),
		})
		return
	}

	log.WithField("count", count).Info("Import completed")
	if markErr := o.store.MarkRunCompleted(run.ID, count); markErr != nil {
		log.WithError(markErr).Error("Failed to mark run as completed")
	}
	o.notifier.Notify(actorID, models.ImportNotification{
		Status:           models.ImportCompleted,
		Year:             run.Year,
		Department:       run.Department,
		TransactionCount: &count,
		Message:          fmt.Sprintf("Imported %d transactions for DVF %s, department %s", count, run.Year, run.Department),
	})
}

// ingest streams the extract through the parser and persists fixed-size
// batches sequentially: batch N is durable before batch N+1 starts, so a
// mid-run failure leaves the committed prefix in the store.
func (o *Orchestrator) ingest(run *models.ImportRun, log *logrus.Entry) (int, error) {
	body, err := o.downloader.Download(run.Year, run.Department)
	if err != nil {
		return 0, fmt.Errorf("download failed: %w", err)
	}
	defer body.Close()

	reader, err := parser.New(body)
	if err != nil {
		return 0, fmt.Errorf("unreadable DVF file: %w", err)
	}

	batchSize := o.config.Import.BatchSize
	if batchSize <= 0 {
		batchSize = 500
	}

	var total int
	batch := make([]*models.Transaction, 0, batchSize)

	for {
		tx, readErr := reader.Read()
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return total, fmt.Errorf("parse failed: %w", readErr)
		}

		tx.Vintage = run.Year
		batch = append(batch, tx)

		if len(batch) >= batchSize {
			if err := o.persistBatch(batch, log); err != nil {
				return total, err
			}
			total += len(batch)
			batch = make([]*models.Transaction, 0, batchSize)
		}
	}

	if len(batch) > 0 {
		if err := o.persistBatch(batch, log); err != nil {
			return total, err
		}
		total += len(batch)
	}

	if skipped := reader.Skipped(); skipped > 0 {
		log.WithField("skipped", skipped).Warn("Skipped unparseable lines")
	}

	return total, nil
}

// persistBatch writes one batch with the configured retry policy.
func (o *Orchestrator) persistBatch(batch []*models.Transaction, log *logrus.Entry) error {
	var err error
	for attempt := 0; attempt <= o.config.Import.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Infof("Retrying batch persist, attempt %d of %d", attempt, o.config.Import.MaxRetries)
			time.Sleep(time.Duration(o.config.Import.RetryDelay) * time.Second)
		}

		err = o.store.InsertTransactions(batch)
		if err == nil {
			log.Debugf("Persisted batch of %d transactions", len(batch))
			return nil
		}

		log.WithError(err).Error("Batch persist failed")
	}

	return fmt.Errorf("failed to persist batch after %d attempts: %w", o.config.Import.MaxRetries, err)
}
