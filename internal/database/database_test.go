package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dvfmarket/server/internal/models"
	"dvfmarket/server/internal/stats"
)

func setupTestDB(t *testing.T) *Database {
	t.Helper()

	db, err := NewDatabase(filepath.Join(t.TempDir(), "test.db"), logrus.New())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.RunMigrations())
	return db
}

func f(v float64) *float64 {
	return &v
}

func testTransaction(date time.Time, vintage string, builtArea float64) *models.Transaction {
	tx := &models.Transaction{
		MutationDate:      date,
		MutationNature:    "Vente",
		Value:             f(250000),
		PropertyTypeLabel: "Appartement",
		BuiltArea:         f(builtArea),
		PostalCode:        "75011",
		CommuneName:       "Paris",
		DepartmentCode:    "75",
		Vintage:           vintage,
	}
	tx.PricePerArea = tx.ComputePricePerArea()
	return tx
}

func TestInsertAndFilterTransactions(t *testing.T) {
	db := setupTestDB(t)

	jan := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	jun := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	dec := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)

	sparse := &models.Transaction{
		MutationDate:      jun,
		Value:             f(100000),
		PropertyTypeLabel: "Appartement",
		PostalCode:        "75011",
		Vintage:           "2024",
	}

	err := db.InsertTransactions([]*models.Transaction{
		testTransaction(jan, "2024", 50),
		testTransaction(dec, "2024", 60),
		sparse,
	})
	require.NoError(t, err)

	// Window covers the whole year; the end-date row must be included.
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	txs, err := db.FilterTransactions("75011", "Appartement", start, end)
	require.NoError(t, err)
	require.Len(t, txs, 3)

	// Ordered by mutation date ascending.
	assert.Equal(t, jan.Format("2006-01-02"), txs[0].MutationDate.Format("2006-01-02"))
	assert.Equal(t, dec.Format("2006-01-02"), txs[2].MutationDate.Format("2006-01-02"))

	// Nullable columns come back as nil pointers, not zero values.
	assert.Nil(t, txs[1].BuiltArea)
	assert.Nil(t, txs[1].PricePerArea)
	assert.Nil(t, txs[1].RoomCount)
	assert.Nil(t, txs[1].Latitude)
	require.NotNil(t, txs[0].PricePerArea)
	assert.Equal(t, 5000.0, *txs[0].PricePerArea)

	// A narrower window excludes the December row.
	txs, err = db.FilterTransactions("75011", "Appartement", start, jun)
	require.NoError(t, err)
	assert.Len(t, txs, 2)

	// Unknown type label matches nothing; empty label matches everything.
	txs, err = db.FilterTransactions("75011", "Maison", start, end)
	require.NoError(t, err)
	assert.Empty(t, txs)
	txs, err = db.FilterTransactions("75011", "", start, end)
	require.NoError(t, err)
	assert.Len(t, txs, 3)
}

func TestDeleteVintage(t *testing.T) {
	db := setupTestDB(t)

	date := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	err := db.InsertTransactions([]*models.Transaction{
		testTransaction(date, "2023", 50),
		testTransaction(date, "2023", 60),
		testTransaction(date.AddDate(1, 0, 0), "2024", 70),
	})
	require.NoError(t, err)

	deleted, err := db.DeleteVintage("2023")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	count, err := db.CountByVintage("2023")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
	count, err = db.CountByVintage("2024")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// A snapshot over the removed vintage's window is empty with nil
	// aggregates, not an error.
	engine := stats.NewEngine(db, logrus.New())
	snapshot, err := engine.ComputeSnapshot("75011", "APARTMENT",
		time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 0, snapshot.TransactionCount)
	assert.Nil(t, snapshot.AveragePricePerArea)
	assert.Nil(t, snapshot.MedianPricePerArea)
}

func TestSimilarTransactions_BandAndOrdering(t *testing.T) {
	db := setupTestDB(t)

	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	var batch []*models.Transaction
	for _, area := range []float64{40, 48, 50, 55, 70} {
		batch = append(batch, testTransaction(date, "2024", area))
	}
	require.NoError(t, db.InsertTransactions(batch))

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)

	txs, err := db.SimilarTransactions("75011", "Appartement", start, end, 40, 60, 50, 10)
	require.NoError(t, err)
	require.Len(t, txs, 4)

	// Closest built area first; 70 sits outside the band.
	areas := make([]float64, len(txs))
	for i, tx := range txs {
		areas[i] = *tx.BuiltArea
	}
	assert.Equal(t, []float64{50, 48, 55, 40}, areas)

	// Limit caps the result.
	txs, err = db.SimilarTransactions("75011", "Appartement", start, end, 40, 60, 50, 2)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, 50.0, *txs[0].BuiltArea)
	assert.Equal(t, 48.0, *txs[1].BuiltArea)
}

func TestGlobalStats(t *testing.T) {
	db := setupTestDB(t)

	date := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	var batch []*models.Transaction
	for _, area := range []float64{250, 125, 62.5, 50} {
		// Value 250000 at these areas yields 1000, 2000, 4000, 5000 per m2.
		batch = append(batch, testTransaction(date, "2024", area))
	}
	noArea := &models.Transaction{
		MutationDate:   date,
		Value:          f(99000),
		PostalCode:     "33000",
		DepartmentCode: "33",
		Vintage:        "2023",
	}
	batch = append(batch, noArea)
	require.NoError(t, db.InsertTransactions(batch))

	run, err := db.CreateImportRun("2024", "75", "actor-1")
	require.NoError(t, err)
	require.NoError(t, db.MarkRunCompleted(run.ID, 5))
	_, err = db.CreateImportRun("2024", "33", "actor-1")
	require.NoError(t, err)

	globalStats, err := db.GlobalStats()
	require.NoError(t, err)

	assert.Equal(t, int64(5), globalStats.TotalTransactions)
	assert.Equal(t, 2, globalStats.CoveredDepartments)
	assert.Equal(t, []string{"2023", "2024"}, globalStats.AvailableYears)

	require.NotNil(t, globalStats.AvgPricePerArea)
	assert.Equal(t, 3000.0, *globalStats.AvgPricePerArea)
	// Four priced rows: median is the upper-middle element, offset 4/2.
	require.NotNil(t, globalStats.MedianPricePerArea)
	assert.Equal(t, 4000.0, *globalStats.MedianPricePerArea)

	assert.Equal(t, 1, globalStats.CompletedImportCount)
	assert.Equal(t, 1, globalStats.InProgressImportCount)
	require.NotNil(t, globalStats.LastUpdate)
	assert.WithinDuration(t, time.Now(), *globalStats.LastUpdate, time.Minute)
}

func TestImportRunLifecycle(t *testing.T) {
	db := setupTestDB(t)

	run, err := db.CreateImportRun("2024", "75", "actor-1")
	require.NoError(t, err)
	assert.Equal(t, models.ImportPending, run.Status)
	assert.Nil(t, run.TransactionCount)

	active, err := db.ActiveRunExists("2024", "75")
	require.NoError(t, err)
	assert.True(t, active)
	active, err = db.ActiveRunExists("2024", "33")
	require.NoError(t, err)
	assert.False(t, active)

	require.NoError(t, db.MarkRunRunning(run.ID))
	require.NoError(t, db.MarkRunCompleted(run.ID, 42))

	stored, err := db.GetImportRun(run.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, models.ImportCompleted, stored.Status)
	require.NotNil(t, stored.TransactionCount)
	assert.Equal(t, 42, *stored.TransactionCount)
	assert.NotNil(t, stored.CompletedAt)

	// A completed run no longer blocks the key.
	active, err = db.ActiveRunExists("2024", "75")
	require.NoError(t, err)
	assert.False(t, active)

	// Failed runs keep the count null; the error message is recorded.
	failing, err := db.CreateImportRun("2023", "75", "actor-1")
	require.NoError(t, err)
	require.NoError(t, db.MarkRunFailed(failing.ID, "download failed"))
	stored, err = db.GetImportRun(failing.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, models.ImportFailed, stored.Status)
	assert.Nil(t, stored.TransactionCount)
	require.NotNil(t, stored.ErrorMessage)
	assert.Equal(t, "download failed", *stored.ErrorMessage)

	// Unknown ids resolve to nil, not an error.
	missing, err := db.GetImportRun(9999)
	require.NoError(t, err)
	assert.Nil(t, missing)

	runs, err := db.ListImportRuns(0, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, failing.ID, runs[0].ID)
}

func TestGetListing(t *testing.T) {
	db := setupTestDB(t)

	area := 50.0
	require.NoError(t, db.orm.Create(&models.Listing{
		ID:           7,
		Price:        300000,
		BuiltArea:    &area,
		PostalCode:   "75011",
		PropertyType: "APARTMENT",
		Country:      "France",
	}).Error)

	listing, err := db.GetListing(7)
	require.NoError(t, err)
	require.NotNil(t, listing)
	assert.Equal(t, "75011", listing.PostalCode)

	missing, err := db.GetListing(404)
	require.NoError(t, err)
	assert.Nil(t, missing)
}
