package ingest

import (
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"dvfmarket/server/config"
	"dvfmarket/server/internal/models"
)

// MockStore is a mock implementation of the Store interface
type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateImportRun(year, department, startedBy string) (*models.ImportRun, error) {
	args := m.Called(year, department, startedBy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ImportRun), args.Error(1)
}

func (m *MockStore) MarkRunRunning(runID int64) error {
	return m.Called(runID).Error(0)
}

func (m *MockStore) MarkRunCompleted(runID int64, count int) error {
	return m.Called(runID, count).Error(0)
}

func (m *MockStore) MarkRunFailed(runID int64, message string) error {
	return m.Called(runID, message).Error(0)
}

func (m *MockStore) ActiveRunExists(year, department string) (bool, error) {
	args := m.Called(year, department)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) InsertTransactions(batch []*models.Transaction) error {
	return m.Called(batch).Error(0)
}

func (m *MockStore) DeleteVintage(year string) (int64, error) {
	args := m.Called(year)
	return args.Get(0).(int64), args.Error(1)
}

// MockDownloader is a mock implementation of the Downloader interface
type MockDownloader struct {
	mock.Mock
}

func (m *MockDownloader) Download(year, department string) (io.ReadCloser, error) {
	args := m.Called(year, department)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

// RecordingNotifier captures notifications and signals delivery.
type RecordingNotifier struct {
	mu       sync.Mutex
	actorIDs []string
	payloads []models.ImportNotification
	done     chan struct{}
}

func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{done: make(chan struct{}, 8)}
}

func (n *RecordingNotifier) Notify(actorID string, payload models.ImportNotification) {
	n.mu.Lock()
	n.actorIDs = append(n.actorIDs, actorID)
	n.payloads = append(n.payloads, payload)
	n.mu.Unlock()
	n.done <- struct{}{}
}

func (n *RecordingNotifier) Wait(t *testing.T) models.ImportNotification {
	t.Helper()
	select {
	case <-n.done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.payloads[len(n.payloads)-1]
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Import.BatchSize = 2
	cfg.Import.WorkerCount = 1
	cfg.Import.MaxRetries = 1
	cfg.Import.RetryDelay = 0
	return cfg
}

const dvfHeader = "date_mutation|nature_mutation|valeur_fonciere|type_local|surface_reelle_bati|code_postal|code_departement\n"

func dvfFile(lines int) io.ReadCloser {
	var b strings.Builder
	b.WriteString(dvfHeader)
	for i := 0; i < lines; i++ {
		b.WriteString("2024-02-10|Vente|250000|Appartement|50|75011|75\n")
	}
	return io.NopCloser(strings.NewReader(b.String()))
}

func TestStartImport_DownloadFailure(t *testing.T) {
	store := &MockStore{}
	downloader := &MockDownloader{}
	notifier := NewRecordingNotifier()

	run := &models.ImportRun{ID: 1, Year: "2024", Department: "75", Status: models.ImportPending}
	store.On("ActiveRunExists", "2024", "75").Return(false, nil)
	store.On("CreateImportRun", "2024", "75", "actor-1").Return(run, nil)
	store.On("MarkRunRunning", int64(1)).Return(nil)
	store.On("MarkRunFailed", int64(1), mock.MatchedBy(func(msg string) bool {
		return msg != ""
	})).Return(nil)
	downloader.On("Download", "2024", "75").Return(nil, errors.New("connection refused"))

	o := NewOrchestrator(store, downloader, notifier, testConfig(), logrus.New())
	defer o.Stop()

	accepted, err := o.StartImport("2024", "75", "actor-1")
	require.NoError(t, err)
	assert.Equal(t, models.ImportPending, accepted.Status)

	payload := notifier.Wait(t)
	assert.Equal(t, models.ImportFailed, payload.Status)
	assert.Equal(t, "2024", payload.Year)
	assert.Equal(t, "75", payload.Department)
	assert.Nil(t, payload.TransactionCount)
	assert.NotEmpty(t, payload.Error)

	store.AssertExpectations(t)
	store.AssertNotCalled(t, "MarkRunCompleted", mock.Anything, mock.Anything)
}

func TestStartImport_EmptyFileFailsRun(t *testing.T) {
	store := &MockStore{}
	downloader := &MockDownloader{}
	notifier := NewRecordingNotifier()

	run := &models.ImportRun{ID: 2, Year: "2024", Department: "75"}
	store.On("ActiveRunExists", "2024", "75").Return(false, nil)
	store.On("CreateImportRun", "2024", "75", "actor-1").Return(run, nil)
	store.On("MarkRunRunning", int64(2)).Return(nil)
	store.On("MarkRunFailed", int64(2), mock.Anything).Return(nil)
	downloader.On("Download", "2024", "75").Return(io.NopCloser(strings.NewReader("")), nil)

	o := NewOrchestrator(store, downloader, notifier, testConfig(), logrus.New())
	defer o.Stop()

	_, err := o.StartImport("2024", "75", "actor-1")
	require.NoError(t, err)

	payload := notifier.Wait(t)
	assert.Equal(t, models.ImportFailed, payload.Status)
}

func TestStartImport_PersistsInBatches(t *testing.T) {
	store := &MockStore{}
	downloader := &MockDownloader{}
	notifier := NewRecordingNotifier()

	run := &models.ImportRun{ID: 3, Year: "2024", Department: "75"}
	store.On("ActiveRunExists", "2024", "75").Return(false, nil)
	store.On("CreateImportRun", "2024", "75", "actor-1").Return(run, nil)
	store.On("MarkRunRunning", int64(3)).Return(nil)
	store.On("MarkRunCompleted", int64(3), 5).Return(nil)
	// Batch size 2, 5 records: two full batches plus a remainder.
	store.On("InsertTransactions", mock.MatchedBy(func(batch []*models.Transaction) bool {
		return len(batch) == 2 && batch[0].Vintage == "2024"
	})).Return(nil).Times(2)
	store.On("InsertTransactions", mock.MatchedBy(func(batch []*models.Transaction) bool {
		return len(batch) == 1
	})).Return(nil).Once()
	downloader.On("Download", "2024", "75").Return(dvfFile(5), nil)

	o := NewOrchestrator(store, downloader, notifier, testConfig(), logrus.New())
	defer o.Stop()

	_, err := o.StartImport("2024", "75", "actor-1")
	require.NoError(t, err)

	payload := notifier.Wait(t)
	assert.Equal(t, models.ImportCompleted, payload.Status)
	require.NotNil(t, payload.TransactionCount)
	assert.Equal(t, 5, *payload.TransactionCount)

	store.AssertExpectations(t)
}

func TestStartImport_PersistFailureKeepsCommittedBatches(t *testing.T) {
	store := &MockStore{}
	downloader := &MockDownloader{}
	notifier := NewRecordingNotifier()

	run := &models.ImportRun{ID: 4, Year: "2024", Department: "75"}
	store.On("ActiveRunExists", "2024", "75").Return(false, nil)
	store.On("CreateImportRun", "2024", "75", "actor-1").Return(run, nil)
	store.On("MarkRunRunning", int64(4)).Return(nil)
	store.On("InsertTransactions", mock.Anything).Return(nil).Once()
	store.On("InsertTransactions", mock.Anything).Return(errors.New("disk full"))
	store.On("MarkRunFailed", int64(4), mock.MatchedBy(func(msg string) bool {
		return strings.Contains(msg, "disk full")
	})).Return(nil)
	downloader.On("Download", "2024", "75").Return(dvfFile(5), nil)

	o := NewOrchestrator(store, downloader, notifier, testConfig(), logrus.New())
	defer o.Stop()

	_, err := o.StartImport("2024", "75", "actor-1")
	require.NoError(t, err)

	payload := notifier.Wait(t)
	assert.Equal(t, models.ImportFailed, payload.Status)
	store.AssertExpectations(t)
}

func TestStartImport_RejectsActiveDuplicate(t *testing.T) {
	store := &MockStore{}
	store.On("ActiveRunExists", "2024", "75").Return(true, nil)

	o := NewOrchestrator(store, &MockDownloader{}, NewRecordingNotifier(), testConfig(), logrus.New())
	defer o.Stop()

	_, err := o.StartImport("2024", "75", "actor-1")
	assert.ErrorIs(t, err, ErrImportInProgress)
	store.AssertNotCalled(t, "CreateImportRun", mock.Anything, mock.Anything, mock.Anything)
}

func TestStartImport_ValidatesKey(t *testing.T) {
	o := NewOrchestrator(&MockStore{}, &MockDownloader{}, NewRecordingNotifier(), testConfig(), logrus.New())
	defer o.Stop()

	_, err := o.StartImport("24", "75", "actor-1")
	assert.ErrorIs(t, err, ErrInvalidYear)

	_, err = o.StartImport("2024", "XX", "actor-1")
	assert.ErrorIs(t, err, ErrInvalidDepartment)
}

func TestCleanVintage(t *testing.T) {
	store := &MockStore{}
	store.On("DeleteVintage", "2023").Return(int64(42), nil)

	o := NewOrchestrator(store, &MockDownloader{}, NewRecordingNotifier(), testConfig(), logrus.New())
	defer o.Stop()

	deleted, err := o.CleanVintage("2023")
	require.NoError(t, err)
	assert.Equal(t, int64(42), deleted)

	_, err = o.CleanVintage("23")
	assert.ErrorIs(t, err, ErrInvalidYear)
}
