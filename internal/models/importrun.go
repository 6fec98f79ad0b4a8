package models

import "time"

// ImportRunStatus is the lifecycle state of one ingestion attempt.
type ImportRunStatus string

const (
	ImportPending   ImportRunStatus = "PENDING"
	ImportRunning   ImportRunStatus = "RUNNING"
	ImportCompleted ImportRunStatus = "COMPLETED"
	ImportFailed    ImportRunStatus = "FAILED"
)

// ImportRun tracks one (year, department) ingestion attempt end to end.
// TransactionCount and CompletedAt are only set once the run reaches a
// terminal state; the count reflects what was actually persisted.
type ImportRun struct {
	ID               int64           `json:"id" gorm:"primaryKey;autoIncrement"`
	Year             string          `json:"year" gorm:"column:year;index:idx_import_runs_key"`
	Department       string          `json:"department" gorm:"column:department;index:idx_import_runs_key"`
	Status           ImportRunStatus `json:"status" gorm:"column:status"`
	TransactionCount *int            `json:"transaction_count" gorm:"column:transaction_count"`
	ErrorMessage     *string         `json:"error_message" gorm:"column:error_message"`
	StartedBy        string          `json:"started_by" gorm:"column:started_by"`
	CreatedAt        time.Time       `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
	CompletedAt      *time.Time      `json:"completed_at" gorm:"column:completed_at"`
}

func (ImportRun) TableName() string {
	return "import_runs"
}

// ImportNotification is the payload pushed to the actor that started an
// import once the run reaches a terminal state.
type ImportNotification struct {
	Status           ImportRunStatus `json:"status"`
	Year             string          `json:"year"`
	Department       string          `json:"department"`
	TransactionCount *int            `json:"transaction_count,omitempty"`
	Error            string          `json:"error,omitempty"`
	Message          string          `json:"message"`
}
