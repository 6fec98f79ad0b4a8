package scheduler

import (
	"errors"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"dvfmarket/server/config"
	"dvfmarket/server/internal/ingest"
	"dvfmarket/server/internal/models"
)

// actorID stamped on scheduled runs.
const actorID = "scheduler"

// Importer is the slice of the orchestrator the scheduler drives.
type Importer interface {
	StartImport(year, department, actorID string) (*models.ImportRun, error)
}

// Scheduler refreshes the monitored departments on a cron schedule,
// re-importing the current year so recent mutations show up without an
// operator trigger.
type Scheduler struct {
	importer    Importer
	logger      *logrus.Logger
	cron        *cron.Cron
	spec        string
	departments []string
}

func NewScheduler(importer Importer, cfg *config.Config, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		importer:    importer,
		logger:      logger,
		cron:        cron.New(),
		spec:        cfg.Refresh.Cron,
		departments: cfg.Refresh.Departments,
	}
}

// Start registers the refresh job and starts the cron loop.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.spec, s.refresh)
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.WithField("cron", s.spec).Info("Refresh scheduler started")
	return nil
}

// Stop halts the cron loop; a refresh already handed to the orchestrator
// keeps running.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// refresh kicks off one import per monitored department for the current
// year. Keys with an active run are skipped; the duplicate policy makes
// overlapping schedules harmless.
func (s *Scheduler) refresh() {
	year := strconv.Itoa(time.Now().Year())
	s.logger.WithField("year", year).Info("Starting scheduled DVF refresh")

	for _, department := range s.departments {
		fields := logrus.Fields{
			"year":       year,
			"department": department,
		}
		if dept := config.GetDepartmentByCode(department); dept != nil {
			fields["department_name"] = dept.Name
		}

		_, err := s.importer.StartImport(year, department, actorID)
		if errors.Is(err, ingest.ErrImportInProgress) {
			s.logger.WithFields(fields).Debug("Skipping refresh, import already active")
			continue
		}
		if err != nil {
			s.logger.WithError(err).WithFields(fields).Error("Failed to schedule refresh import")
			continue
		}
		s.logger.WithFields(fields).Info("Scheduled refresh import")
	}
}
