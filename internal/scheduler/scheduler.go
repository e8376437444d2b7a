package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is a unit of scheduled work.
type Job interface {
	Run() error
	Name() string
}

// Scheduler drives recurring jobs from standard 5-field cron specs evaluated
// in the given timezone.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.SugaredLogger
}

func New(location *time.Location, logger *zap.SugaredLogger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(location)),
		logger: logger,
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Scheduler started")
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// AddJob registers a job. A failing run is logged, never fatal; the schedule
// keeps firing.
func (s *Scheduler) AddJob(spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.logger.Debugf("Running scheduled job: %s", job.Name())
		if err := job.Run(); err != nil {
			s.logger.Errorf("Scheduled job %s failed: %v", job.Name(), err)
			return
		}
		s.logger.Debugf("Scheduled job %s completed", job.Name())
	})
	if err != nil {
		return err
	}
	s.logger.Infof("Registered job %s with schedule %q", job.Name(), spec)
	return nil
}

// RunNow executes a job immediately, outside its schedule.
func (s *Scheduler) RunNow(job Job) error {
	s.logger.Infof("Running job immediately: %s", job.Name())
	return job.Run()
}
