package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/normanking/seifmios/internal/logging"
)

// Executor runs a command against the session and returns its output.
type Executor interface {
	Exec(ctx context.Context, args ...string) ([]string, error)
}

// Scheduler manages cron jobs that drive the session, currently the autosave.
type Scheduler struct {
	cron    *cron.Cron
	session Executor
	timeout time.Duration
	log     *logging.Logger
}

// NewScheduler creates a scheduler bound to a session.
func NewScheduler(session Executor, log *logging.Logger) *Scheduler {
	if log == nil {
		log = logging.Global()
	}
	return &Scheduler{
		cron:    cron.New(),
		session: session,
		timeout: 5 * time.Minute,
		log:     log.WithComponent("scheduler"),
	}
}

// ScheduleAutosave saves a snapshot on every tick of spec, a standard cron
// expression or descriptor such as "@every 30m".
func (s *Scheduler) ScheduleAutosave(spec string) error {
	_, err := s.cron.AddFunc(spec, s.autosave)
	if err != nil {
		return fmt.Errorf("schedule autosave %q: %w", spec, err)
	}
	s.log.Info("Autosave scheduled: %s", spec)
	return nil
}

func (s *Scheduler) autosave() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	lines, err := s.session.Exec(ctx, "save")
	if err != nil {
		s.log.Warn("Autosave skipped: %v", err)
		return
	}
	for _, line := range lines {
		s.log.Debug("Autosave: %s", line)
	}
}

// Run starts the scheduler and stops it when ctx is done, waiting for a
// running job to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	return nil
}
