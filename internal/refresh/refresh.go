// Package refresh reloads the schedule sources on a cron schedule.
package refresh

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"

	appLog "matside/internal/log"
	"matside/internal/model"
)

// Reloader reloads sources; *schedule.Repository satisfies it.
type Reloader interface {
	Reload(ctx context.Context) ([]model.JoinedEntry, error)
}

// Scheduler runs Reload on a standard 5-field cron spec.
type Scheduler struct {
	cron    *cron.Cron
	target  Reloader
	timeout time.Duration
}

// New parses spec and prepares a Scheduler in loc. An empty spec is an
// error; callers skip scheduling when refresh is disabled.
func New(spec string, loc *time.Location, target Reloader) (*Scheduler, error) {
	if spec == "" {
		return nil, errors.New("refresh: empty schedule")
	}
	if loc == nil {
		loc = time.Local
	}
	s := &Scheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		target:  target,
		timeout: time.Minute,
	}
	if _, err := s.cron.AddFunc(spec, s.runOnce); err != nil {
		return nil, err
	}
	return s, nil
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	appLog.Info("refresh scheduler started", "next", s.Next().Format(time.RFC3339))
}

// Stop stops the scheduler and waits for a running reload to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Next returns the next scheduled reload, or the zero time before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Scheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	entries, err := s.target.Reload(ctx)
	if err != nil {
		appLog.Error("scheduled reload failed", err)
		return
	}
	appLog.Info("scheduled reload complete", "entries", len(entries))
}
