// Package scheduler runs update tasks on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	apperrors "global-universe/internal/errors"
)

// Task is one named unit of work, typically a catalog walk.
type Task func(ctx context.Context) error

// Scheduler manages the cron entry and the tasks it triggers.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	logger zerolog.Logger

	mu    sync.Mutex
	tasks map[string]Task
	busy  sync.Mutex
	entry cron.EntryID
}

// New creates a Scheduler whose specs carry a seconds field and are
// evaluated in loc.
func New(ctx context.Context, loc *time.Location, logger zerolog.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		ctx:    ctx,
		logger: logger.With().Str("component", "scheduler").Logger(),
		tasks:  make(map[string]Task),
	}
}

// Handle registers a task under name.
func (s *Scheduler) Handle(name string, t Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[name] = t
}

// Register schedules names to run in order on spec.
func (s *Scheduler) Register(spec string, names []string) error {
	if len(names) == 0 {
		return fmt.Errorf("register %q: no tasks", spec)
	}
	if _, err := s.lookup(names); err != nil {
		return err
	}
	id, err := s.cron.AddFunc(spec, func() {
		if err := s.RunNow(names); err != nil {
			s.logger.Error().Err(err).Msg("Scheduled run failed")
		}
	})
	if err != nil {
		return fmt.Errorf("register %q: %w", spec, err)
	}
	s.entry = id
	return nil
}

// ErrBusy is returned when a run is requested while another is in progress.
var ErrBusy = errors.New("scheduler: a run is already in progress")

// RunNow executes names sequentially. An overlapping call returns ErrBusy.
// Every task runs even when an earlier one fails, and the failures are
// joined; a data directory failure stops the run.
func (s *Scheduler) RunNow(names []string) error {
	tasks, err := s.lookup(names)
	if err != nil {
		return err
	}
	if !s.busy.TryLock() {
		s.logger.Warn().Msg("Previous run still in progress, skipping")
		return ErrBusy
	}
	defer s.busy.Unlock()

	var errs []error
	for i, t := range tasks {
		if s.ctx.Err() != nil {
			errs = append(errs, s.ctx.Err())
			break
		}
		name := names[i]
		start := time.Now()
		s.logger.Info().Str("task", name).Msg("Running task")
		err := t(s.ctx)
		if err != nil {
			s.logger.Error().Err(err).Str("task", name).Msg("Task failed")
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			if apperrors.Is(err, apperrors.ErrDataDir) {
				break
			}
			continue
		}
		s.logger.Info().Str("task", name).Dur("duration", time.Since(start)).Msg("Task finished")
	}
	return apperrors.Join(errs...)
}

func (s *Scheduler) lookup(names []string) ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, 0, len(names))
	for _, n := range names {
		t, ok := s.tasks[n]
		if !ok {
			return nil, fmt.Errorf("unknown task %q", n)
		}
		out = append(out, t)
	}
	return out, nil
}

// Next returns the next scheduled run, zero before Start or Register.
func (s *Scheduler) Next() time.Time {
	if s.entry == 0 {
		return time.Time{}
	}
	return s.cron.Entry(s.entry).Next
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Time("next", s.Next()).Msg("Scheduler started")
}

// Stop stops the scheduler and waits for a running task to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Scheduler stopped")
}

// Validate reports whether spec parses with a seconds field.
func Validate(spec string) error {
	p := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := p.Parse(spec); err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	return nil
}
