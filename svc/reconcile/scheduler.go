package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dmitrymomot/bookpage/pkg/logger"
)

// Schedule determines when a periodic task should run next.
type Schedule interface {
	Next(from time.Time) time.Time
	String() string
}

type intervalSchedule struct {
	every time.Duration
}

// Every runs a task at fixed intervals.
func Every(d time.Duration) Schedule {
	return intervalSchedule{every: d}
}

func (s intervalSchedule) Next(from time.Time) time.Time {
	return from.Add(s.every)
}

func (s intervalSchedule) String() string {
	return fmt.Sprintf("every %v", s.every)
}

// TaskFunc is one periodic job.
type TaskFunc func(ctx context.Context) error

// Scheduler runs registered tasks in-process. Tasks run one at a time, so a
// slow sweep delays the others instead of overlapping with itself.
type Scheduler struct {
	tasks    map[string]*scheduledTask
	mu       sync.RWMutex
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

type scheduledTask struct {
	name     string
	schedule Schedule
	fn       TaskFunc
	lastRun  *time.Time
}

type SchedulerOption func(*Scheduler)

// WithCheckInterval sets how often due tasks are checked. Default 30s.
func WithCheckInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

func NewScheduler(opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		tasks:    make(map[string]*scheduledTask),
		interval: 30 * time.Second,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddTask registers a periodic task. Every task runs once as soon as the
// scheduler starts.
func (s *Scheduler) AddTask(name string, schedule Schedule, fn TaskFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[name]; exists {
		return ErrTaskAlreadyRegistered
	}
	s.tasks[name] = &scheduledTask{name: name, schedule: schedule, fn: fn}

	s.logger.Info("registered periodic task",
		logger.Component("scheduler"),
		slog.String("task_name", name),
		slog.String("schedule", schedule.String()))
	return nil
}

// Start runs due tasks until ctx is canceled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.RLock()
	taskCount := len(s.tasks)
	s.mu.RUnlock()

	if taskCount == 0 {
		return ErrSchedulerNotConfigured
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runDue(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler shutting down", logger.Component("scheduler"))
			return ctx.Err()
		case <-ticker.C:
			s.runDue(ctx)
		}
	}
}

func (s *Scheduler) runDue(ctx context.Context) {
	s.mu.RLock()
	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	s.mu.RUnlock()
	slices.Sort(names)

	for _, name := range names {
		if ctx.Err() != nil {
			return
		}
		s.mu.RLock()
		task := s.tasks[name]
		s.mu.RUnlock()

		now := s.now()
		if task.lastRun != nil && task.schedule.Next(*task.lastRun).After(now) {
			continue
		}
		s.run(ctx, task, now)
	}
}

func (s *Scheduler) run(ctx context.Context, task *scheduledTask, now time.Time) {
	start := time.Now()
	err := task.fn(ctx)

	s.mu.Lock()
	task.lastRun = &now
	s.mu.Unlock()

	if err != nil {
		s.logger.ErrorContext(ctx, "periodic task failed",
			logger.Component("scheduler"),
			slog.String("task_name", task.name),
			logger.Duration(time.Since(start)),
			logger.Error(err))
		return
	}
	s.logger.DebugContext(ctx, "periodic task finished",
		logger.Component("scheduler"),
		slog.String("task_name", task.name),
		logger.Duration(time.Since(start)))
}

// Register adds the grace and preview sweeps to the scheduler.
func (s *Service) Register(sched *Scheduler, cfg Config) error {
	if err := sched.AddTask(SweepGrace, Every(cfg.GraceSweepInterval), func(ctx context.Context) error {
		_, err := s.GraceSweep(ctx)
		return err
	}); err != nil {
		return err
	}
	return sched.AddTask(SweepPreview, Every(cfg.PreviewSweepInterval), func(ctx context.Context) error {
		_, err := s.PreviewSweep(ctx)
		return err
	})
}
