package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Job func(ctx context.Context)

type job struct {
	name     string
	interval time.Duration
	run      Job
	cancel   context.CancelFunc
}

// Scheduler owns a registry of named periodic jobs. Each job starts and stops
// independently; Shutdown stops everything and waits for running ticks to
// drain.
type Scheduler struct {
	logger *zap.SugaredLogger

	mu   sync.Mutex
	jobs map[string]*job
	wg   sync.WaitGroup
}

func New(logger *zap.SugaredLogger) *Scheduler {
	return &Scheduler{
		logger: logger,
		jobs:   make(map[string]*job),
	}
}

func (s *Scheduler) Register(name string, interval time.Duration, run Job) error {
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s: already registered", name)
	}
	s.jobs[name] = &job{name: name, interval: interval, run: run}

	return nil
}

func (s *Scheduler) Start(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, exists := s.jobs[name]
	if !exists {
		return fmt.Errorf("job %s: not registered", name)
	}
	if j.cancel != nil {
		return fmt.Errorf("job %s: already running", name)
	}

	ctx, cancel := context.WithCancel(context.Background())
	j.cancel = cancel

	s.wg.Add(1)
	go s.loop(ctx, j)

	return nil
}

func (s *Scheduler) StartAll() {
	s.mu.Lock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	s.mu.Unlock()

	for _, name := range names {
		if err := s.Start(name); err != nil {
			s.logger.Warnw("failed to start job", "job", name, "error", err)
		}
	}
}

func (s *Scheduler) Stop(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, exists := s.jobs[name]
	if !exists {
		return fmt.Errorf("job %s: not registered", name)
	}
	if j.cancel == nil {
		return fmt.Errorf("job %s: not running", name)
	}

	j.cancel()
	j.cancel = nil

	return nil
}

// Shutdown cancels every running job and blocks until they drain or ctx
// expires.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for _, j := range s.jobs {
		if j.cancel != nil {
			j.cancel()
			j.cancel = nil
		}
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler shutdown: %w", ctx.Err())
	}
}

func (s *Scheduler) loop(ctx context.Context, j *job) {
	defer s.wg.Done()

	s.logger.Infow("job started", "job", j.name, "interval", j.interval)
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Infow("job stopped", "job", j.name)
			return
		case <-ticker.C:
			j.run(ctx)
		}
	}
}
