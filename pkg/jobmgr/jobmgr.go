// Package jobmgr runs named background jobs with cancellation and
// lifecycle logging. A name can only run once at a time; jobs are
// forgotten when they finish.
//
//	jm := jobmgr.NewManager(log)
//	_ = jm.Every(ctx, "refresh", time.Hour, refresh)
//	defer jm.StopAll()
package jobmgr

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrRunning    = errors.New("job already running")
	ErrNotRunning = errors.New("job not running")
)

type job struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager tracks running jobs. It is safe for concurrent use.
type Manager struct {
	mu   sync.Mutex
	jobs map[string]*job
	log  zerolog.Logger
}

// NewManager creates a Manager that reports job lifecycle to log.
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		jobs: make(map[string]*job),
		log:  log.With().Str("component", "jobs").Logger(),
	}
}

// StartAsync runs fn in its own goroutine under a context derived from
// parent. Stop or StopAll cancel it.
func (m *Manager) StartAsync(parent context.Context, name string, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[name]; ok {
		return fmt.Errorf("%w: %s", ErrRunning, name)
	}

	ctx, cancel := context.WithCancel(parent)
	j := &job{cancel: cancel, done: make(chan struct{})}
	m.jobs[name] = j

	go func() {
		defer close(j.done)
		defer cancel()

		m.log.Debug().Str("job", name).Msg("running")
		err := fn(ctx)
		switch {
		case err == nil, errors.Is(err, context.Canceled):
			m.log.Debug().Str("job", name).Msg("done")
		default:
			m.log.Error().Err(err).Str("job", name).Msg("job failed")
		}

		m.mu.Lock()
		if m.jobs[name] == j {
			delete(m.jobs, name)
		}
		m.mu.Unlock()
	}()
	return nil
}

// Every runs fn immediately and then on each tick of interval until the
// job is stopped. A failing run is logged and does not stop the job.
func (m *Manager) Every(parent context.Context, name string, interval time.Duration, fn func(ctx context.Context) error) error {
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}
	return m.StartAsync(parent, name, func(ctx context.Context) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				m.log.Warn().Err(err).Str("job", name).Msg("run failed")
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	})
}

// Stop cancels a job and waits for it to return.
func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	j, ok := m.jobs[name]
	if ok {
		delete(m.jobs, name)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRunning, name)
	}
	j.cancel()
	<-j.done
	return nil
}

// StopAll cancels every job and waits for them.
func (m *Manager) StopAll() {
	m.mu.Lock()
	jobs := m.jobs
	m.jobs = make(map[string]*job)
	m.mu.Unlock()

	for _, j := range jobs {
		j.cancel()
	}
	for _, j := range jobs {
		<-j.done
	}
}

// List returns the running job names, sorted.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.jobs))
	for name := range m.jobs {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// Status summarises running jobs for humans.
func (m *Manager) Status() string {
	active := m.List()
	if len(active) == 0 {
		return "No jobs are running."
	}
	return "Running jobs: " + strings.Join(active, ", ")
}
