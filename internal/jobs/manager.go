// Package jobs runs reconciliation passes in the background and tracks them
// as pollable jobs. At most one run is active at a time since every run
// rewrites the same result file.
package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"stockrecs/internal/coordinator"
)

// DefaultHistory is the number of finished jobs kept for listing.
const DefaultHistory = 50

var (
	// ErrRunInProgress is returned by Submit while another run is pending
	// or running.
	ErrRunInProgress = errors.New("a run is already in progress")
	// ErrNotFound is returned for unknown job ids.
	ErrNotFound = errors.New("job not found")
	// ErrShutdown is returned by Submit after Shutdown.
	ErrShutdown = errors.New("job manager is shut down")
)

// State is the lifecycle position of a job.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Done reports whether the job has finished.
func (s State) Done() bool {
	return s == StateSucceeded || s == StateFailed
}

// Job is a snapshot of one submitted run.
type Job struct {
	ID      string `json:"id"`
	Trigger string `json:"trigger"`
	State   State  `json:"state"`

	Submitted time.Time `json:"submitted"`
	Started   time.Time `json:"started,omitzero"`
	Finished  time.Time `json:"finished,omitzero"`

	Summary *coordinator.Summary `json:"summary,omitempty"`
	Error   string               `json:"error,omitempty"`
}

// RunFunc performs one reconciliation pass.
type RunFunc func(ctx context.Context) (coordinator.Summary, error)

type entry struct {
	job  Job
	done chan struct{}
}

// Manager owns the background runs.
type Manager struct {
	run     RunFunc
	history int
	log     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	jobs   map[string]*entry
	order  []string // oldest first
	active string
	closed bool
}

// New creates a Manager. history <= 0 means DefaultHistory.
func New(run RunFunc, history int, log zerolog.Logger) *Manager {
	if history <= 0 {
		history = DefaultHistory
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		run:     run,
		history: history,
		log:     log.With().Str("component", "jobs").Logger(),
		ctx:     ctx,
		cancel:  cancel,
		jobs:    make(map[string]*entry),
	}
}

// Submit starts a run in the background and returns its pending job.
func (m *Manager) Submit(trigger string) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Job{}, ErrShutdown
	}
	if m.active != "" {
		return m.jobs[m.active].job, ErrRunInProgress
	}

	e := &entry{
		job: Job{
			ID:        uuid.New().String(),
			Trigger:   trigger,
			State:     StatePending,
			Submitted: time.Now(),
		},
		done: make(chan struct{}),
	}
	m.jobs[e.job.ID] = e
	m.order = append(m.order, e.job.ID)
	m.active = e.job.ID
	m.trimLocked()

	m.wg.Add(1)
	go m.execute(e)

	m.log.Info().Str("job_id", e.job.ID).Str("trigger", trigger).Msg("Run submitted")
	return e.job, nil
}

func (m *Manager) execute(e *entry) {
	defer m.wg.Done()
	defer close(e.done)

	m.mu.Lock()
	e.job.State = StateRunning
	e.job.Started = time.Now()
	id := e.job.ID
	m.mu.Unlock()

	summary, err := m.safeRun()

	m.mu.Lock()
	defer m.mu.Unlock()
	e.job.Finished = time.Now()
	e.job.Summary = &summary
	if err != nil {
		e.job.State = StateFailed
		e.job.Error = err.Error()
		m.log.Error().Err(err).Str("job_id", id).Msg("Run failed")
	} else {
		e.job.State = StateSucceeded
		m.log.Info().Str("job_id", id).Dur("took", e.job.Finished.Sub(e.job.Started)).Msg("Run succeeded")
	}
	m.active = ""
}

func (m *Manager) safeRun() (summary coordinator.Summary, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.New("run panicked")
			m.log.Error().Interface("panic", p).Msg("Recovered from panic in run")
		}
	}()
	return m.run(m.ctx)
}

// trimLocked drops the oldest finished jobs beyond the history limit.
func (m *Manager) trimLocked() {
	for len(m.order) > m.history {
		dropped := false
		for i, id := range m.order {
			if m.jobs[id].job.State.Done() {
				delete(m.jobs, id)
				m.order = append(m.order[:i], m.order[i+1:]...)
				dropped = true
				break
			}
		}
		if !dropped {
			return
		}
	}
}

// Get returns the job with id.
func (m *Manager) Get(id string) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return e.job, nil
}

// Active returns the pending or running job, if any.
func (m *Manager) Active() (Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == "" {
		return Job{}, false
	}
	return m.jobs[m.active].job, true
}

// List returns known jobs, newest first.
func (m *Manager) List() []Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Job, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		out = append(out, m.jobs[m.order[i]].job)
	}
	return out
}

// Wait blocks until job id finishes or ctx is done.
func (m *Manager) Wait(ctx context.Context, id string) (Job, error) {
	m.mu.Lock()
	e, ok := m.jobs[id]
	m.mu.Unlock()
	if !ok {
		return Job{}, ErrNotFound
	}

	select {
	case <-e.done:
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return e.job, nil
}

// Shutdown rejects new submissions, cancels the active run and waits for
// it to return or for ctx to end.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.log.Info().Msg("Job manager stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
