// Package jobs starts and tracks recognition runs on behalf of the API.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"trace-rescue/internal/core/detection"
)

// Kind names a job type.
type Kind string

const (
	KindRecognize Kind = "recognize"
	KindCapture   Kind = "capture"
	KindTrain     Kind = "train"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

var (
	// ErrUnsupportedJob is returned for job kinds handled by external tools.
	ErrUnsupportedJob = errors.New("job kind is handled by an external tool")
	// ErrJobRunning is returned when a recognition job is already active.
	ErrJobRunning = errors.New("a recognition job is already running")
	// ErrNotFound is returned for unknown job IDs.
	ErrNotFound = errors.New("job not found")
)

// Job is a snapshot of a job's state.
type Job struct {
	ID         string            `json:"id"`
	Kind       Kind              `json:"kind"`
	Status     Status            `json:"status"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
	Error      string            `json:"error,omitempty"`
	Result     *detection.Result `json:"result,omitempty"`
}

// Runner performs one recognition run.
type Runner func(ctx context.Context) (detection.Result, error)

type entry struct {
	job    Job
	cancel context.CancelFunc
}

// Manager runs at most one recognition job at a time, since the camera and
// cooldown are shared.
type Manager struct {
	base context.Context
	run  Runner

	mu     sync.Mutex
	jobs   map[string]*entry
	active string
	wg     sync.WaitGroup
}

// NewManager creates a manager whose jobs are cancelled with base.
func NewManager(base context.Context, run Runner) *Manager {
	return &Manager{base: base, run: run, jobs: make(map[string]*entry)}
}

// Start launches a job of the given kind.
func (m *Manager) Start(kind Kind) (Job, error) {
	switch kind {
	case KindRecognize:
	case KindCapture, KindTrain:
		return Job{}, fmt.Errorf("%w: %s", ErrUnsupportedJob, kind)
	default:
		return Job{}, fmt.Errorf("unknown job kind %q", kind)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != "" {
		return Job{}, ErrJobRunning
	}

	ctx, cancel := context.WithCancel(m.base)
	e := &entry{
		job: Job{
			ID:        uuid.NewString(),
			Kind:      kind,
			Status:    StatusRunning,
			StartedAt: time.Now(),
		},
		cancel: cancel,
	}
	m.jobs[e.job.ID] = e
	m.active = e.job.ID

	m.wg.Add(1)
	go m.execute(ctx, e)

	log.WithField("job", e.job.ID).Info("Recognition job started")
	return e.job, nil
}

func (m *Manager) execute(ctx context.Context, e *entry) {
	defer m.wg.Done()
	defer e.cancel()

	res, err := m.run(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	e.job.FinishedAt = &now
	e.job.Result = &res
	switch {
	case err != nil:
		e.job.Status = StatusFailed
		e.job.Error = err.Error()
	case res.Reason == detection.StopRequested:
		e.job.Status = StatusCancelled
	default:
		e.job.Status = StatusCompleted
	}
	if m.active == e.job.ID {
		m.active = ""
	}
	log.WithFields(log.Fields{"job": e.job.ID, "status": e.job.Status}).Info("Recognition job finished")
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

// List returns all jobs, newest first.
func (m *Manager) List() []Job {
	m.mu.Lock()
	out := make([]Job, 0, len(m.jobs))
	for _, e := range m.jobs {
		out = append(out, e.job)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

// Cancel requests a running job to stop.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	e.cancel()
	return nil
}

// Wait blocks until all jobs have finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Active reports the number of running jobs.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == "" {
		return 0
	}
	return 1
}
