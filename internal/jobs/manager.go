// Package jobs tracks training pipeline runs: launching the stage sequence,
// collecting trainer output and persisting job history across restarts.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voicepage/kwsbench/internal/events"
	"github.com/voicepage/kwsbench/internal/trainer"
	"github.com/voicepage/kwsbench/internal/types"
	"github.com/voicepage/kwsbench/internal/util"
)

// maxLogLines caps the per-job log tail kept in memory and history.
const maxLogLines = 500

// StageRunner executes one pipeline stage. *trainer.Runner is the real
// implementation.
type StageRunner interface {
	RunStage(ctx context.Context, stage trainer.Stage, onLine func(string)) error
}

// Notifier receives terminal job transitions. Implementations must not
// block for long; they run on the job goroutine.
type Notifier interface {
	NotifyJobCompleted(job types.Job)
	NotifyJobFailed(job types.Job)
}

// LaunchSpec is everything needed to run one training job.
type LaunchSpec struct {
	Runner     StageRunner
	ConfigPath string // Trainer config consumed by the generate/augment/train stages
	Config     types.JobConfig
}

// Manager owns the job table. One job runs at a time; finished jobs stay as
// history and survive restarts through the history file.
type Manager struct {
	mu   sync.RWMutex
	jobs map[string]*types.Job
	path string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// OnUpdate is invoked with a copy of the job after every change.
	OnUpdate func(types.Job)
	// Notifier, when set, receives terminal transitions.
	Notifier Notifier
	// Events, when set, records job transitions.
	Events *events.Logger
}

// NewManager creates a manager persisting history to path.
func NewManager(path string) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		jobs:   make(map[string]*types.Job),
		path:   path,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Load restores job history. Jobs that were still running when the previous
// process exited are marked failed.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return util.WrapError("read job history", err)
	}
	if err := json.Unmarshal(data, &m.jobs); err != nil {
		return util.WrapError("parse job history", err)
	}

	for _, job := range m.jobs {
		if !job.Status.Terminal() {
			job.Status = types.JobFailed
			job.Error = "interrupted by server restart"
			job.CompletedAt = time.Now().UnixMilli()
		}
	}
	return m.saveLocked()
}

// Close stops running jobs and waits for their goroutines.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
}

// Jobs returns all jobs, newest first.
func (m *Manager) Jobs() []types.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]types.Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, *job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt > jobs[j].CreatedAt })
	return jobs
}

// Job returns a copy of one job.
func (m *Manager) Job(id string) (types.Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return types.Job{}, false
	}
	return *job, true
}

// Active returns the currently running job, if any.
func (m *Manager) Active() (types.Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, job := range m.jobs {
		if !job.Status.Terminal() {
			return *job, true
		}
	}
	return types.Job{}, false
}

// Launch starts a training job. Only one job may run at a time.
func (m *Manager) Launch(spec LaunchSpec) (types.Job, error) {
	m.mu.Lock()
	for _, job := range m.jobs {
		if !job.Status.Terminal() {
			m.mu.Unlock()
			return types.Job{}, fmt.Errorf("job %s is still running", job.ID)
		}
	}

	job := &types.Job{
		ID:        "job-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
		Config:    spec.Config,
		Status:    types.JobQueued,
		CreatedAt: time.Now().UnixMilli(),
	}
	m.jobs[job.ID] = job
	if err := m.saveLocked(); err != nil {
		slog.Warn("Failed to persist job history", "error", err)
	}
	snapshot := *job
	m.mu.Unlock()

	m.logEvent(&events.BenchEvent{Event: events.EventJobQueued, JobID: snapshot.ID, Keyword: snapshot.Config.Keyword})
	m.notifyUpdate(snapshot)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Job goroutine panicked", "job", snapshot.ID, "panic", r)
				m.fail(snapshot.ID, fmt.Errorf("internal error: %v", r))
			}
		}()
		m.run(spec, snapshot.ID)
	}()

	return snapshot, nil
}

// run executes the pipeline stages sequentially.
func (m *Manager) run(spec LaunchSpec, id string) {
	stages := trainer.Stages(spec.ConfigPath, spec.Config.Keyword)

	m.update(id, func(job *types.Job) {
		job.StartedAt = time.Now().UnixMilli()
	})

	for i, stage := range stages {
		progress := i * 100 / len(stages)
		m.update(id, func(job *types.Job) {
			job.Status = stage.Status
			job.CurrentStep = stage.Name
			job.Progress = progress
		})
		m.logEvent(&events.BenchEvent{Event: events.EventJobStage, JobID: id, Message: stage.Name})

		err := spec.Runner.RunStage(m.ctx, stage, func(line string) {
			m.appendLog(id, line)
		})
		if err != nil {
			m.fail(id, fmt.Errorf("%s: %w", stage.Name, err))
			return
		}
	}

	m.update(id, func(job *types.Job) {
		job.Status = types.JobDone
		job.CurrentStep = ""
		job.Progress = 100
		job.CompletedAt = time.Now().UnixMilli()
	})
	m.logEvent(&events.BenchEvent{Event: events.EventJobDone, JobID: id})
	if job, ok := m.Job(id); ok {
		slog.Info("Training job completed", "job", id, "keyword", job.Config.Keyword)
		if m.Notifier != nil {
			m.Notifier.NotifyJobCompleted(job)
		}
	}
}

func (m *Manager) fail(id string, err error) {
	m.update(id, func(job *types.Job) {
		if job.Status.Terminal() {
			return
		}
		job.Status = types.JobFailed
		job.Error = err.Error()
		// The exit status alone rarely says what went wrong; the trainer
		// prints the real cause on its last lines.
		if !errors.Is(err, context.Canceled) {
			if detail := util.ExtractLastError(strings.Join(job.Log, "\n")); detail != "" {
				job.Error = err.Error() + ": " + detail
			}
		}
		job.CompletedAt = time.Now().UnixMilli()
	})
	m.logEvent(&events.BenchEvent{Event: events.EventJobFailed, JobID: id, Error: err.Error()})
	if job, ok := m.Job(id); ok {
		slog.Error("Training job failed", "job", id, "keyword", job.Config.Keyword, "error", err)
		if m.Notifier != nil {
			m.Notifier.NotifyJobFailed(job)
		}
	}
}

// update mutates a job under the lock, persists and broadcasts it.
func (m *Manager) update(id string, fn func(*types.Job)) {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	fn(job)
	if err := m.saveLocked(); err != nil {
		slog.Warn("Failed to persist job history", "error", err)
	}
	snapshot := *job
	m.mu.Unlock()

	m.notifyUpdate(snapshot)
}

// appendLog adds one trainer output line, trimming to the log cap. Log
// lines are broadcast but not persisted per line; the history file is
// rewritten on status changes.
func (m *Manager) appendLog(id string, line string) {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	job.Log = append(job.Log, line)
	if len(job.Log) > maxLogLines {
		job.Log = job.Log[len(job.Log)-maxLogLines:]
	}
	snapshot := *job
	m.mu.Unlock()

	m.notifyUpdate(snapshot)
}

func (m *Manager) notifyUpdate(job types.Job) {
	if m.OnUpdate != nil {
		m.OnUpdate(job)
	}
}

func (m *Manager) logEvent(event *events.BenchEvent) {
	if m.Events == nil {
		return
	}
	if err := m.Events.Log(event); err != nil {
		slog.Warn("Failed to log job event", "error", err)
	}
}

// saveLocked persists the job table. Caller must hold m.mu.
func (m *Manager) saveLocked() error {
	data, err := json.MarshalIndent(m.jobs, "", "  ")
	if err != nil {
		return util.WrapError("marshal job history", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return util.WrapError("create job history directory", err)
	}
	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		return util.WrapError("write job history", err)
	}
	return nil
}
