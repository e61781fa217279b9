package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/voicepage/kwsbench/internal/trainer"
	"github.com/voicepage/kwsbench/internal/types"
)

// fakeRunner scripts stage outcomes.
type fakeRunner struct {
	failOn string // Stage name that should fail, empty for success
	lines  []string
	ran    []string
	block  chan struct{} // When set, RunStage waits for it
}

func (r *fakeRunner) RunStage(ctx context.Context, stage trainer.Stage, onLine func(string)) error {
	r.ran = append(r.ran, stage.Name)
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	for _, line := range r.lines {
		onLine(line)
	}
	if stage.Name == r.failOn {
		return errors.New("stage blew up")
	}
	return nil
}

// recorder captures notifier calls.
type recorder struct {
	completed []string
	failed    []string
}

func (r *recorder) NotifyJobCompleted(job types.Job) { r.completed = append(r.completed, job.ID) }
func (r *recorder) NotifyJobFailed(job types.Job)    { r.failed = append(r.failed, job.ID) }

func waitTerminal(t *testing.T, m *Manager, id string) types.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if job, ok := m.Job(id); ok && job.Status.Terminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal state", id)
	return types.Job{}
}

func TestLaunchRunsAllStages(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "jobs.json"))
	defer m.Close()
	notes := &recorder{}
	m.Notifier = notes

	runner := &fakeRunner{lines: []string{"step ok"}}
	job, err := m.Launch(LaunchSpec{
		Runner:     runner,
		ConfigPath: "cfg.yml",
		Config:     types.JobConfig{Keyword: "kw", ConfigTemplate: types.TemplateFull},
	})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}

	final := waitTerminal(t, m, job.ID)
	if final.Status != types.JobDone {
		t.Fatalf("status = %s, error = %q", final.Status, final.Error)
	}
	if final.Progress != 100 || final.CompletedAt == 0 || final.StartedAt == 0 {
		t.Fatalf("final job = %+v", final)
	}
	want := []string{"generate", "augment", "train", "export", "eval"}
	if len(runner.ran) != len(want) {
		t.Fatalf("ran stages %v, want %v", runner.ran, want)
	}
	for i, name := range want {
		if runner.ran[i] != name {
			t.Fatalf("stage %d = %s, want %s", i, runner.ran[i], name)
		}
	}
	if len(final.Log) != len(want) {
		t.Fatalf("log has %d lines, want one per stage", len(final.Log))
	}
	if len(notes.completed) != 1 || len(notes.failed) != 0 {
		t.Fatalf("notifications = %+v", notes)
	}
}

func TestLaunchFailureStopsPipeline(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "jobs.json"))
	defer m.Close()
	notes := &recorder{}
	m.Notifier = notes

	runner := &fakeRunner{failOn: "train"}
	job, err := m.Launch(LaunchSpec{Runner: runner, Config: types.JobConfig{Keyword: "kw"}})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}

	final := waitTerminal(t, m, job.ID)
	if final.Status != types.JobFailed {
		t.Fatalf("status = %s", final.Status)
	}
	if final.Error == "" {
		t.Fatal("failed job carries no error")
	}
	if len(runner.ran) != 3 {
		t.Fatalf("ran %v, want stop after train", runner.ran)
	}
	if len(notes.failed) != 1 {
		t.Fatalf("notifications = %+v", notes)
	}
}

func TestLaunchRejectsConcurrentJob(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "jobs.json"))
	defer m.Close()

	block := make(chan struct{})
	runner := &fakeRunner{block: block}
	job, err := m.Launch(LaunchSpec{Runner: runner, Config: types.JobConfig{Keyword: "kw"}})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if _, err := m.Launch(LaunchSpec{Runner: &fakeRunner{}, Config: types.JobConfig{Keyword: "other"}}); err == nil {
		t.Fatal("second launch should be rejected while a job runs")
	}

	close(block)
	waitTerminal(t, m, job.ID)
}

func TestHistorySurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")

	m := NewManager(path)
	job, err := m.Launch(LaunchSpec{Runner: &fakeRunner{}, Config: types.JobConfig{Keyword: "kw"}})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	waitTerminal(t, m, job.ID)
	m.Close()

	again := NewManager(path)
	if err := again.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	restored, ok := again.Job(job.ID)
	if !ok {
		t.Fatalf("job %s lost across restart", job.ID)
	}
	if restored.Status != types.JobDone {
		t.Fatalf("restored status = %s", restored.Status)
	}
	again.Close()
}

func TestLoadMarksInterruptedJobsFailed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	content := `{"job-abc":{"id":"job-abc","config":{"keyword":"kw"},"status":"training","created_at":1}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	m := NewManager(path)
	defer m.Close()
	if err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	job, ok := m.Job("job-abc")
	if !ok || job.Status != types.JobFailed {
		t.Fatalf("interrupted job = %+v", job)
	}
}

func TestPrepareConfigTemplates(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "oww_kw.yml"), []byte("model_name: kw\nsteps: 100\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "oww_kw_minimal.yml"), []byte("model_name: kw\nsteps: 10\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	path, err := PrepareConfig(dir, types.JobConfig{Keyword: "kw", ConfigTemplate: types.TemplateFull})
	if err != nil || filepath.Base(path) != "oww_kw.yml" {
		t.Fatalf("full template: %q, %v", path, err)
	}
	path, err = PrepareConfig(dir, types.JobConfig{Keyword: "kw", ConfigTemplate: types.TemplateMinimal})
	if err != nil || filepath.Base(path) != "oww_kw_minimal.yml" {
		t.Fatalf("minimal template: %q, %v", path, err)
	}
	if _, err := PrepareConfig(dir, types.JobConfig{Keyword: "missing"}); err == nil {
		t.Fatal("missing template should error")
	}
}

func TestPrepareConfigCustomOverrides(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "oww_kw.yml"), []byte("model_name: kw\nsteps: 100\nn_samples: 500\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	path, err := PrepareConfig(dir, types.JobConfig{
		Keyword:        "kw",
		ConfigTemplate: types.TemplateCustom,
		Overrides:      map[string]any{"steps": 25, "layer_size": 16},
	})
	if err != nil {
		t.Fatalf("PrepareConfig: %v", err)
	}
	if filepath.Base(path) != "oww_kw_custom.yml" {
		t.Fatalf("custom config path = %q", path)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var parsed map[string]any
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		t.Fatalf("parse merged config: %v", err)
	}
	if parsed["model_name"] != "kw" {
		t.Fatalf("model_name = %v", parsed["model_name"])
	}
	// Overrides win, untouched keys survive.
	if v, ok := parsed["steps"].(uint64); ok {
		if v != 25 {
			t.Fatalf("steps = %v", v)
		}
	} else if v, ok := parsed["steps"].(int); !ok || v != 25 {
		t.Fatalf("steps = %v (%T)", parsed["steps"], parsed["steps"])
	}
	if parsed["n_samples"] == nil || parsed["layer_size"] == nil {
		t.Fatalf("merged config incomplete: %v", parsed)
	}
}
