// Package trainer runs the external training pipeline as a sequence of
// typed stages, each one invocation of the trainer script.
package trainer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/voicepage/kwsbench/internal/types"
	"github.com/voicepage/kwsbench/internal/util"
)

// Stage is one step of the training pipeline.
type Stage struct {
	Status types.JobStatus // Job status while this stage runs
	Name   string          // Trainer subcommand
	Args   []string        // Arguments after the subcommand
}

// Stages returns the full pipeline for one keyword. The first three stages
// consume the training config; export and evaluation address the keyword
// directly.
func Stages(configPath, keyword string) []Stage {
	return []Stage{
		{Status: types.JobGenerating, Name: "generate", Args: []string{"--config", configPath}},
		{Status: types.JobAugmenting, Name: "augment", Args: []string{"--config", configPath}},
		{Status: types.JobTraining, Name: "train", Args: []string{"--config", configPath}},
		{Status: types.JobExporting, Name: "export", Args: []string{"--keyword", keyword}},
		{Status: types.JobEvaluating, Name: "eval", Args: []string{"--keyword", keyword}},
	}
}

// Runner invokes the trainer script.
type Runner struct {
	Python string // Interpreter, e.g. python3 or a venv binary
	Script string // Trainer entry point
	Dir    string // Working directory for the trainer
}

// ResolvePython returns the interpreter to use: a venv inside the tools
// dir when present, otherwise the configured interpreter.
func ResolvePython(toolsDir, configured string) string {
	venv := filepath.Join(toolsDir, "venv", "bin", "python")
	if _, err := os.Stat(venv); err == nil {
		return venv
	}
	return configured
}

// RunStage executes one stage, streaming combined stdout/stderr line by
// line to onLine. It blocks until the stage exits and returns an error on a
// non-zero exit or cancellation.
func (r *Runner) RunStage(ctx context.Context, stage Stage, onLine func(string)) error {
	args := append([]string{r.Script, stage.Name}, stage.Args...)
	cmd := exec.CommandContext(ctx, r.Python, args...)
	cmd.Dir = r.Dir
	// Give the trainer a chance to clean up partial artifacts on cancel.
	cmd.Cancel = func() error { return util.GracefulSignal(cmd.Process) }
	cmd.WaitDelay = 10 * time.Second

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pw.Close()
		return util.WrapError("start trainer stage "+stage.Name, err)
	}
	slog.Info("Trainer stage started", "stage", stage.Name, "pid", cmd.Process.Pid)

	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			if onLine != nil {
				onLine(scanner.Text())
			}
		}
	}()

	err := cmd.Wait()
	pw.Close()
	<-done

	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("trainer stage %s exited with code %d", stage.Name, exitErr.ExitCode())
		}
		return util.WrapError("run trainer stage "+stage.Name, err)
	}
	return nil
}
