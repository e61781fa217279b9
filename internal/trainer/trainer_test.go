package trainer

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/voicepage/kwsbench/internal/types"
)

func TestStagesPipeline(t *testing.T) {
	stages := Stages("/tools/configs/oww_kw.yml", "kw")
	if len(stages) != 5 {
		t.Fatalf("got %d stages, want 5", len(stages))
	}

	wantOrder := []types.JobStatus{
		types.JobGenerating, types.JobAugmenting, types.JobTraining,
		types.JobExporting, types.JobEvaluating,
	}
	for i, want := range wantOrder {
		if stages[i].Status != want {
			t.Fatalf("stage %d status = %s, want %s", i, stages[i].Status, want)
		}
	}
	for _, st := range stages[:3] {
		if len(st.Args) != 2 || st.Args[0] != "--config" {
			t.Fatalf("stage %s args = %v, want config args", st.Name, st.Args)
		}
	}
	for _, st := range stages[3:] {
		if len(st.Args) != 2 || st.Args[0] != "--keyword" || st.Args[1] != "kw" {
			t.Fatalf("stage %s args = %v, want keyword args", st.Name, st.Args)
		}
	}
}

func TestRunStageStreamsOutput(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}

	// "python script.py <stage> --config x" becomes "sh -c 'echo ...'" by
	// using the shell as interpreter and -c as the script.
	r := &Runner{Python: "sh", Script: "-c"}
	var lines []string
	err := r.RunStage(context.Background(), Stage{Name: "echo one; echo two"}, func(line string) {
		lines = append(lines, line)
	})
	if err != nil {
		t.Fatalf("RunStage: %v", err)
	}
	if len(lines) != 2 || lines[0] != "one" || lines[1] != "two" {
		t.Fatalf("lines = %v", lines)
	}
}

func TestRunStageNonZeroExit(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}

	r := &Runner{Python: "sh", Script: "-c"}
	err := r.RunStage(context.Background(), Stage{Name: "exit 3"}, nil)
	if err == nil {
		t.Fatal("expected failure for non-zero exit")
	}
}

func TestRunStageCanceled(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	r := &Runner{Python: "sh", Script: "-c"}
	start := time.Now()
	err := r.RunStage(ctx, Stage{Name: "sleep 30"}, nil)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("cancellation did not stop the stage promptly")
	}
}

func TestResolvePythonFallsBack(t *testing.T) {
	if got := ResolvePython(t.TempDir(), "python3"); got != "python3" {
		t.Fatalf("got %q, want configured interpreter", got)
	}
}
