package commands

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/voicepage/kwsbench/internal/audio"
	"github.com/voicepage/kwsbench/internal/kws"
	"github.com/voicepage/kwsbench/internal/model"
	"github.com/voicepage/kwsbench/internal/scanner"
	"github.com/voicepage/kwsbench/internal/types"
)

// openRuntime loads the acoustic models from the --models directory.
func openRuntime() (*model.Runtime, error) {
	rt := model.NewRuntime(modelsDir)
	if err := rt.Load(); err != nil {
		return nil, fmt.Errorf("load models from %s: %w", modelsDir, err)
	}
	slog.Debug("acoustic models loaded", "keywords", rt.AvailableKeywords())
	return rt, nil
}

// newEvaluator builds an evaluator from the global flags.
func newEvaluator(rt *model.Runtime) *kws.Evaluator {
	e := kws.NewEvaluator(rt)
	e.ToleranceMs = toleranceMs
	e.Workers = workers
	return e
}

// loadCorpus reads the WAV files and annotation sidecars in a directory.
// Clips that fail to decode or annotate are skipped and reported.
func loadCorpus(dir string) ([]kws.AnnotatedClip, []types.ClipError, error) {
	entries, err := scanner.Clips(dir)
	if err != nil {
		return nil, nil, err
	}
	if len(entries) == 0 {
		return nil, nil, fmt.Errorf("no WAV files in %s", dir)
	}

	var clips []kws.AnnotatedClip
	var failures []types.ClipError
	for _, entry := range entries {
		id := filepath.Base(entry.Path)
		clip, err := audio.LoadWAV(entry.Path)
		if err != nil {
			slog.Warn("Skipping clip", "clip", id, "error", err)
			failures = append(failures, types.ClipError{ClipID: id, Stage: "load", Error: err.Error()})
			continue
		}
		truth, err := scanner.LoadGroundTruth(scanner.AnnotationPath(entry.Path))
		if err != nil {
			slog.Warn("Skipping clip", "clip", id, "error", err)
			failures = append(failures, types.ClipError{ClipID: id, Stage: "annotate", Error: err.Error()})
			continue
		}
		clips = append(clips, kws.AnnotatedClip{Clip: clip, GroundTruth: truth})
	}
	if len(clips) == 0 {
		return nil, failures, fmt.Errorf("no usable clips in %s", dir)
	}
	return clips, failures, nil
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
