package kws

import (
	"context"
	"log/slog"
	"sync"

	"github.com/voicepage/kwsbench/internal/types"
)

// DefaultWorkers bounds clip-level parallelism during corpus evaluation.
const DefaultWorkers = 4

// AnnotatedClip pairs a decoded clip with its ground-truth occurrences.
type AnnotatedClip struct {
	Clip        types.AudioClip
	GroundTruth []types.GroundTruth
}

// Evaluator runs the detect-match chain over clip corpora.
type Evaluator struct {
	model       Model
	ToleranceMs float64
	Workers     int
}

// NewEvaluator creates an evaluator with default tolerance and parallelism.
func NewEvaluator(m Model) *Evaluator {
	return &Evaluator{
		model:       m,
		ToleranceMs: types.DefaultToleranceMs,
		Workers:     DefaultWorkers,
	}
}

// Model returns the evaluator's acoustic model.
func (e *Evaluator) Model() Model { return e.model }

// EvaluateClip runs one clip through the detector and matches the hits
// against its ground truth.
func (e *Evaluator) EvaluateClip(ctx context.Context, clip AnnotatedClip, keywords []string, threshold float64) (types.ClipResult, error) {
	det, err := Detect(ctx, e.model, clip.Clip, keywords, threshold)
	if err != nil {
		return types.ClipResult{}, err
	}
	return Match(clip.Clip, det, clip.GroundTruth, e.ToleranceMs), nil
}

// EvaluateClips evaluates a corpus with a bounded worker pool. A clip that
// fails to evaluate is reported and skipped; the rest of the corpus still
// completes. Result order follows input order. A missing model is the only
// fatal condition, since no clip could succeed.
func (e *Evaluator) EvaluateClips(ctx context.Context, clips []AnnotatedClip, keywords []string, threshold float64) ([]types.ClipResult, []types.ClipError, error) {
	if !e.model.Ready() {
		return nil, nil, types.ErrNotReady
	}

	workers := e.Workers
	if workers < 1 {
		workers = DefaultWorkers
	}

	slots := make([]*types.ClipResult, len(clips))
	errSlots := make([]*types.ClipError, len(clips))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, clip := range clips {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, clip AnnotatedClip) {
			defer wg.Done()
			defer func() { <-sem }()
			result, err := e.EvaluateClip(ctx, clip, keywords, threshold)
			if err != nil {
				slog.Warn("Clip evaluation failed", "clip", clip.Clip.ID, "error", err)
				errSlots[i] = &types.ClipError{ClipID: clip.Clip.ID, Stage: "detect", Error: err.Error()}
				return
			}
			slots[i] = &result
		}(i, clip)
	}
	wg.Wait()

	results := make([]types.ClipResult, 0, len(clips))
	var failures []types.ClipError
	for i := range clips {
		if slots[i] != nil {
			results = append(results, *slots[i])
		}
		if errSlots[i] != nil {
			failures = append(failures, *errSlots[i])
		}
	}
	return results, failures, ctx.Err()
}
