package kws

import (
	"context"
	"errors"

	"github.com/voicepage/kwsbench/internal/types"
)

// DefaultThresholds returns the standard sweep grid: 0.05 to 0.95 in steps
// of 0.025.
func DefaultThresholds() []float64 {
	thresholds := make([]float64, 37)
	for i := range thresholds {
		thresholds[i] = 0.05 + float64(i)*0.025
	}
	return thresholds
}

// Sweep evaluates one keyword over a corpus at each threshold and returns
// one curve point per threshold, in input order, plus the clips that failed
// to evaluate. The full detect-match chain reruns per threshold because the
// score gate sits inside the frame loop; clips are evaluated in parallel
// within each threshold instead. Ground truth for other keywords is ignored.
// Clip failures are reported from the first threshold only; a clip that
// fails there fails at every threshold for the same reason.
func Sweep(ctx context.Context, e *Evaluator, clips []AnnotatedClip, keyword string, thresholds []float64) ([]types.CurvePoint, []types.ClipError, error) {
	scoped := make([]AnnotatedClip, len(clips))
	for i, clip := range clips {
		scoped[i] = AnnotatedClip{Clip: clip.Clip}
		for _, gt := range clip.GroundTruth {
			if gt.Keyword == keyword {
				scoped[i].GroundTruth = append(scoped[i].GroundTruth, gt)
			}
		}
	}

	keywords := []string{keyword}
	points := make([]types.CurvePoint, 0, len(thresholds))
	var clipFailures []types.ClipError
	for ti, threshold := range thresholds {
		if err := ctx.Err(); err != nil {
			return points, clipFailures, err
		}
		results, failures, err := e.EvaluateClips(ctx, scoped, keywords, threshold)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return points, clipFailures, err
			}
			return nil, clipFailures, err
		}
		if ti == 0 {
			clipFailures = failures
		}
		m := Aggregate(results, keyword, threshold)
		points = append(points, types.CurvePoint{
			Threshold:       threshold,
			FalseRejectRate: m.FalseRejectRate,
			FalseAcceptRate: m.FalseAcceptRate,
			TruePositives:   m.TruePositives,
			FalsePositives:  m.FalsePositives,
			FalseNegatives:  m.FalseNegatives,
			Precision:       m.Precision,
			Recall:          m.Recall,
			F1:              m.F1,
		})
	}
	return points, clipFailures, nil
}
