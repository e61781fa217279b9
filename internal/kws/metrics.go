package kws

import (
	"math"
	"sort"

	"github.com/voicepage/kwsbench/internal/types"
)

// Aggregate folds per-clip results into keyword-level metrics at one
// threshold. Only counts recorded under the requested keyword contribute, so
// clips annotated with multiple keywords never leak hits across keywords.
// Total duration spans all clips: silence-only clips contribute listening
// hours even though they carry no occurrences.
func Aggregate(results []types.ClipResult, keyword string, threshold float64) types.KeywordMetrics {
	var tp, fp, fn int
	var latencies []float64
	var totalSeconds float64

	for _, r := range results {
		totalSeconds += r.DurationSeconds
		counts, ok := r.PerKeyword[keyword]
		if !ok {
			continue
		}
		tp += counts.TruePositives
		fp += counts.FalsePositives
		fn += counts.FalseNegatives
		latencies = append(latencies, counts.LatenciesMs...)
	}

	hours := totalSeconds / 3600
	precision := ratio(tp, tp+fp)
	recall := ratio(tp, tp+fn)

	return types.KeywordMetrics{
		Keyword:            keyword,
		Threshold:          threshold,
		TruePositives:      tp,
		FalsePositives:     fp,
		FalseNegatives:     fn,
		FalseRejectRate:    ratio(fn, tp+fn),
		FalseAcceptRate:    ratio(fp, fp+tp),
		FalsePositivesHour: float64(fp) / math.Max(hours, 0.001),
		Precision:          precision,
		Recall:             recall,
		F1:                 2 * precision * recall / math.Max(precision+recall, 1e-9),
		AvgLatencyMs:       round1(mean(latencies)),
		P95LatencyMs:       round1(percentile95(latencies)),
		TotalClips:         len(results),
		TotalHours:         hours,
	}
}

// ratio divides with a denominator clamped to at least 1, so empty inputs
// yield 0 rather than NaN.
func ratio(num, den int) float64 {
	if den < 1 {
		den = 1
	}
	return float64(num) / float64(den)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// percentile95 computes the 95th percentile with linear interpolation
// between ranks. With fewer than two samples it falls back to the mean.
func percentile95(values []float64) float64 {
	if len(values) < 2 {
		return mean(values)
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	rank := 0.95 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
