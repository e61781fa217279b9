package kws

import "github.com/voicepage/kwsbench/internal/types"

// Match pairs detections with ground-truth occurrences and produces per-clip
// counts. A detection matches an occurrence when its keyword is equal and its
// timestamp falls inside [start-tolerance, end+tolerance]. Matching is greedy
// first-fit in ground-truth order: each occurrence claims the earliest
// unmatched detection in its window, and each detection matches at most once.
// Unmatched detections are false positives, unmatched occurrences false
// negatives. Only the latencies of claimed detections are recorded, so the
// latency metrics describe true positives rather than every frame scored.
func Match(clip types.AudioClip, det DetectResult, groundTruth []types.GroundTruth, toleranceMs float64) types.ClipResult {
	result := types.ClipResult{
		ClipID:          clip.ID,
		DurationSeconds: clip.DurationSeconds(),
		Detections:      det.Detections,
		PerKeyword:      make(map[string]types.MatchCounts),
	}

	// Detections can only ever match ground truth with the same keyword,
	// so matching decomposes cleanly into independent per-keyword runs.
	keywords := make(map[string]bool)
	for _, d := range det.Detections {
		keywords[d.Keyword] = true
	}
	for _, gt := range groundTruth {
		keywords[gt.Keyword] = true
	}

	for kw := range keywords {
		var dets []types.Detection
		for _, d := range det.Detections {
			if d.Keyword == kw {
				dets = append(dets, d)
			}
		}
		var truths []types.GroundTruth
		for _, gt := range groundTruth {
			if gt.Keyword == kw {
				truths = append(truths, gt)
			}
		}

		matched := make([]bool, len(dets))
		tp := 0
		var latencies []float64
		for _, gt := range truths {
			for i, d := range dets {
				if matched[i] {
					continue
				}
				if d.TimestampMs >= gt.StartMs-toleranceMs && d.TimestampMs <= gt.EndMs+toleranceMs {
					matched[i] = true
					tp++
					latencies = append(latencies, d.LatencyMs)
					break
				}
			}
		}

		counts := types.MatchCounts{
			TruePositives:  tp,
			FalsePositives: len(dets) - tp,
			FalseNegatives: len(truths) - tp,
			LatenciesMs:    latencies,
		}
		result.PerKeyword[kw] = counts
		result.TruePositives += counts.TruePositives
		result.FalsePositives += counts.FalsePositives
		result.FalseNegatives += counts.FalseNegatives
	}
	return result
}
