package kws

import (
	"testing"

	"github.com/voicepage/kwsbench/internal/types"
)

func clipOfSeconds(id string, seconds float64) types.AudioClip {
	return types.AudioClip{ID: id, Samples: make([]float32, int(seconds*types.SampleRate))}
}

func det(tsMs float64, keyword string) types.Detection {
	return types.Detection{TimestampMs: tsMs, Keyword: keyword, Score: 0.9}
}

func TestMatchWithinTolerance(t *testing.T) {
	clip := clipOfSeconds("clip", 10)
	dr := DetectResult{Detections: []types.Detection{det(600, "kw")}}
	gt := []types.GroundTruth{{StartMs: 1000, EndMs: 1500, Keyword: "kw"}}

	r := Match(clip, dr, gt, 500)
	if r.TruePositives != 1 || r.FalsePositives != 0 || r.FalseNegatives != 0 {
		t.Fatalf("tp/fp/fn = %d/%d/%d, want 1/0/0", r.TruePositives, r.FalsePositives, r.FalseNegatives)
	}
}

func TestMatchToleranceBoundariesInclusive(t *testing.T) {
	clip := clipOfSeconds("clip", 10)
	gt := []types.GroundTruth{{StartMs: 1000, EndMs: 1500, Keyword: "kw"}}

	for _, ts := range []float64{500, 2000} {
		r := Match(clip, DetectResult{Detections: []types.Detection{det(ts, "kw")}}, gt, 500)
		if r.TruePositives != 1 {
			t.Fatalf("detection at %vms should match [500,2000]", ts)
		}
	}
	r := Match(clip, DetectResult{Detections: []types.Detection{det(2080, "kw")}}, gt, 500)
	if r.TruePositives != 0 || r.FalsePositives != 1 || r.FalseNegatives != 1 {
		t.Fatalf("detection outside window: tp/fp/fn = %d/%d/%d, want 0/1/1", r.TruePositives, r.FalsePositives, r.FalseNegatives)
	}
}

func TestMatchKeywordMustAgree(t *testing.T) {
	clip := clipOfSeconds("clip", 10)
	dr := DetectResult{Detections: []types.Detection{det(1200, "alexa")}}
	gt := []types.GroundTruth{{StartMs: 1000, EndMs: 1500, Keyword: "jarvis"}}

	r := Match(clip, dr, gt, 500)
	if r.TruePositives != 0 || r.FalsePositives != 1 || r.FalseNegatives != 1 {
		t.Fatalf("tp/fp/fn = %d/%d/%d, want 0/1/1", r.TruePositives, r.FalsePositives, r.FalseNegatives)
	}
}

func TestMatchDetectionClaimedOnce(t *testing.T) {
	clip := clipOfSeconds("clip", 10)
	// One detection inside two overlapping occurrence windows.
	dr := DetectResult{Detections: []types.Detection{det(1000, "kw")}}
	gt := []types.GroundTruth{
		{StartMs: 800, EndMs: 1200, Keyword: "kw"},
		{StartMs: 900, EndMs: 1300, Keyword: "kw"},
	}

	r := Match(clip, dr, gt, 500)
	if r.TruePositives != 1 || r.FalseNegatives != 1 || r.FalsePositives != 0 {
		t.Fatalf("tp/fp/fn = %d/%d/%d, want 1/0/1", r.TruePositives, r.FalsePositives, r.FalseNegatives)
	}
}

func TestMatchGreedyFirstFit(t *testing.T) {
	clip := clipOfSeconds("clip", 10)
	// Two detections inside one window: the earliest is claimed, the
	// second becomes a false positive.
	dr := DetectResult{Detections: []types.Detection{det(1000, "kw"), det(1100, "kw")}}
	gt := []types.GroundTruth{{StartMs: 800, EndMs: 1200, Keyword: "kw"}}

	r := Match(clip, dr, gt, 500)
	if r.TruePositives != 1 || r.FalsePositives != 1 || r.FalseNegatives != 0 {
		t.Fatalf("tp/fp/fn = %d/%d/%d, want 1/1/0", r.TruePositives, r.FalsePositives, r.FalseNegatives)
	}
}

func TestMatchNoGroundTruth(t *testing.T) {
	clip := clipOfSeconds("clip", 10)
	dr := DetectResult{Detections: []types.Detection{det(100, "kw"), det(900, "kw")}}

	r := Match(clip, dr, nil, 500)
	if r.FalsePositives != 2 || r.TruePositives != 0 || r.FalseNegatives != 0 {
		t.Fatalf("tp/fp/fn = %d/%d/%d, want 0/2/0", r.TruePositives, r.FalsePositives, r.FalseNegatives)
	}
}

func TestMatchNoDetections(t *testing.T) {
	clip := clipOfSeconds("clip", 10)
	gt := []types.GroundTruth{{StartMs: 100, EndMs: 400, Keyword: "kw"}}

	r := Match(clip, DetectResult{}, gt, 500)
	if r.FalseNegatives != 1 || r.TruePositives != 0 || r.FalsePositives != 0 {
		t.Fatalf("tp/fp/fn = %d/%d/%d, want 0/0/1", r.TruePositives, r.FalsePositives, r.FalseNegatives)
	}
}

func TestMatchPerKeywordCounts(t *testing.T) {
	clip := clipOfSeconds("clip", 10)
	alexaDet := det(1000, "alexa")
	alexaDet.LatencyMs = 10
	jarvisDet := det(5000, "jarvis")
	jarvisDet.LatencyMs = 11
	dr := DetectResult{Detections: []types.Detection{alexaDet, jarvisDet}}
	gt := []types.GroundTruth{
		{StartMs: 900, EndMs: 1200, Keyword: "alexa"},
		{StartMs: 8000, EndMs: 8400, Keyword: "jarvis"},
	}

	r := Match(clip, dr, gt, 500)
	alexa := r.PerKeyword["alexa"]
	if alexa.TruePositives != 1 || alexa.FalsePositives != 0 || alexa.FalseNegatives != 0 {
		t.Fatalf("alexa counts = %+v", alexa)
	}
	jarvis := r.PerKeyword["jarvis"]
	if jarvis.TruePositives != 0 || jarvis.FalsePositives != 1 || jarvis.FalseNegatives != 1 {
		t.Fatalf("jarvis counts = %+v", jarvis)
	}
	// The alexa detection matched, the jarvis one did not; only the match
	// contributes a latency sample.
	if len(alexa.LatenciesMs) != 1 || alexa.LatenciesMs[0] != 10 {
		t.Fatalf("alexa latencies = %v, want [10]", alexa.LatenciesMs)
	}
	if len(jarvis.LatenciesMs) != 0 {
		t.Fatalf("jarvis latencies = %v, want none for a false positive", jarvis.LatenciesMs)
	}
	if r.TruePositives != 1 || r.FalsePositives != 1 || r.FalseNegatives != 1 {
		t.Fatalf("totals = %d/%d/%d, want 1/1/1", r.TruePositives, r.FalsePositives, r.FalseNegatives)
	}
	if r.DurationSeconds != 10 {
		t.Fatalf("duration = %v, want 10", r.DurationSeconds)
	}
}

func TestMatchLatenciesFromMatchedDetectionsOnly(t *testing.T) {
	clip := clipOfSeconds("clip", 10)
	d := det(1000, "kw")
	d.LatencyMs = 7
	// Per-frame latencies include frames that never fired; they must not
	// reach the metrics.
	dr := DetectResult{
		Detections: []types.Detection{d},
		Latencies:  map[string][]float64{"kw": {100, 200, 7}},
	}
	gt := []types.GroundTruth{{StartMs: 900, EndMs: 1200, Keyword: "kw"}}

	r := Match(clip, dr, gt, 500)
	counts := r.PerKeyword["kw"]
	if len(counts.LatenciesMs) != 1 || counts.LatenciesMs[0] != 7 {
		t.Fatalf("latencies = %v, want only the matched detection's", counts.LatenciesMs)
	}

	m := Aggregate([]types.ClipResult{r}, "kw", 0.5)
	if m.AvgLatencyMs != 7 || m.P95LatencyMs != 7 {
		t.Fatalf("avg/p95 latency = %v/%v, want 7/7", m.AvgLatencyMs, m.P95LatencyMs)
	}
}

func TestMatchIsDeterministic(t *testing.T) {
	clip := clipOfSeconds("clip", 10)
	dr := DetectResult{Detections: []types.Detection{det(1000, "kw"), det(1100, "kw"), det(3000, "kw")}}
	gt := []types.GroundTruth{
		{StartMs: 800, EndMs: 1200, Keyword: "kw"},
		{StartMs: 2800, EndMs: 3100, Keyword: "kw"},
	}

	first := Match(clip, dr, gt, 500)
	for i := 0; i < 10; i++ {
		again := Match(clip, dr, gt, 500)
		if again.TruePositives != first.TruePositives ||
			again.FalsePositives != first.FalsePositives ||
			again.FalseNegatives != first.FalseNegatives {
			t.Fatalf("run %d differed: %+v vs %+v", i, again, first)
		}
	}
}
