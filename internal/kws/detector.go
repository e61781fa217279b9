package kws

import (
	"context"
	"time"

	"github.com/voicepage/kwsbench/internal/types"
	"github.com/voicepage/kwsbench/internal/util"
)

// DetectResult is the raw output of one streaming pass over a clip.
type DetectResult struct {
	Detections []types.Detection
	// Latencies holds one wall-clock inference latency per frame per
	// keyword, whether or not the frame fired. Diagnostic only; the latency
	// metrics come from the LatencyMs on matched Detections.
	Latencies map[string][]float64
}

// Detect streams a clip through the model chain frame by frame and returns
// every above-threshold hit. The clip is consumed in whole FrameSamples
// hops; a trailing partial frame is dropped. Cancellation is checked at
// frame boundaries, so a canceled context aborts between frames.
func Detect(ctx context.Context, m Model, clip types.AudioClip, keywords []string, threshold float64) (DetectResult, error) {
	res := DetectResult{
		Detections: []types.Detection{},
		Latencies:  make(map[string][]float64, len(keywords)),
	}
	if !m.Ready() {
		return res, types.ErrNotReady
	}

	window := NewMelWindow()
	frames := len(clip.Samples) / types.FrameSamples
	for i := 0; i < frames; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		frame := clip.Samples[i*types.FrameSamples : (i+1)*types.FrameSamples]
		timestampMs := float64(i * types.FrameDurationMs)
		started := time.Now()

		mel, err := m.MelTransform(frame)
		if err != nil {
			return res, util.WrapError("compute mel features", err)
		}
		window.Push(mel)

		embedding, err := m.Embed(window.Window())
		if err != nil {
			return res, util.WrapError("compute embedding", err)
		}

		for _, keyword := range keywords {
			score, err := m.Classify(keyword, embedding)
			if err != nil {
				return res, util.WrapError("classify keyword "+keyword, err)
			}
			latencyMs := float64(time.Since(started)) / float64(time.Millisecond)
			res.Latencies[keyword] = append(res.Latencies[keyword], latencyMs)
			if score >= threshold {
				res.Detections = append(res.Detections, types.Detection{
					TimestampMs: timestampMs,
					Keyword:     keyword,
					Score:       score,
					LatencyMs:   latencyMs,
				})
			}
		}
	}
	return res, nil
}
