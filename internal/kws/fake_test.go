package kws

import (
	"github.com/voicepage/kwsbench/internal/types"
)

// fakeModel is a deterministic stand-in for the ONNX runtime. Each frame
// produces one mel row whose first bin carries the frame's first sample, the
// embedding carries the newest row's first bin, and Classify returns that
// value plus a per-keyword bias. Scores are therefore scripted directly in
// the clip samples, which keeps the fake stateless and safe under the
// evaluator's worker pool.
type fakeModel struct {
	keywords    []string
	notReady    bool
	melErr      error
	embedErr    error
	classifyErr error
	bias        map[string]float64
}

func (m *fakeModel) MelTransform(frame []float32) ([]float32, error) {
	if m.melErr != nil {
		return nil, m.melErr
	}
	row := make([]float32, types.MelFeatureWidth)
	if len(frame) > 0 {
		row[0] = frame[0]
	}
	return row, nil
}

func (m *fakeModel) Embed(window []float32) ([]float32, error) {
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	embedding := make([]float32, types.EmbeddingSize)
	embedding[0] = window[(types.MelWindowFrames-1)*types.MelFeatureWidth]
	return embedding, nil
}

func (m *fakeModel) Classify(keyword string, embedding []float32) (float64, error) {
	if m.classifyErr != nil {
		return 0, m.classifyErr
	}
	return float64(embedding[0]) + m.bias[keyword], nil
}

func (m *fakeModel) AvailableKeywords() []string { return m.keywords }

func (m *fakeModel) Ready() bool { return !m.notReady }

// scoredClip builds a clip whose i-th frame scores scores[i] for unbiased
// keywords.
func scoredClip(id string, scores ...float64) types.AudioClip {
	samples := make([]float32, len(scores)*types.FrameSamples)
	for i, s := range scores {
		samples[i*types.FrameSamples] = float32(s)
	}
	return types.AudioClip{ID: id, Samples: samples}
}
