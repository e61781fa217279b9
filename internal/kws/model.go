// Package kws implements the streaming keyword-spotting evaluation chain:
// feature accumulation, frame-by-frame detection, detection matching against
// ground truth, metric aggregation and threshold sweeps.
package kws

// Model is the acoustic model chain the detector runs each frame. The
// concrete ONNX-backed implementation lives in internal/model; tests use
// scripted fakes.
type Model interface {
	// MelTransform converts one frame of FrameSamples PCM samples into a
	// flattened block of mel rows (len = rows * MelFeatureWidth).
	MelTransform(frame []float32) ([]float32, error)
	// Embed converts a full MelWindowFrames x MelFeatureWidth window into
	// an EmbeddingSize speech embedding.
	Embed(window []float32) ([]float32, error)
	// Classify scores an embedding against one keyword head.
	Classify(keyword string, embedding []float32) (float64, error)
	// AvailableKeywords lists the loaded keyword heads, sorted.
	AvailableKeywords() []string
	// Ready reports whether the shared models are loaded.
	Ready() bool
}
