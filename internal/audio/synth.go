package audio

import (
	"math/rand"

	"github.com/voicepage/kwsbench/internal/types"
)

// NoiseAmplitude is the peak level of synthetic noise probes, quiet enough
// to resemble room tone rather than program audio.
const NoiseAmplitude = 0.01

// Silence returns a silent clip of the given duration.
func Silence(id string, seconds float64) types.AudioClip {
	return types.AudioClip{
		ID:      id,
		Samples: make([]float32, int(seconds*types.SampleRate)),
	}
}

// Noise returns a low-amplitude uniform white noise clip. The seed fixes
// the sample sequence so repeated probes are comparable.
func Noise(id string, seconds float64, seed int64) types.AudioClip {
	rng := rand.New(rand.NewSource(seed))
	samples := make([]float32, int(seconds*types.SampleRate))
	for i := range samples {
		samples[i] = float32((rng.Float64()*2 - 1) * NoiseAmplitude)
	}
	return types.AudioClip{ID: id, Samples: samples}
}
