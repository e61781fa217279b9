// Package audio decodes WAV clips into the mono 16 kHz float32 form the
// detector consumes, and synthesizes probe clips for quick evaluations.
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	resampling "github.com/tphakala/go-audio-resampling"

	"github.com/voicepage/kwsbench/internal/types"
	"github.com/voicepage/kwsbench/internal/util"
)

// WAV format codes handled by the loader.
const (
	formatPCM       = 1
	formatIEEEFloat = 3
)

// LoadWAV decodes a RIFF/WAVE file into a mono clip at types.SampleRate.
// PCM16 and 32-bit float payloads are supported; multi-channel audio is
// averaged to mono and other sample rates are resampled.
func LoadWAV(path string) (types.AudioClip, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return types.AudioClip{}, util.WrapError("read audio file", err)
	}

	samples, sampleRate, err := decodeWAV(raw)
	if err != nil {
		return types.AudioClip{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if sampleRate != types.SampleRate {
		if samples, err = Resample(samples, sampleRate, types.SampleRate); err != nil {
			return types.AudioClip{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
	}

	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s)
	}
	return types.AudioClip{ID: filepath.Base(path), Path: path, Samples: out}, nil
}

// decodeWAV parses the RIFF container and returns mono float64 samples with
// the source sample rate.
func decodeWAV(raw []byte) ([]float64, int, error) {
	if len(raw) < 12 || string(raw[0:4]) != "RIFF" || string(raw[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("not a RIFF/WAVE file")
	}

	var (
		format        uint16
		channels      int
		sampleRate    int
		bitsPerSample int
		data          []byte
		haveFmt       bool
	)

	// Chunks are 2-byte aligned; unknown chunks are skipped.
	pos := 12
	for pos+8 <= len(raw) {
		chunkID := string(raw[pos : pos+4])
		chunkLen := int(binary.LittleEndian.Uint32(raw[pos+4 : pos+8]))
		body := raw[pos+8:]
		if chunkLen > len(body) {
			chunkLen = len(body)
		}
		body = body[:chunkLen]

		switch chunkID {
		case "fmt ":
			if chunkLen < 16 {
				return nil, 0, fmt.Errorf("fmt chunk truncated (%d bytes)", chunkLen)
			}
			format = binary.LittleEndian.Uint16(body[0:2])
			channels = int(binary.LittleEndian.Uint16(body[2:4]))
			sampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			bitsPerSample = int(binary.LittleEndian.Uint16(body[14:16]))
			haveFmt = true
		case "data":
			data = body
		}

		pos += 8 + chunkLen
		if chunkLen%2 == 1 {
			pos++
		}
	}

	if !haveFmt {
		return nil, 0, fmt.Errorf("missing fmt chunk")
	}
	if data == nil {
		return nil, 0, fmt.Errorf("missing data chunk")
	}
	if channels < 1 || sampleRate < 1 {
		return nil, 0, fmt.Errorf("invalid format: %d channels at %d Hz", channels, sampleRate)
	}

	var samples []float64
	switch {
	case format == formatPCM && bitsPerSample == 16:
		samples = decodePCM16(data, channels)
	case format == formatIEEEFloat && bitsPerSample == 32:
		samples = decodeFloat32(data, channels)
	default:
		return nil, 0, fmt.Errorf("unsupported encoding: format %d, %d bits", format, bitsPerSample)
	}
	return samples, sampleRate, nil
}

func decodePCM16(data []byte, channels int) []float64 {
	frameBytes := 2 * channels
	frames := len(data) / frameBytes
	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			off := i*frameBytes + c*2
			sum += float64(int16(binary.LittleEndian.Uint16(data[off:off+2]))) / 32768.0
		}
		samples[i] = sum / float64(channels)
	}
	return samples
}

func decodeFloat32(data []byte, channels int) []float64 {
	frameBytes := 4 * channels
	frames := len(data) / frameBytes
	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			off := i*frameBytes + c*4
			sum += float64(math.Float32frombits(binary.LittleEndian.Uint32(data[off : off+4])))
		}
		samples[i] = sum / float64(channels)
	}
	return samples
}

// Resample converts mono samples between rates.
func Resample(samples []float64, fromRate, toRate int) ([]float64, error) {
	if fromRate == toRate {
		return samples, nil
	}
	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(fromRate),
		OutputRate: float64(toRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, util.WrapError("create resampler", err)
	}
	out, err := rs.Process(samples)
	if err != nil {
		return nil, util.WrapError("resample audio", err)
	}
	return out, nil
}
