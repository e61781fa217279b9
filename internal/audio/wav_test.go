package audio

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/voicepage/kwsbench/internal/types"
)

// writeWAV builds a minimal RIFF/WAVE file with interleaved PCM16 samples.
func writeWAV(t *testing.T, path string, sampleRate, channels int, frames [][]int16) {
	t.Helper()
	var data bytes.Buffer
	for _, frame := range frames {
		for _, s := range frame {
			binary.Write(&data, binary.LittleEndian, s)
		}
	}

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+data.Len()))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*channels*2))
	binary.Write(&buf, binary.LittleEndian, uint16(channels*2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(data.Len()))
	buf.Write(data.Bytes())

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write wav: %v", err)
	}
}

func TestLoadWAVMono16k(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	writeWAV(t, path, types.SampleRate, 1, [][]int16{{0}, {16384}, {-16384}, {32767}})

	clip, err := LoadWAV(path)
	if err != nil {
		t.Fatalf("LoadWAV: %v", err)
	}
	if clip.ID != "tone.wav" {
		t.Fatalf("clip ID = %q", clip.ID)
	}
	if len(clip.Samples) != 4 {
		t.Fatalf("got %d samples, want 4", len(clip.Samples))
	}
	want := []float32{0, 0.5, -0.5, 32767.0 / 32768.0}
	for i, w := range want {
		if math.Abs(float64(clip.Samples[i]-w)) > 1e-4 {
			t.Fatalf("sample %d = %v, want %v", i, clip.Samples[i], w)
		}
	}
}

func TestLoadWAVStereoAveraged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stereo.wav")
	writeWAV(t, path, types.SampleRate, 2, [][]int16{{16384, -16384}, {8192, 8192}})

	clip, err := LoadWAV(path)
	if err != nil {
		t.Fatalf("LoadWAV: %v", err)
	}
	if len(clip.Samples) != 2 {
		t.Fatalf("got %d samples, want 2", len(clip.Samples))
	}
	if math.Abs(float64(clip.Samples[0])) > 1e-4 {
		t.Fatalf("downmixed sample 0 = %v, want 0", clip.Samples[0])
	}
	if math.Abs(float64(clip.Samples[1]-0.25)) > 1e-4 {
		t.Fatalf("downmixed sample 1 = %v, want 0.25", clip.Samples[1])
	}
}

func TestLoadWAVResamples(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hi.wav")
	frames := make([][]int16, 48000)
	for i := range frames {
		frames[i] = []int16{int16(8000 * math.Sin(2*math.Pi*440*float64(i)/48000))}
	}
	writeWAV(t, path, 48000, 1, frames)

	clip, err := LoadWAV(path)
	if err != nil {
		t.Fatalf("LoadWAV: %v", err)
	}
	// One second of input should come out near one second at 16 kHz; the
	// resampler may hold back a small tail.
	if len(clip.Samples) < types.SampleRate*9/10 || len(clip.Samples) > types.SampleRate*11/10 {
		t.Fatalf("resampled length = %d, want about %d", len(clip.Samples), types.SampleRate)
	}
}

func TestLoadWAVRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.wav")
	if err := os.WriteFile(path, []byte("definitely not audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadWAV(path); err == nil {
		t.Fatal("expected error for non-WAV payload")
	}
}

func TestLoadWAVMissingFile(t *testing.T) {
	if _, err := LoadWAV(filepath.Join(t.TempDir(), "nope.wav")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestSilence(t *testing.T) {
	clip := Silence("silence", 2)
	if len(clip.Samples) != 2*types.SampleRate {
		t.Fatalf("got %d samples", len(clip.Samples))
	}
	for i, s := range clip.Samples {
		if s != 0 {
			t.Fatalf("sample %d = %v, want 0", i, s)
		}
	}
	if clip.DurationSeconds() != 2 {
		t.Fatalf("duration = %v", clip.DurationSeconds())
	}
}

func TestNoiseSeededAndBounded(t *testing.T) {
	a := Noise("noise", 1, 42)
	b := Noise("noise", 1, 42)
	if len(a.Samples) != types.SampleRate {
		t.Fatalf("got %d samples", len(a.Samples))
	}
	var nonZero bool
	for i := range a.Samples {
		if a.Samples[i] != b.Samples[i] {
			t.Fatalf("same seed produced different samples at %d", i)
		}
		if s := a.Samples[i]; s < -NoiseAmplitude || s > NoiseAmplitude {
			t.Fatalf("sample %d = %v outside amplitude bound", i, s)
		}
		if a.Samples[i] != 0 {
			nonZero = true
		}
	}
	if !nonZero {
		t.Fatal("noise clip is all zeros")
	}
	if c := Noise("noise", 1, 43); c.Samples[0] == a.Samples[0] && c.Samples[1] == a.Samples[1] && c.Samples[2] == a.Samples[2] {
		t.Fatal("different seeds produced identical leading samples")
	}
}
