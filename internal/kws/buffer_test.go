package kws

import (
	"testing"

	"github.com/voicepage/kwsbench/internal/types"
)

func rowsEqual(t *testing.T, got, want []float32) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("window length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("window[%d] = %v, want %v (full: %v)", i, got[i], want[i], got)
		}
	}
}

func TestFeatureBufferStartsZeroed(t *testing.T) {
	b := NewFeatureBuffer(3, 2)
	rowsEqual(t, b.Window(), []float32{0, 0, 0, 0, 0, 0})
}

func TestFeatureBufferPushShiftsOldestOut(t *testing.T) {
	b := NewFeatureBuffer(3, 2)
	b.Push([]float32{1, 2})
	rowsEqual(t, b.Window(), []float32{0, 0, 0, 0, 1, 2})
	b.Push([]float32{3, 4})
	rowsEqual(t, b.Window(), []float32{0, 0, 1, 2, 3, 4})
	b.Push([]float32{5, 6})
	rowsEqual(t, b.Window(), []float32{1, 2, 3, 4, 5, 6})
	b.Push([]float32{7, 8})
	rowsEqual(t, b.Window(), []float32{3, 4, 5, 6, 7, 8})
}

func TestFeatureBufferPushMultipleRows(t *testing.T) {
	b := NewFeatureBuffer(3, 2)
	b.Push([]float32{1, 2, 3, 4})
	rowsEqual(t, b.Window(), []float32{0, 0, 1, 2, 3, 4})
}

func TestFeatureBufferPushOversizedKeepsTail(t *testing.T) {
	b := NewFeatureBuffer(2, 1)
	b.Push([]float32{1, 2, 3, 4, 5})
	rowsEqual(t, b.Window(), []float32{4, 5})
}

func TestFeatureBufferPushExactDepth(t *testing.T) {
	b := NewFeatureBuffer(2, 2)
	b.Push([]float32{9, 9})
	b.Push([]float32{1, 2, 3, 4})
	rowsEqual(t, b.Window(), []float32{1, 2, 3, 4})
}

func TestFeatureBufferReset(t *testing.T) {
	b := NewFeatureBuffer(2, 2)
	b.Push([]float32{1, 2, 3, 4})
	b.Reset()
	rowsEqual(t, b.Window(), []float32{0, 0, 0, 0})
}

func TestNewMelWindowDimensions(t *testing.T) {
	b := NewMelWindow()
	if b.Depth() != types.MelWindowFrames || b.Width() != types.MelFeatureWidth {
		t.Fatalf("window is %dx%d, want %dx%d", b.Depth(), b.Width(), types.MelWindowFrames, types.MelFeatureWidth)
	}
	if len(b.Window()) != types.MelWindowFrames*types.MelFeatureWidth {
		t.Fatalf("window length = %d", len(b.Window()))
	}
}
