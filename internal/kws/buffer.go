package kws

import "github.com/voicepage/kwsbench/internal/types"

// FeatureBuffer is a fixed-size rolling window of mel feature rows. New rows
// push in at the bottom and the oldest rows fall off the top, so the window
// always holds the most recent depth rows. A fresh buffer is all zeros,
// which reads as silence to the embedding model.
//
// Each evaluation owns its own buffer; it is not safe for concurrent use.
type FeatureBuffer struct {
	depth int
	width int
	data  []float32
}

// NewFeatureBuffer creates a zeroed buffer of depth rows by width columns.
func NewFeatureBuffer(depth, width int) *FeatureBuffer {
	return &FeatureBuffer{
		depth: depth,
		width: width,
		data:  make([]float32, depth*width),
	}
}

// NewMelWindow creates a buffer sized for the embedding model input.
func NewMelWindow() *FeatureBuffer {
	return NewFeatureBuffer(types.MelWindowFrames, types.MelFeatureWidth)
}

// Reset zeroes the window so a new clip starts from silence.
func (b *FeatureBuffer) Reset() {
	clear(b.data)
}

// Push appends rows (flattened, len = n*width) to the bottom of the window,
// shifting existing rows up. If more than depth rows arrive at once, only
// the last depth rows are kept.
func (b *FeatureBuffer) Push(rows []float32) {
	n := len(rows) / b.width
	if n == 0 {
		return
	}
	if n >= b.depth {
		copy(b.data, rows[(n-b.depth)*b.width:])
		return
	}
	shift := n * b.width
	copy(b.data, b.data[shift:])
	copy(b.data[len(b.data)-shift:], rows[:shift])
}

// Window returns the current depth*width window, oldest row first. The
// returned slice is the buffer's backing store; callers must consume it
// before the next Push.
func (b *FeatureBuffer) Window() []float32 {
	return b.data
}

// Depth returns the number of rows in the window.
func (b *FeatureBuffer) Depth() int { return b.depth }

// Width returns the number of columns per row.
func (b *FeatureBuffer) Width() int { return b.width }
