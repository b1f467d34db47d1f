package audio

import "math"

// Window is the rolling store of the most recent decimated samples,
// fixed at length rows by channels columns. It belongs to the
// evaluation loop and is not safe for concurrent use.
type Window struct {
	rows     []float32 // row-major, length*channels samples
	length   int
	channels int
}

// NewWindow creates a zero-filled window of length rows.
func NewWindow(length, channels int) *Window {
	return &Window{
		rows:     make([]float32, length*channels),
		length:   length,
		channels: channels,
	}
}

// Push shifts out the oldest rows to make room for the block's rows
// at the end. A block longer than the window leaves only the block's
// newest rows.
func (w *Window) Push(b Block) {
	in := b.Samples
	shift := b.Frames()
	if shift > w.length {
		in = in[(shift-w.length)*w.channels:]
		shift = w.length
	}

	keep := (w.length - shift) * w.channels
	copy(w.rows, w.rows[shift*w.channels:])
	copy(w.rows[keep:], in)
}

// Peak returns the maximum absolute sample across the entire window,
// all channels included.
func (w *Window) Peak() float64 {
	var peak float64
	for _, s := range w.rows {
		if a := math.Abs(float64(s)); a > peak {
			peak = a
		}
	}
	return peak
}

// ChannelPeaks returns the maximum absolute sample per channel.
func (w *Window) ChannelPeaks() []float64 {
	peaks := make([]float64, w.channels)
	for i, s := range w.rows {
		if a := math.Abs(float64(s)); a > peaks[i%w.channels] {
			peaks[i%w.channels] = a
		}
	}
	return peaks
}

// Length returns the number of rows the window holds.
func (w *Window) Length() int {
	return w.length
}

// Channels returns the number of columns per row.
func (w *Window) Channels() int {
	return w.channels
}
