package audio

// Block is one decimated chunk of capture output, row-major frames by
// channels. A block is immutable once enqueued; ownership passes to
// the consumer.
type Block struct {
	Samples  []float32
	Channels int
}

// Frames returns the number of sample rows in the block.
func (b Block) Frames() int {
	if b.Channels == 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Decimate thins interleaved capture frames by keeping every stride-th
// frame and, within each kept frame, only the mapped channels in the
// given order. Channel indices are zero-based positions in the
// interleaved input.
func Decimate(in []float32, inChannels int, mapping []int, stride int) []float32 {
	if inChannels < 1 || stride < 1 || len(mapping) == 0 {
		return nil
	}

	frames := len(in) / inChannels
	kept := (frames + stride - 1) / stride
	out := make([]float32, 0, kept*len(mapping))

	for f := 0; f < frames; f += stride {
		base := f * inChannels
		for _, ch := range mapping {
			out = append(out, in[base+ch])
		}
	}
	return out
}
