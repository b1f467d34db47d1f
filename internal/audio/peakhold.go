package audio

import (
	"sync"
	"time"
)

// DefaultPeakHoldDuration is the default duration that peak values are held before decaying.
const DefaultPeakHoldDuration = 3000 * time.Millisecond

// PeakHolder tracks peak-hold state for level meters.
// It is safe for concurrent use.
type PeakHolder struct {
	mu           sync.Mutex
	held         []float64
	heldAt       []time.Time
	holdDuration time.Duration
}

// NewPeakHolder creates a peak holder for the given channel count
// with the default hold duration.
func NewPeakHolder(channels int) *PeakHolder {
	return &PeakHolder{
		held:         make([]float64, channels),
		heldAt:       make([]time.Time, channels),
		holdDuration: DefaultPeakHoldDuration,
	}
}

// Update updates the peak hold state with new per-channel peaks and
// returns the held peaks.
func (p *PeakHolder) Update(peaks []float64, now time.Time) []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, peak := range peaks {
		if i >= len(p.held) {
			break
		}
		if peak >= p.held[i] || now.Sub(p.heldAt[i]) > p.holdDuration {
			p.held[i] = peak
			p.heldAt[i] = now
		}
	}

	out := make([]float64, len(p.held))
	copy(out, p.held)
	return out
}

// SetHoldDuration updates the peak hold duration.
func (p *PeakHolder) SetHoldDuration(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.holdDuration = d
}

// Reset clears held peak values.
func (p *PeakHolder) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.held {
		p.held[i] = 0
		p.heldAt[i] = time.Time{}
	}
}
