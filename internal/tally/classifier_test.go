package tally

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var testThresholds = Thresholds{Trigger1: 0.80, Trigger2: 0.20, Off: 0.10}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		peak float64
		prev State
		want State
	}{
		{"loud tone asserts trigger1", 0.85, StateOff, StateTrigger1},
		{"trigger1 wins regardless of previous", 0.85, StateTrigger2, StateTrigger1},
		{"mid tone asserts trigger2", 0.50, StateOff, StateTrigger2},
		{"quiet releases everything", 0.05, StateTrigger1, StateOff},
		{"quiet releases trigger2 too", 0.05, StateTrigger2, StateOff},
		{"dead zone keeps trigger2", 0.15, StateTrigger2, StateTrigger2},
		{"dead zone keeps trigger1", 0.15, StateTrigger1, StateTrigger1},
		{"dead zone keeps off", 0.15, StateOff, StateOff},
		{"exactly trigger1 falls to trigger2 band", 0.80, StateOff, StateTrigger2},
		{"exactly trigger2 is dead zone", 0.20, StateOff, StateOff},
		{"exactly off is dead zone", 0.10, StateTrigger1, StateTrigger1},
		{"silence from clean start", 0.0, StateOff, StateOff},
		{"full scale", 1.0, StateOff, StateTrigger1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.peak, tt.prev, testThresholds)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	for _, prev := range []State{StateOff, StateTrigger1, StateTrigger2} {
		for peak := 0.0; peak <= 1.0; peak += 0.01 {
			first := Classify(peak, prev, testThresholds)
			second := Classify(peak, prev, testThresholds)
			assert.Equal(t, first, second, "peak=%.2f prev=%s", peak, prev)
		}
	}
}

func TestClassifyIsMonotonic(t *testing.T) {
	// Rising peaks never step down to a less aggressive state. With a
	// previous state of off, the dead zone resolves to off as well, so
	// the sweep covers the full range.
	rank := map[State]int{StateOff: 0, StateTrigger2: 1, StateTrigger1: 2}

	last := 0
	for peak := 0.0; peak <= 1.0; peak += 0.005 {
		r := rank[Classify(peak, StateOff, testThresholds)]
		assert.GreaterOrEqual(t, r, last, "peak=%.3f", peak)
		last = r
	}
}
