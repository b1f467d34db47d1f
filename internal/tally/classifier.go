package tally

// State represents the current trigger decision.
type State string

const (
	// StateTrigger1 indicates the trigger 1 tone is present.
	StateTrigger1 State = "trigger1"
	// StateTrigger2 indicates the trigger 2 tone is present.
	StateTrigger2 State = "trigger2"
	// StateOff indicates no trigger tone is present.
	StateOff State = "off"
)

// Thresholds holds the calibrated amplitude boundaries for
// classification. Callers must guarantee Trigger1 > Trigger2 > Off;
// config validation enforces this before a classifier sees them.
type Thresholds struct {
	Trigger1 float64 // peak above this asserts trigger 1
	Trigger2 float64 // peak above this asserts trigger 2
	Off      float64 // peak below this releases both triggers
}

// Classify maps a window peak onto a trigger state. Peaks in the dead
// zone between Off and Trigger2 produce no new decision; the previous
// state persists until the signal commits either way.
func Classify(peak float64, prev State, t Thresholds) State {
	switch {
	case peak > t.Trigger1:
		return StateTrigger1
	case peak > t.Trigger2:
		return StateTrigger2
	case peak < t.Off:
		return StateOff
	default:
		return prev
	}
}
