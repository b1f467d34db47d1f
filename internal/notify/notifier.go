// Package notify delivers trigger-state transitions to the operator
// console and the structured log.
package notify

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Event describes one trigger-state transition.
type Event struct {
	// State is the decision that was applied: "trigger1", "trigger2"
	// or "off".
	State string

	// Name is the display name of the asserted trigger, empty for off.
	Name string

	// Peak is the window peak that produced the decision.
	Peak float64
}

// Notifier writes a human-readable line per transition and mirrors it
// to the structured log. It is safe for concurrent use.
type Notifier struct {
	mu  sync.Mutex
	out io.Writer
}

// New returns a Notifier writing transition lines to out.
func New(out io.Writer) *Notifier {
	return &Notifier{out: out}
}

// StateChanged reports one applied transition.
func (n *Notifier) StateChanged(e Event) {
	line := "all off"
	if e.Name != "" {
		line = e.Name + " on"
	}

	n.mu.Lock()
	fmt.Fprintln(n.out, line)
	n.mu.Unlock()

	slog.Info("trigger state changed", "state", e.State, "trigger", e.Name, "peak", e.Peak)
}
