// Package tally converts windowed audio peaks into trigger decisions
// and drives the tally outputs accordingly.
package tally

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-tally/internal/audio"
	"github.com/oszuidwest/zwfm-tally/internal/notify"
	"github.com/oszuidwest/zwfm-tally/internal/output"
	"github.com/oszuidwest/zwfm-tally/internal/util"
)

// Settings carries the evaluated configuration for one engine run.
type Settings struct {
	Thresholds   Thresholds
	Interval     time.Duration
	Trigger1Name string
	Trigger2Name string
}

// Levels is a point-in-time snapshot of the engine's metering state.
type Levels struct {
	Peak    float64   // current window peak
	Held    []float64 // held per-channel peaks
	State   State     // applied trigger state
	Dropped uint64    // blocks dropped at the capture hand-off
}

// Engine runs the evaluation loop: drain the queue, advance the
// window, classify the peak, and apply the decision to the outputs.
// The engine is the only goroutine touching the window and the driver
// while running.
type Engine struct {
	queue    *audio.Queue
	window   *audio.Window
	driver   *output.Driver
	notifier *notify.Notifier
	peaks    *audio.PeakHolder

	thresholds Thresholds
	interval   time.Duration
	names      map[State]string

	mu              sync.RWMutex
	state           State
	levels          Levels
	lastKnownLevels Levels // Cache for TryRLock fallback
	loggedDrops     uint64
	retryApply      bool // last write failed, re-drive the outputs
}

// New creates an engine wired to its collaborators. The caller opens
// the queue, window, and driver before the engine runs.
func New(set Settings, q *audio.Queue, w *audio.Window, drv *output.Driver, n *notify.Notifier) *Engine {
	return &Engine{
		queue:      q,
		window:     w,
		driver:     drv,
		notifier:   n,
		peaks:      audio.NewPeakHolder(w.Channels()),
		thresholds: set.Thresholds,
		interval:   set.Interval,
		names: map[State]string{
			StateTrigger1: set.Trigger1Name,
			StateTrigger2: set.Trigger2Name,
		},
		state: StateOff,
	}
}

// Run executes the evaluation loop until ctx is cancelled, then
// forces both outputs off before returning so the lines are released
// ahead of capture teardown.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("evaluation loop started",
		"interval", e.interval,
		"trigger1_threshold", e.thresholds.Trigger1,
		"trigger2_threshold", e.thresholds.Trigger2,
		"off_threshold", e.thresholds.Off)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return e.shutdown()
		case now := <-ticker.C:
			e.evaluate(now)
		}
	}
}

// evaluate runs one cycle: drain, push, peak, classify, apply.
func (e *Engine) evaluate(now time.Time) {
	for _, b := range e.queue.Drain() {
		e.window.Push(b)
	}

	peak := e.window.Peak()
	held := e.peaks.Update(e.window.ChannelPeaks(), now)

	prev := e.state
	next := Classify(peak, prev, e.thresholds)
	if next != prev || e.retryApply {
		if _, err := e.driver.Apply(target(next)); err != nil {
			slog.Error("output write failed, keeping previous state",
				"state", string(next), "error", err)
			e.retryApply = true
			next = prev
		} else {
			if next != prev {
				e.notifier.StateChanged(e.event(next, peak))
			}
			e.retryApply = false
		}
	}

	dropped := e.queue.Dropped()
	if dropped > e.loggedDrops {
		slog.Warn("capture blocks dropped",
			"dropped", dropped-e.loggedDrops, "total", dropped)
		e.loggedDrops = dropped
	}

	e.mu.Lock()
	e.state = next
	e.levels = Levels{Peak: peak, Held: held, State: next, Dropped: dropped}
	e.lastKnownLevels = e.levels
	e.mu.Unlock()
}

// shutdown releases both outputs. Runs after the loop exits and
// before the caller tears down capture.
func (e *Engine) shutdown() error {
	if _, err := e.driver.Apply(output.TargetNone); err != nil {
		return util.WrapError("release outputs", err)
	}

	e.mu.Lock()
	e.state = StateOff
	e.levels.State = StateOff
	e.lastKnownLevels = e.levels
	e.mu.Unlock()

	slog.Info("outputs released")
	return nil
}

// State returns the currently applied trigger state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Levels returns the current metering snapshot without contending
// with the evaluation cycle.
func (e *Engine) Levels() Levels {
	if !e.mu.TryRLock() {
		return e.lastKnownLevels
	}
	defer e.mu.RUnlock()
	return e.levels
}

// event builds the notification for an applied state.
func (e *Engine) event(s State, peak float64) notify.Event {
	return notify.Event{State: string(s), Name: e.names[s], Peak: peak}
}

// target maps a trigger state onto the driver's vocabulary.
func target(s State) output.Target {
	switch s {
	case StateTrigger1:
		return output.TargetOne
	case StateTrigger2:
		return output.TargetTwo
	default:
		return output.TargetNone
	}
}
