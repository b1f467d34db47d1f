package tally

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oszuidwest/zwfm-tally/internal/audio"
	"github.com/oszuidwest/zwfm-tally/internal/notify"
	"github.com/oszuidwest/zwfm-tally/internal/output"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
)

type fakePin struct {
	name   string
	level  gpio.Level
	writes int
	fail   bool
}

func (p *fakePin) Out(l gpio.Level) error {
	if p.fail {
		return errors.New("write refused")
	}
	p.level = l
	p.writes++
	return nil
}

func (p *fakePin) Read() gpio.Level { return p.level }
func (p *fakePin) Halt() error      { return nil }
func (p *fakePin) Name() string     { return p.name }

type engineRig struct {
	engine *Engine
	queue  *audio.Queue
	one    *fakePin
	two    *fakePin
	out    *bytes.Buffer
}

func newEngineRig(t *testing.T) *engineRig {
	t.Helper()

	one := &fakePin{name: "GPIO22"}
	two := &fakePin{name: "GPIO25"}
	drv, err := output.New(one, two)
	require.NoError(t, err)

	out := &bytes.Buffer{}
	set := Settings{
		Thresholds:   testThresholds,
		Interval:     10 * time.Millisecond,
		Trigger1Name: "Camera 4",
		Trigger2Name: "Camera 7",
	}

	q := audio.NewQueue(8)
	w := audio.NewWindow(4, 1)
	return &engineRig{
		engine: New(set, q, w, drv, notify.New(out)),
		queue:  q,
		one:    one,
		two:    two,
		out:    out,
	}
}

// feed enqueues one block that fills the whole window, so the next
// evaluation sees exactly this level as the peak.
func (r *engineRig) feed(t *testing.T, level float32) {
	t.Helper()
	samples := make([]float32, r.engine.window.Length())
	for i := range samples {
		samples[i] = level
	}
	require.True(t, r.queue.Enqueue(audio.Block{Samples: samples, Channels: 1}))
}

func TestEngineAssertsTrigger1OnLoudPeak(t *testing.T) {
	r := newEngineRig(t)

	r.feed(t, 0.85)
	r.engine.evaluate(time.Now())

	assert.Equal(t, StateTrigger1, r.engine.State())
	assert.Equal(t, gpio.High, r.one.level)
	assert.Equal(t, gpio.Low, r.two.level)
	assert.Equal(t, "Camera 4 on\n", r.out.String())

	levels := r.engine.Levels()
	assert.InDelta(t, 0.85, levels.Peak, 1e-6)
	require.Len(t, levels.Held, 1)
	assert.InDelta(t, 0.85, levels.Held[0], 1e-6)
}

func TestEngineReleasesOnQuietPeak(t *testing.T) {
	r := newEngineRig(t)

	r.feed(t, 0.85)
	r.engine.evaluate(time.Now())
	require.Equal(t, StateTrigger1, r.engine.State())

	r.feed(t, 0.05)
	r.engine.evaluate(time.Now())

	assert.Equal(t, StateOff, r.engine.State())
	assert.Equal(t, gpio.Low, r.one.level)
	assert.Equal(t, gpio.Low, r.two.level)
	assert.Equal(t, "Camera 4 on\nall off\n", r.out.String())
}

func TestEngineDeadZoneKeepsPreviousState(t *testing.T) {
	r := newEngineRig(t)

	r.feed(t, 0.50)
	r.engine.evaluate(time.Now())
	require.Equal(t, StateTrigger2, r.engine.State())
	oneWrites, twoWrites := r.one.writes, r.two.writes

	r.feed(t, 0.15)
	r.engine.evaluate(time.Now())

	assert.Equal(t, StateTrigger2, r.engine.State())
	assert.Equal(t, gpio.High, r.two.level)
	assert.Equal(t, oneWrites, r.one.writes, "dead zone must not touch the pins")
	assert.Equal(t, twoWrites, r.two.writes, "dead zone must not touch the pins")
	assert.Equal(t, "Camera 7 on\n", r.out.String())
}

func TestEngineKeepsStateWhenWriteFails(t *testing.T) {
	r := newEngineRig(t)
	r.two.fail = true

	r.feed(t, 0.50)
	r.engine.evaluate(time.Now())

	assert.Equal(t, StateOff, r.engine.State(), "failed write keeps previous state")
	assert.Equal(t, gpio.Low, r.two.level)
	assert.Empty(t, r.out.String(), "no transition is reported on failure")

	// The next cycle retries and succeeds once the line recovers.
	r.two.fail = false
	r.engine.evaluate(time.Now())

	assert.Equal(t, StateTrigger2, r.engine.State())
	assert.Equal(t, gpio.High, r.two.level)
	assert.Equal(t, "Camera 7 on\n", r.out.String())
}

func TestEngineRedrivesOutputsAfterWriteFailure(t *testing.T) {
	r := newEngineRig(t)

	r.feed(t, 0.50)
	r.engine.evaluate(time.Now())
	require.Equal(t, StateTrigger2, r.engine.State())
	require.Equal(t, gpio.High, r.two.level)

	// The switch to trigger1 fails halfway: line two is already
	// released when the assert on line one is refused.
	r.one.fail = true
	r.feed(t, 0.85)
	r.engine.evaluate(time.Now())
	require.Equal(t, StateTrigger2, r.engine.State())
	require.Equal(t, gpio.Low, r.two.level)

	// Back in the trigger2 band the decision is unchanged, but the
	// hardware still has to be brought back in line with it.
	r.one.fail = false
	r.feed(t, 0.50)
	r.engine.evaluate(time.Now())

	assert.Equal(t, StateTrigger2, r.engine.State())
	assert.Equal(t, gpio.High, r.two.level)
	assert.Equal(t, gpio.Low, r.one.level)
	assert.Equal(t, "Camera 7 on\n", r.out.String(), "resync is not a new transition")
}

func TestEngineReportsDroppedBlocks(t *testing.T) {
	r := newEngineRig(t)

	for i := 0; i < 9; i++ {
		r.queue.Enqueue(audio.Block{Samples: []float32{0.3}, Channels: 1})
	}
	r.engine.evaluate(time.Now())

	assert.Equal(t, uint64(1), r.engine.Levels().Dropped)
}

func TestEngineRunReleasesOutputsOnCancel(t *testing.T) {
	r := newEngineRig(t)

	r.feed(t, 0.85)
	r.engine.evaluate(time.Now())
	require.Equal(t, gpio.High, r.one.level)
	reported := r.out.String()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, r.engine.Run(ctx))

	assert.Equal(t, StateOff, r.engine.State())
	assert.Equal(t, gpio.Low, r.one.level)
	assert.Equal(t, gpio.Low, r.two.level)
	assert.Equal(t, reported, r.out.String(), "shutdown release is not a transition event")
}
