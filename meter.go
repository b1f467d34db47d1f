package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/oszuidwest/zwfm-tally/internal/tally"
)

// meterWidth is the bar width in characters.
const meterWidth = 50

// meter renders a single-line terminal level meter from engine
// snapshots, refreshed at the evaluation interval.
type meter struct {
	engine     *tally.Engine
	thresholds tally.Thresholds
	interval   time.Duration
	out        io.Writer
}

func newMeter(e *tally.Engine, t tally.Thresholds, interval time.Duration, out io.Writer) *meter {
	return &meter{engine: e, thresholds: t, interval: interval, out: out}
}

// run redraws the meter until ctx is cancelled.
func (m *meter) run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(m.out)
			return
		case <-ticker.C:
			fmt.Fprint(m.out, renderMeter(m.engine.Levels(), m.thresholds, meterWidth))
		}
	}
}

// renderMeter draws one meter line: a bar filled to the current peak
// with the three thresholds marked on top of it.
func renderMeter(l tally.Levels, t tally.Thresholds, width int) string {
	bar := make([]byte, width)

	fill := int(l.Peak * float64(width))
	if fill > width {
		fill = width
	}
	for i := range bar {
		if i < fill {
			bar[i] = '#'
		} else {
			bar[i] = '-'
		}
	}

	for _, mark := range []float64{t.Off, t.Trigger2, t.Trigger1} {
		pos := int(mark * float64(width))
		if pos >= 0 && pos < width {
			bar[pos] = '|'
		}
	}

	return fmt.Sprintf("\r[%s] %5.3f %-8s dropped=%d", bar, l.Peak, string(l.State), l.Dropped)
}
