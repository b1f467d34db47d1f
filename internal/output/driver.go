// Package output drives the tally output lines over host GPIO.
package output

import (
	"errors"
	"fmt"
	"sync"

	"github.com/oszuidwest/zwfm-tally/internal/util"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// ErrPinNotFound is returned when a BCM pin is not present in the
// host GPIO registry.
var ErrPinNotFound = errors.New("gpio pin not found")

// Pin is the subset of periph's gpio.PinIO the driver needs. Real
// pins come from gpioreg; tests substitute fakes.
type Pin interface {
	Out(l gpio.Level) error
	Read() gpio.Level
	Halt() error
	Name() string
}

// Target selects which tally line is asserted.
type Target string

const (
	// TargetOne asserts the first tally line.
	TargetOne Target = "one"
	// TargetTwo asserts the second tally line.
	TargetTwo Target = "two"
	// TargetNone releases both lines.
	TargetNone Target = "none"

	// targetUnknown marks the line levels as unverified after a failed
	// write, so the next Apply drives the hardware again.
	targetUnknown Target = "unknown"
)

// State holds the line levels read back after the last successful
// write. Both lines are never high at once.
type State struct {
	One gpio.Level
	Two gpio.Level
}

// Driver owns the two tally lines and serializes writes so the lines
// stay mutually exclusive. It is safe for concurrent use.
type Driver struct {
	mu      sync.Mutex
	one     Pin
	two     Pin
	current Target
	state   State
}

// New wires a driver onto two already-claimed pins and drives both
// low.
func New(one, two Pin) (*Driver, error) {
	d := &Driver{one: one, two: two, current: TargetNone}
	for _, p := range []Pin{one, two} {
		if err := p.Out(gpio.Low); err != nil {
			return nil, util.WrapError(fmt.Sprintf("release %s", p.Name()), err)
		}
	}
	d.state = State{One: one.Read(), Two: two.Read()}
	return d, nil
}

// Open initializes the periph host, resolves both BCM pins by name,
// and returns a driver with both lines released.
func Open(pinOne, pinTwo int) (*Driver, error) {
	if _, err := host.Init(); err != nil {
		return nil, util.WrapError("initialize gpio host", err)
	}

	one := gpioreg.ByName(fmt.Sprintf("GPIO%d", pinOne))
	if one == nil {
		return nil, fmt.Errorf("%w: GPIO%d", ErrPinNotFound, pinOne)
	}
	two := gpioreg.ByName(fmt.Sprintf("GPIO%d", pinTwo))
	if two == nil {
		return nil, fmt.Errorf("%w: GPIO%d", ErrPinNotFound, pinTwo)
	}

	return New(one, two)
}

// Apply asserts the given target, releasing the other line first so
// both lines are never high together. Reapplying the current target
// performs no writes. On a write error the previously recorded state
// is kept and returned, and the target is forgotten so the next Apply
// drives both lines again even if the target has not changed.
func (d *Driver) Apply(t Target) (State, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if t == d.current {
		return d.state, nil
	}

	active, inactive := d.split(t)
	for _, p := range inactive {
		if err := p.Out(gpio.Low); err != nil {
			d.current = targetUnknown
			return d.state, util.WrapError(fmt.Sprintf("release %s", p.Name()), err)
		}
	}
	if active != nil {
		if err := active.Out(gpio.High); err != nil {
			d.current = targetUnknown
			return d.state, util.WrapError(fmt.Sprintf("assert %s", active.Name()), err)
		}
	}

	d.current = t
	d.state = State{One: d.one.Read(), Two: d.two.Read()}
	return d.state, nil
}

// split returns the pin to assert (nil for TargetNone) and the pins
// to release.
func (d *Driver) split(t Target) (active Pin, inactive []Pin) {
	switch t {
	case TargetOne:
		return d.one, []Pin{d.two}
	case TargetTwo:
		return d.two, []Pin{d.one}
	default:
		return nil, []Pin{d.one, d.two}
	}
}

// Current returns the target applied by the last successful write.
func (d *Driver) Current() Target {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// State returns the line levels recorded after the last successful
// write.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Close drives both lines low and halts the pins.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for _, p := range []Pin{d.one, d.two} {
		if err := p.Out(gpio.Low); err != nil {
			errs = append(errs, util.WrapError(fmt.Sprintf("release %s", p.Name()), err))
		}
		if err := p.Halt(); err != nil {
			errs = append(errs, util.WrapError(fmt.Sprintf("halt %s", p.Name()), err))
		}
	}

	d.current = TargetNone
	d.state = State{}
	return errors.Join(errs...)
}
