// Package audio provides portaudio capture, the block hand-off queue,
// and rolling-window peak metering.
package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
	"github.com/oszuidwest/zwfm-tally/internal/util"
)

// ErrStreamInit is returned when the capture stream cannot be opened.
var ErrStreamInit = errors.New("capture stream initialization failed")

// CaptureConfig describes how the input stream is opened and how raw
// frames are decimated into blocks.
type CaptureConfig struct {
	// Device is a numeric device index or a name substring.
	// Empty selects the default input device.
	Device string

	// SampleRate in Hz. Zero uses the device default.
	SampleRate float64

	// BlockSize is the frames delivered per callback. Zero lets
	// portaudio choose.
	BlockSize int

	// Channels are the zero-based input channels to keep, in order.
	Channels []int

	// Downsample keeps every Nth frame.
	Downsample int
}

// Capture owns the portaudio input stream. The stream callback
// decimates each buffer into a Block and hands it to the queue
// without ever blocking.
type Capture struct {
	stream     *portaudio.Stream
	queue      *Queue
	device     *portaudio.DeviceInfo
	sampleRate float64
	mapping    []int
	inChannels int
	downsample int
	overflows  atomic.Uint64
}

// Open resolves the device and opens the input stream. Callbacks do
// not start until Start is called. The portaudio host must be
// initialized first.
func Open(cfg CaptureConfig, q *Queue) (*Capture, error) {
	dev, err := FindDevice(cfg.Device)
	if err != nil {
		return nil, err
	}

	mapping := append([]int(nil), cfg.Channels...)
	if len(mapping) == 0 {
		mapping = []int{0}
	}

	inChannels := 0
	for _, ch := range mapping {
		if ch+1 > inChannels {
			inChannels = ch + 1
		}
	}
	if inChannels > dev.MaxInputChannels {
		return nil, fmt.Errorf("%w: device %q has %d input channels, need %d",
			ErrStreamInit, dev.Name, dev.MaxInputChannels, inChannels)
	}

	sampleRate := cfg.SampleRate
	if sampleRate == 0 {
		sampleRate = dev.DefaultSampleRate
	}

	downsample := cfg.Downsample
	if downsample < 1 {
		downsample = 1
	}

	c := &Capture{
		queue:      q,
		device:     dev,
		sampleRate: sampleRate,
		mapping:    mapping,
		inChannels: inChannels,
		downsample: downsample,
	}

	params := portaudio.HighLatencyParameters(dev, nil)
	params.Input.Channels = inChannels
	params.SampleRate = sampleRate
	if cfg.BlockSize > 0 {
		params.FramesPerBuffer = cfg.BlockSize
	}

	stream, err := portaudio.OpenStream(params, c.process)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStreamInit, err)
	}
	c.stream = stream

	slog.Info("capture stream opened",
		"device", dev.Name,
		"sample_rate", sampleRate,
		"channels", inChannels,
		"downsample", downsample)
	return c, nil
}

// process runs on the portaudio capture thread. It must complete well
// within one block duration, so it only decimates and enqueues. An
// overflowed buffer holds corrupt samples and is counted, not queued.
func (c *Capture) process(in []float32, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
	if flags&portaudio.InputOverflow != 0 {
		c.overflows.Add(1)
		return
	}

	samples := Decimate(in, c.inChannels, c.mapping, c.downsample)
	if len(samples) == 0 {
		return
	}
	c.queue.Enqueue(Block{Samples: samples, Channels: len(c.mapping)})
}

// Start begins delivering capture callbacks.
func (c *Capture) Start() error {
	return util.WrapError("start capture stream", c.stream.Start())
}

// Stop stops capture callbacks, draining buffered frames first.
func (c *Capture) Stop() error {
	return util.WrapError("stop capture stream", c.stream.Stop())
}

// Close releases the stream.
func (c *Capture) Close() error {
	return util.WrapError("close capture stream", c.stream.Close())
}

// Device returns the resolved input device.
func (c *Capture) Device() *portaudio.DeviceInfo {
	return c.device
}

// SampleRate returns the effective stream sample rate in Hz.
func (c *Capture) SampleRate() float64 {
	return c.sampleRate
}

// Overflows returns the number of callbacks that reported a hardware
// input overflow.
func (c *Capture) Overflows() uint64 {
	return c.overflows.Load()
}
