package audio

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gordonklaus/portaudio"
	"github.com/oszuidwest/zwfm-tally/internal/util"
)

// Sentinel errors for device resolution.
var (
	ErrNoInputDevice  = errors.New("no audio input device found")
	ErrDeviceNotFound = errors.New("audio input device not found")
)

// Device describes one input-capable audio device.
type Device struct {
	Index      int
	Name       string
	HostAPI    string
	MaxInputs  int
	SampleRate float64
	IsDefault  bool
}

// Devices returns the input-capable audio devices in portaudio order.
// The portaudio host must be initialized first.
func Devices() ([]Device, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, util.WrapError("list audio devices", err)
	}

	var def *portaudio.DeviceInfo
	if d, defErr := portaudio.DefaultInputDevice(); defErr == nil {
		def = d
	}

	out := describeDevices(infos, def)
	if len(out) == 0 {
		return nil, ErrNoInputDevice
	}
	return out, nil
}

// describeDevices flattens the portaudio device list. Slice position
// is the device index, and portaudio hands out the same cached
// pointers everywhere, so the default device is matched by identity.
func describeDevices(infos []*portaudio.DeviceInfo, def *portaudio.DeviceInfo) []Device {
	var out []Device
	for i, info := range infos {
		if info.MaxInputChannels < 1 {
			continue
		}
		out = append(out, Device{
			Index:      i,
			Name:       info.Name,
			HostAPI:    info.HostApi.Name,
			MaxInputs:  info.MaxInputChannels,
			SampleRate: info.DefaultSampleRate,
			IsDefault:  info == def,
		})
	}
	return out
}

// FindDevice resolves an input device from a numeric device index or
// a case-insensitive name substring. An empty query selects the
// default input device.
func FindDevice(query string) (*portaudio.DeviceInfo, error) {
	if query == "" {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, util.WrapError("resolve default input device", err)
		}
		return dev, nil
	}

	infos, err := portaudio.Devices()
	if err != nil {
		return nil, util.WrapError("list audio devices", err)
	}
	return matchDevice(infos, query)
}

// matchDevice resolves a query against the portaudio device list. A
// numeric query is a slice position (the device index); anything else
// matches the first input-capable device whose name contains it.
func matchDevice(infos []*portaudio.DeviceInfo, query string) (*portaudio.DeviceInfo, error) {
	if index, convErr := strconv.Atoi(query); convErr == nil {
		if index < 0 || index >= len(infos) {
			return nil, fmt.Errorf("%w: index %d", ErrDeviceNotFound, index)
		}
		return infos[index], nil
	}

	needle := strings.ToLower(query)
	for _, info := range infos {
		if info.MaxInputChannels < 1 {
			continue
		}
		if strings.Contains(strings.ToLower(info.Name), needle) {
			return info, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, query)
}
