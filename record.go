package main

import (
	"fmt"
	"log/slog"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/oszuidwest/zwfm-tally/internal/audio"
	"github.com/oszuidwest/zwfm-tally/internal/util"
	"github.com/spf13/afero"
)

// recordDrainInterval is how often collected blocks are pulled off
// the queue while recording.
const recordDrainInterval = 50 * time.Millisecond

// record captures a short clip through the same decimation path the
// engine sees and writes it as a 16-bit WAV for offline threshold
// calibration. The file carries the decimated sample rate.
func record(fs afero.Fs, captureCfg audio.CaptureConfig, path string, seconds int) error {
	if seconds < 1 {
		return fmt.Errorf("invalid capture length: %d seconds", seconds)
	}

	queue := audio.NewQueue(0)
	capture, err := audio.Open(captureCfg, queue)
	if err != nil {
		return err
	}
	defer func() {
		if err := capture.Close(); err != nil {
			slog.Error("failed to close capture", "error", err)
		}
	}()

	if err := capture.Start(); err != nil {
		return err
	}

	slog.Info("recording calibration clip", "path", path, "seconds", seconds)

	var samples []int
	deadline := time.After(time.Duration(seconds) * time.Second)
	ticker := time.NewTicker(recordDrainInterval)
	defer ticker.Stop()

collect:
	for {
		select {
		case <-deadline:
			break collect
		case <-ticker.C:
			samples = appendBlocks(samples, queue.Drain())
		}
	}

	if err := capture.Stop(); err != nil {
		slog.Error("failed to stop capture", "error", err)
	}
	samples = appendBlocks(samples, queue.Drain())
	if n := capture.Overflows(); n > 0 {
		slog.Warn("input overflows occurred while recording", "count", n)
	}

	downsample := captureCfg.Downsample
	if downsample < 1 {
		downsample = 1
	}
	rate := int(capture.SampleRate()) / downsample
	channels := len(captureCfg.Channels)
	if channels == 0 {
		channels = 1
	}

	if err := writeWAV(fs, path, samples, rate, channels); err != nil {
		return err
	}

	slog.Info("calibration clip written", "path", path, "frames", len(samples)/channels, "sample_rate", rate)
	return nil
}

// appendBlocks converts drained blocks to 16-bit integer samples.
func appendBlocks(samples []int, blocks []audio.Block) []int {
	for _, b := range blocks {
		for _, s := range b.Samples {
			samples = append(samples, pcm16(s))
		}
	}
	return samples
}

// pcm16 converts a float sample in [-1, 1] to a 16-bit value,
// clamping out-of-range input.
func pcm16(s float32) int {
	v := int(s * 32767)
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return v
}

// writeWAV encodes the collected samples as 16-bit PCM.
func writeWAV(fs afero.Fs, path string, samples []int, sampleRate, channels int) error {
	f, err := fs.Create(path)
	if err != nil {
		return util.WrapError("create wav file", err)
	}

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: 16,
	}

	if err := enc.Write(buf); err != nil {
		f.Close()
		return util.WrapError("write wav data", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return util.WrapError("finalize wav", err)
	}
	return util.WrapError("close wav file", f.Close())
}
