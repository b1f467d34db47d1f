// Package main provides a broadcast tally driver that watches tone
// levels on an audio input and switches two GPIO outputs accordingly.
//
// Usage:
//
//	tally [-config path/to/config.json] [-device id] [-meter]
//	tally -list-devices
//	tally -record clip.wav [-seconds n]
//
// If -config is not specified, the tally looks for config.json in the
// same directory as the binary.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/joho/godotenv"
	"github.com/oszuidwest/zwfm-tally/internal/audio"
	"github.com/oszuidwest/zwfm-tally/internal/config"
	"github.com/oszuidwest/zwfm-tally/internal/notify"
	"github.com/oszuidwest/zwfm-tally/internal/output"
	"github.com/oszuidwest/zwfm-tally/internal/tally"
	"github.com/oszuidwest/zwfm-tally/internal/util"
	"github.com/spf13/afero"
)

// options holds the parsed command line.
type options struct {
	configPath    string
	device        string
	listDevices   bool
	meter         bool
	recordPath    string
	recordSeconds int
}

func main() {
	// .env is optional; variables already set in the environment win.
	_ = godotenv.Load()

	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Path to config file (default: config.json next to binary)")
	flag.StringVar(&opts.device, "device", "", "Audio input device index or name substring (overrides config)")
	flag.BoolVar(&opts.listDevices, "list-devices", false, "List audio input devices and exit")
	flag.BoolVar(&opts.meter, "meter", false, "Render a terminal level meter while running")
	flag.StringVar(&opts.recordPath, "record", "", "Write a calibration WAV to this path instead of driving outputs")
	flag.IntVar(&opts.recordSeconds, "seconds", 10, "Calibration capture length in seconds")
	showVersion := flag.Bool("version", false, "Print version information and exit")
	flag.Parse()

	if *showVersion {
		slog.Info("version info", "version", Version, "commit", Commit, "build_time", BuildTime)
		return
	}

	if err := run(opts); err != nil {
		slog.Error("tally stopped", "error", err)
		os.Exit(1)
	}
}

// run loads configuration, brings up portaudio, and dispatches to the
// selected mode.
func run(opts options) error {
	if opts.configPath == "" {
		execPath, err := os.Executable()
		if err != nil {
			return util.WrapError("get executable path", err)
		}
		opts.configPath = filepath.Join(filepath.Dir(execPath), "config.json")
	}

	slog.Info("using config file", "path", opts.configPath)

	fs := afero.NewOsFs()
	cfg := config.New(fs, opts.configPath)
	if err := cfg.Load(); err != nil {
		return util.WrapError("load config", err)
	}

	if err := portaudio.Initialize(); err != nil {
		return util.WrapError("initialize portaudio", err)
	}
	defer func() {
		if err := portaudio.Terminate(); err != nil {
			slog.Error("failed to terminate portaudio", "error", err)
		}
	}()

	if opts.listDevices {
		return printDevices(os.Stdout)
	}

	snap := cfg.Snapshot()
	captureCfg := audio.CaptureConfig{
		Device:     snap.Audio.Input,
		SampleRate: snap.Audio.SampleRate,
		BlockSize:  snap.Audio.BlockSize,
		Channels:   cfg.Mapping(),
		Downsample: snap.Audio.Downsample,
	}
	if opts.device != "" {
		captureCfg.Device = opts.device
	}

	if opts.recordPath != "" {
		return record(fs, captureCfg, opts.recordPath, opts.recordSeconds)
	}

	return runTally(cfg, captureCfg, opts.meter)
}

// runTally wires capture to the evaluation engine and blocks until a
// shutdown signal arrives. The engine releases both outputs before
// capture is torn down.
func runTally(cfg *config.Config, captureCfg audio.CaptureConfig, withMeter bool) error {
	snap := cfg.Snapshot()

	queue := audio.NewQueue(snap.Evaluation.QueueDepth)
	capture, err := audio.Open(captureCfg, queue)
	if err != nil {
		return err
	}
	defer func() {
		if err := capture.Close(); err != nil {
			slog.Error("failed to close capture", "error", err)
		}
	}()

	length, err := cfg.WindowLength(capture.SampleRate())
	if err != nil {
		return err
	}
	window := audio.NewWindow(length, len(captureCfg.Channels))

	driver, err := output.Open(snap.Triggers.Trigger1.Pin, snap.Triggers.Trigger2.Pin)
	if err != nil {
		return err
	}
	defer func() {
		if err := driver.Close(); err != nil {
			slog.Error("failed to close outputs", "error", err)
		}
	}()

	slog.Info("tally outputs claimed",
		"trigger1", snap.Triggers.Trigger1.Name, "pin1", snap.Triggers.Trigger1.Pin,
		"trigger2", snap.Triggers.Trigger2.Name, "pin2", snap.Triggers.Trigger2.Pin)

	settings := tally.Settings{
		Thresholds: tally.Thresholds{
			Trigger1: snap.Triggers.Trigger1.Threshold,
			Trigger2: snap.Triggers.Trigger2.Threshold,
			Off:      snap.Triggers.Off,
		},
		Interval:     time.Duration(snap.Evaluation.IntervalMs) * time.Millisecond,
		Trigger1Name: snap.Triggers.Trigger1.Name,
		Trigger2Name: snap.Triggers.Trigger2.Name,
	}
	engine := tally.New(settings, queue, window, driver, notify.New(os.Stdout))

	if err := capture.Start(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engineDone := make(chan error, 1)
	go func() {
		engineDone <- engine.Run(ctx)
	}()

	meterDone := make(chan struct{})
	if withMeter {
		m := newMeter(engine, settings.Thresholds, settings.Interval, os.Stdout)
		go func() {
			defer close(meterDone)
			m.run(ctx)
		}()
	} else {
		close(meterDone)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, util.ShutdownSignals()...)
	<-sigChan

	slog.Info("shutting down")

	cancel()
	err = <-engineDone
	<-meterDone

	if stopErr := capture.Stop(); stopErr != nil {
		slog.Error("failed to stop capture", "error", stopErr)
	}
	if n := capture.Overflows(); n > 0 {
		slog.Warn("input overflows occurred during this run", "count", n)
	}

	slog.Info("shutdown complete")
	return err
}

// printDevices writes the input device table.
func printDevices(w io.Writer) error {
	devices, err := audio.Devices()
	if err != nil {
		return err
	}

	for _, d := range devices {
		marker := " "
		if d.IsDefault {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %3d  %s (%s, %d in, %.0f Hz)\n",
			marker, d.Index, d.Name, d.HostAPI, d.MaxInputs, d.SampleRate)
	}
	return nil
}
