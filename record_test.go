package main

import (
	"testing"

	"github.com/go-audio/wav"
	"github.com/oszuidwest/zwfm-tally/internal/audio"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPCM16(t *testing.T) {
	tests := []struct {
		name string
		in   float32
		want int
	}{
		{"silence", 0, 0},
		{"full scale", 1.0, 32767},
		{"negative full scale", -1.0, -32767},
		{"half scale", 0.5, 16383},
		{"negative half scale", -0.5, -16383},
		{"clamps above full scale", 2.0, 32767},
		{"clamps below full scale", -2.0, -32768},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pcm16(tt.in))
		})
	}
}

func TestAppendBlocksKeepsOrder(t *testing.T) {
	samples := appendBlocks(nil, []audio.Block{
		{Samples: []float32{0, 0.5}, Channels: 1},
		{Samples: []float32{-0.5, 1.0}, Channels: 1},
	})
	assert.Equal(t, []int{0, 16383, -16383, 32767}, samples)
}

func TestWriteWAVRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	samples := []int{0, 8191, 16383, 8191, 0, -8191, -16383, -8191}

	require.NoError(t, writeWAV(fs, "/clips/calibration.wav", samples, 4410, 1))

	f, err := fs.Open("/clips/calibration.wav")
	require.NoError(t, err)
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)

	assert.Equal(t, uint32(4410), dec.SampleRate)
	assert.Equal(t, uint16(16), dec.BitDepth)
	assert.Equal(t, uint16(1), dec.NumChans)
	assert.Equal(t, samples, buf.Data)
}
