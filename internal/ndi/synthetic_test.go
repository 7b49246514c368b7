package ndi

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthSourceExactTotal(t *testing.T) {
	s := NewSynthSource(SynthOptions{
		ChunkFrames:  20,
		TotalSamples: 9600,
		ToneHz:       1000,
	})

	total := 0
	for {
		f, err := s.NextFrame(context.Background())
		if err != nil {
			require.True(t, errors.Is(err, ErrSynthExhausted))
			break
		}
		assert.Equal(t, 48000, f.SampleRate)
		assert.Equal(t, 2, f.Channels)
		total += f.SamplesPerChannel
	}
	assert.Equal(t, 9600, total)
}

func TestSynthSourceUnevenLastChunk(t *testing.T) {
	s := NewSynthSource(SynthOptions{ChunkFrames: 7, TotalSamples: 10})

	f1, err := s.NextFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, f1.SamplesPerChannel)

	f2, err := s.NextFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, f2.SamplesPerChannel)

	_, err = s.NextFrame(context.Background())
	assert.True(t, errors.Is(err, ErrSynthExhausted))
}

func TestSynthSourceSilence(t *testing.T) {
	s := NewSynthSource(SynthOptions{ChunkFrames: 48, TotalSamples: 48})
	f, err := s.NextFrame(context.Background())
	require.NoError(t, err)
	for _, v := range f.Samples {
		assert.Equal(t, float32(0), v)
	}
}
