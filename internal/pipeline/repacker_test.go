package pipeline

import (
	"testing"

	"github.com/ndibridge/ndibridge/internal/ndi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func interleavedFrame(n int, fill func(frame, ch int) float32) ndi.Frame {
	data := make([]float32, n*TargetChannels)
	for i := 0; i < n; i++ {
		for ch := 0; ch < TargetChannels; ch++ {
			data[i*TargetChannels+ch] = fill(i, ch)
		}
	}
	return ndi.Frame{SampleRate: TargetSampleRate, Channels: TargetChannels, SamplesPerChannel: n, Samples: data}
}

// TestRepackerCadence is property 1: for any stream totalling N stereo
// samples, the number of chunks emitted equals floor(N/48), and the
// residual length is always in [0, 48) between frames.
func TestRepackerCadence(t *testing.T) {
	r := NewRepacker()

	frameSizes := []int{1, 47, 48, 49, 100, 1}
	total := 0
	var chunkCount int
	for _, n := range frameSizes {
		f := interleavedFrame(n, func(frame, ch int) float32 { return float32(frame) })
		chunks := r.Push(f)
		chunkCount += len(chunks)
		total += n

		assert.GreaterOrEqual(t, r.ResidualFrames(), 0)
		assert.Less(t, r.ResidualFrames(), ChunkFrames)
	}

	assert.Equal(t, total/ChunkFrames, chunkCount)
	assert.Equal(t, total%ChunkFrames, r.ResidualFrames())
}

func TestRepackerExactMultiple(t *testing.T) {
	r := NewRepacker()
	f := interleavedFrame(9600, func(frame, ch int) float32 { return 0 })
	chunks := r.Push(f)
	assert.Equal(t, 200, len(chunks))
	assert.Equal(t, 0, r.ResidualFrames())
}

func TestRepackerOrderPreserved(t *testing.T) {
	r := NewRepacker()
	f := interleavedFrame(96, func(frame, ch int) float32 { return float32(frame*10 + ch) })
	chunks := r.Push(f)
	require.Len(t, chunks, 2)

	assert.Equal(t, float32(0), chunks[0].Samples[0])
	assert.Equal(t, float32(1), chunks[0].Samples[1])
	assert.Equal(t, float32(470), chunks[0].Samples[94])
	assert.Equal(t, float32(480), chunks[1].Samples[0])
}

func TestRepackerPlanarConversion(t *testing.T) {
	r := NewRepacker()
	// Planar: all of left channel, then all of right channel.
	left := []float32{1, 2, 3}
	right := []float32{10, 20, 30}
	f := ndi.Frame{
		SampleRate:        TargetSampleRate,
		Channels:          TargetChannels,
		SamplesPerChannel: 3,
		Planar:            true,
		Samples:           append(append([]float32{}, left...), right...),
	}
	r.Push(f)
	assert.Equal(t, 3, r.ResidualFrames())

	// Feed 45 more to complete a chunk and inspect interleaving.
	more := interleavedFrame(45, func(frame, ch int) float32 { return 0 })
	chunks := r.Push(more)
	require.Len(t, chunks, 1)
	assert.Equal(t, float32(1), chunks[0].Samples[0])
	assert.Equal(t, float32(10), chunks[0].Samples[1])
	assert.Equal(t, float32(2), chunks[0].Samples[2])
	assert.Equal(t, float32(20), chunks[0].Samples[3])
}

func TestRepackerResetDiscardsResidual(t *testing.T) {
	r := NewRepacker()
	r.Push(interleavedFrame(10, func(frame, ch int) float32 { return 1 }))
	require.Equal(t, 10, r.ResidualFrames())

	r.Reset()
	assert.Equal(t, 0, r.ResidualFrames())
}
