package pipeline

import "github.com/ndibridge/ndibridge/internal/ndi"

// ChunkFrames is the number of stereo samples per AudioChunk: 1ms at 48kHz.
const ChunkFrames = 48

// AudioChunk holds exactly ChunkFrames stereo samples, interleaved
// (L,R,L,R,...), 2*ChunkFrames float32 values total.
type AudioChunk struct {
	Samples [ChunkFrames * TargetChannels]float32
}

// Repacker converts arbitrarily sized incoming frames into a continuous
// interleaved stereo sample stream and hands out fixed-size AudioChunks.
// A residual buffer holds the leftover (< ChunkFrames) stereo samples that
// didn't fill a full chunk, carried across frame boundaries.
type Repacker struct {
	residual []float32 // interleaved stereo samples, len always a multiple of TargetChannels
}

// NewRepacker creates an empty repacker.
func NewRepacker() *Repacker {
	return &Repacker{}
}

// Push appends a frame's samples (converted to interleaved stereo) to the
// residual buffer and detaches as many full AudioChunks as are available.
// The frame must already have passed the FormatGate.
func (r *Repacker) Push(f ndi.Frame) []AudioChunk {
	r.residual = append(r.residual, interleave(f)...)

	var chunks []AudioChunk
	const chunkSamples = ChunkFrames * TargetChannels
	for len(r.residual) >= chunkSamples {
		var c AudioChunk
		copy(c.Samples[:], r.residual[:chunkSamples])
		chunks = append(chunks, c)
		r.residual = r.residual[chunkSamples:]
	}

	// Copy any leftover into a fresh slice so the repacker doesn't pin the
	// (potentially much larger) backing array of an old frame forever.
	if len(r.residual) > 0 {
		fresh := make([]float32, len(r.residual))
		copy(fresh, r.residual)
		r.residual = fresh
	} else {
		r.residual = nil
	}

	return chunks
}

// ResidualFrames returns the number of stereo samples currently buffered,
// always in [0, ChunkFrames).
func (r *Repacker) ResidualFrames() int {
	return len(r.residual) / TargetChannels
}

// Reset discards the residual buffer. The slot engine does not call it: it
// builds a new Repacker for each run and drops it when the run ends.
func (r *Repacker) Reset() {
	r.residual = nil
}

// interleave returns f's samples as interleaved stereo, converting from
// planar layout if necessary.
func interleave(f ndi.Frame) []float32 {
	if !f.Planar {
		return f.Samples
	}

	out := make([]float32, f.SamplesPerChannel*f.Channels)
	for ch := 0; ch < f.Channels; ch++ {
		base := ch * f.SamplesPerChannel
		for i := 0; i < f.SamplesPerChannel; i++ {
			out[i*f.Channels+ch] = f.Samples[base+i]
		}
	}
	return out
}
