package ndi

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"
)

// ErrSynthExhausted is returned once a bounded SynthSource has delivered
// its configured total sample count; the slot engine treats it the same
// as ErrSourceLost.
var ErrSynthExhausted = errors.New("ndi: synthetic source exhausted")

// SynthOptions configures a SynthSource.
type SynthOptions struct {
	SampleRate   int           // default 48000
	Channels     int           // default 2
	ChunkFrames  int           // samples-per-channel delivered per NextFrame call
	ToneHz       float64       // sine tone frequency; 0 produces silence
	ArrivalPace  time.Duration // sleep before returning each frame; 0 = no pacing (test mode)
	TotalSamples int           // 0 = unbounded
}

// SynthSource is a deterministic sine-wave (or silence) frame generator
// used by tests and by the bridge's -synthetic demo mode, so the pipeline
// can be exercised without real NDI hardware. It is not a codec or a
// remixing tool: with default options it emits the 48000Hz/2ch float
// format the Format Gate expects, and it emits whatever SampleRate and
// Channels are set in SynthOptions otherwise.
type SynthSource struct {
	opts  SynthOptions
	mu    sync.Mutex
	phase float64
	sent  int
}

// NewSynthSource builds a SynthSource, applying defaults for zero fields.
func NewSynthSource(opts SynthOptions) *SynthSource {
	if opts.SampleRate == 0 {
		opts.SampleRate = 48000
	}
	if opts.Channels == 0 {
		opts.Channels = 2
	}
	if opts.ChunkFrames == 0 {
		opts.ChunkFrames = 48
	}
	return &SynthSource{opts: opts}
}

// NextFrame implements Source.
func (s *SynthSource) NextFrame(ctx context.Context) (Frame, error) {
	if s.opts.ArrivalPace > 0 {
		t := time.NewTimer(s.opts.ArrivalPace)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opts.TotalSamples > 0 && s.sent >= s.opts.TotalSamples {
		return Frame{}, ErrSynthExhausted
	}

	n := s.opts.ChunkFrames
	if s.opts.TotalSamples > 0 && s.sent+n > s.opts.TotalSamples {
		n = s.opts.TotalSamples - s.sent
	}

	data := make([]float32, n*s.opts.Channels)
	step := 2 * math.Pi * s.opts.ToneHz / float64(s.opts.SampleRate)
	for i := 0; i < n; i++ {
		var v float32
		if s.opts.ToneHz > 0 {
			v = float32(math.Sin(s.phase))
			s.phase += step
		}
		for c := 0; c < s.opts.Channels; c++ {
			data[i*s.opts.Channels+c] = v
		}
	}
	s.sent += n

	return Frame{
		SampleRate:        s.opts.SampleRate,
		Channels:          s.opts.Channels,
		SamplesPerChannel: n,
		Planar:            false,
		Samples:           data,
	}, nil
}

// Close implements Source. It is a no-op: the synthetic source owns no
// external resources.
func (s *SynthSource) Close() error {
	return nil
}
