// Package pipeline converts arbitrary-sized NDI audio frames into
// fixed-size, fixed-format AudioChunks ready for RTP packetization.
package pipeline

import (
	"fmt"

	"github.com/ndibridge/ndibridge/internal/ndi"
)

// TargetSampleRate and TargetChannels are the only format this bridge
// speaks; sample-rate conversion and channel remixing are explicitly out
// of scope (see the bridge's Non-goals).
const (
	TargetSampleRate = 48000
	TargetChannels   = 2
)

// FormatGate rejects any frame that does not match the fixed target
// format. There is no automatic conversion: a mismatch is a pipeline
// failure, not a degraded mode.
type FormatGate struct{}

// NewFormatGate constructs a gate bound to the fixed 48000Hz/2ch target.
func NewFormatGate() *FormatGate {
	return &FormatGate{}
}

// Check validates a frame's parameters against the fixed target. A
// mismatch returns an error whose message is exactly the slot's Failed
// diagnostic: "unsupported format: <rate>Hz/<ch>ch".
func (g *FormatGate) Check(f ndi.Frame) error {
	if f.SampleRate != TargetSampleRate || f.Channels != TargetChannels {
		return fmt.Errorf("unsupported format: %dHz/%dch", f.SampleRate, f.Channels)
	}
	return nil
}
