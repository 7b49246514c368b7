// Package rtpcodec wraps AudioChunks into wire-ready RTP packets for the
// two flavors this bridge emits: AES67 L24 and a plain L16 monitor flow.
package rtpcodec

import (
	"math"

	"github.com/ndibridge/ndibridge/internal/pipeline"
	"github.com/pion/randutil"
	"github.com/pion/rtp"
)

// Flavor tags which wire format a Packetizer produces. The two flavors
// differ only in sample width, scaling, and RTP payload type, so a single
// parameterized type models both rather than two divergent
// implementations (see the design note on tagged variants vs. dynamic
// dispatch).
type Flavor int

const (
	// FlavorL24 is AES67's primary flow: payload type 98 (dynamic),
	// 24-bit big-endian signed PCM.
	FlavorL24 Flavor = iota
	// FlavorL16 is the monitor flow for tools that can't decode L24:
	// payload type 11 (static, L16/48000/2), 16-bit big-endian signed PCM.
	FlavorL16
)

type flavorSpec struct {
	payloadType    uint8
	bytesPerSample int
	bits           int
}

var flavorSpecs = map[Flavor]flavorSpec{
	FlavorL24: {payloadType: 98, bytesPerSample: 3, bits: 24},
	FlavorL16: {payloadType: 11, bytesPerSample: 2, bits: 16},
}

// Packetizer turns AudioChunks into RTP packets for one flavor, one flow.
// Sequence number and timestamp counters are private to the instance and
// are frozen for its lifetime: restart a flow by constructing a new
// Packetizer.
type Packetizer struct {
	spec      flavorSpec
	ssrc      uint32
	seq       uint16
	timestamp uint32
	payload   []byte
}

// NewPacketizer creates a packetizer for the given flavor and fixed SSRC.
// The initial sequence number and timestamp are randomly seeded, per the
// bridge's RTP monotonicity invariant.
func NewPacketizer(flavor Flavor, ssrc uint32) *Packetizer {
	spec := flavorSpecs[flavor]
	gen := randutil.NewMathRandomGenerator()
	return &Packetizer{
		spec:      spec,
		ssrc:      ssrc,
		seq:       uint16(gen.Uint32()),
		timestamp: gen.Uint32(),
		payload:   make([]byte, pipeline.ChunkFrames*pipeline.TargetChannels*spec.bytesPerSample),
	}
}

// PayloadType returns the RTP payload type this packetizer emits.
func (p *Packetizer) PayloadType() uint8 {
	return p.spec.payloadType
}

// Packetize serializes one AudioChunk into a wire-ready RTP packet,
// advancing the sequence number by 1 (mod 2^16) and the timestamp by
// pipeline.ChunkFrames (mod 2^32).
func (p *Packetizer) Packetize(chunk pipeline.AudioChunk) ([]byte, error) {
	for i, sample := range chunk.Samples {
		v := encodeSample(sample, p.spec.bits)
		off := i * p.spec.bytesPerSample
		switch p.spec.bytesPerSample {
		case 3:
			p.payload[off] = byte(v >> 16)
			p.payload[off+1] = byte(v >> 8)
			p.payload[off+2] = byte(v)
		case 2:
			p.payload[off] = byte(v >> 8)
			p.payload[off+1] = byte(v)
		}
	}

	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Padding:        false,
			Extension:      false,
			Marker:         false,
			PayloadType:    p.spec.payloadType,
			SequenceNumber: p.seq,
			Timestamp:      p.timestamp,
			SSRC:           p.ssrc,
		},
		Payload: p.payload,
	}

	out, err := pkt.Marshal()
	if err != nil {
		return nil, err
	}

	p.seq++
	p.timestamp += pipeline.ChunkFrames

	return out, nil
}

// encodeSample clamps x to [-1,1], scales by 2^(bits-1) and rounds to the
// nearest integer, then clamps the result to the representable signed
// range for the given bit width. This yields the bridge's worked examples
// exactly: +1.0 -> 2^(bits-1)-1 (the positive rail), -1.0 -> -2^(bits-1)
// (the negative rail), 0.0 -> 0.
func encodeSample(x float32, bits int) int32 {
	if x > 1 {
		x = 1
	} else if x < -1 {
		x = -1
	}

	scale := float64(int64(1) << uint(bits-1))
	v := int32(math.Round(float64(x) * scale))

	max := int32((int64(1) << uint(bits-1)) - 1)
	min := int32(-(int64(1) << uint(bits-1)))
	if v > max {
		v = max
	} else if v < min {
		v = min
	}
	return v
}
