package sap

import (
	"context"
	"hash/crc32"
	"log/slog"
	"math/rand"
	"net"
	"time"

	"github.com/ndibridge/ndibridge/internal/mcast"
)

const (
	// AnnounceAddr is the well-known SAP multicast group and port (RFC 2974).
	AnnounceAddr = "224.2.127.254:9875"
	announceTTL  = 255
	baseInterval = 30 * time.Second
	jitterFrac   = 0.1 // +/-3s around a 30s base
)

const (
	sapVersion   = 1
	sapAddrType  = 0 // IPv4
	sapMsgType   = 0 // announce
	mimeTypeSDP  = "application/sdp"
)

// SlotSnapshot is one Live slot's announcement material, gathered fresh on
// every announce cycle.
type SlotSnapshot struct {
	SDPParams
}

// Provider supplies the current set of Live slots to announce. The Slot
// Manager implements this; the announcer never mutates slot state, it only
// reads a snapshot each cycle.
type Provider interface {
	LiveSlots() []SlotSnapshot
}

// Announcer periodically re-broadcasts SAP packets for every Live slot. It
// runs as a single background goroutine independent of any slot's data
// path: a slot failing or restarting never blocks or skips an announce
// cycle for its siblings.
type Announcer struct {
	provider Provider
	emitter  *mcast.Emitter
	logger   *slog.Logger
}

// NewAnnouncer builds an announcer. The emitter must already be configured
// to send to AnnounceAddr with TTL 255; internal/mcast.NewEmitter handles
// socket setup, this package only shapes the payload and scheduling.
func NewAnnouncer(provider Provider, emitter *mcast.Emitter, logger *slog.Logger) *Announcer {
	return &Announcer{
		provider: provider,
		emitter:  emitter,
		logger:   logger.With("subsystem", "sap-announcer"),
	}
}

// Run blocks, sending one round of SAP announcements every ~30s (+/-3s
// jitter) until ctx is canceled.
func (a *Announcer) Run(ctx context.Context) {
	for {
		a.announceOnce()

		d := nextInterval()
		select {
		case <-ctx.Done():
			return
		case <-time.After(d):
		}
	}
}

func nextInterval() time.Duration {
	jitter := float64(baseInterval) * jitterFrac * (2*rand.Float64() - 1)
	return baseInterval + time.Duration(jitter)
}

func (a *Announcer) announceOnce() {
	slots := a.provider.LiveSlots()
	for _, s := range slots {
		body := BuildAES67SDP(s.SDPParams)
		pkt, err := BuildSAPPacket(net.ParseIP(s.SourceIP), body)
		if err != nil {
			a.logger.Warn("building SAP packet", "error", err, "stream", s.AES67StreamName)
			continue
		}
		if err := a.emitter.Send(pkt); err != nil {
			a.logger.Warn("sending SAP announcement", "error", err, "stream", s.AES67StreamName)
		}
	}
}

// BuildSAPPacket assembles one SAP datagram: an 8-byte header (flags byte,
// authentication length, 16-bit message id hash, 4-byte originating source
// address), then the null-terminated MIME type, then the SDP payload.
func BuildSAPPacket(sourceIP net.IP, sdpBody string) ([]byte, error) {
	ip4 := sourceIP.To4()
	if ip4 == nil {
		ip4 = net.IPv4zero.To4()
	}

	msgID := messageIDHash(sdpBody)

	out := make([]byte, 0, 8+2+4+len(mimeTypeSDP)+1+len(sdpBody))

	// Byte 0: V(3 bits)=1, A(1 bit)=0 (IPv4), R(1)=0, T(1)=announce,
	// E(1)=0, C(1)=0.
	flags := byte(sapVersion<<5) | byte(sapAddrType<<4) | byte(sapMsgType<<2)
	out = append(out, flags)
	out = append(out, 0) // authentication length = 0
	out = append(out, byte(msgID>>8), byte(msgID))
	out = append(out, ip4...)
	out = append(out, []byte(mimeTypeSDP)...)
	out = append(out, 0) // null terminator
	out = append(out, []byte(sdpBody)...)

	return out, nil
}

// messageIDHash derives a stable 16-bit message id from the SDP body. RFC
// 2974 requires the id to stay constant across re-announcements of the
// same session and to change when the session description changes; a CRC32
// of the body, truncated to its low 16 bits, satisfies both without
// needing a persisted counter.
func messageIDHash(sdpBody string) uint16 {
	return uint16(crc32.ChecksumIEEE([]byte(sdpBody)))
}
