package sap

import (
	"context"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/ndibridge/ndibridge/internal/mcast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSAPPacketStructure(t *testing.T) {
	body := "v=0\r\ns=test\r\n"
	pkt, err := BuildSAPPacket(net.ParseIP("239.69.0.1"), body)
	require.NoError(t, err)

	require.True(t, len(pkt) > 8)
	assert.Equal(t, byte(1<<5), pkt[0], "version=1, address type=IPv4, announce, no encryption/compression")
	assert.Equal(t, byte(0), pkt[1], "authentication length = 0")

	// bytes 4..8 carry the 4-byte originating source address.
	assert.Equal(t, []byte{239, 69, 0, 1}, pkt[4:8])

	rest := pkt[8:]
	idx := 0
	for idx < len(rest) && rest[idx] != 0 {
		idx++
	}
	assert.Equal(t, "application/sdp", string(rest[:idx]))
	assert.Equal(t, body, string(rest[idx+1:]))
}

func TestMessageIDHashStableAcrossCalls(t *testing.T) {
	body := "v=0\r\ns=Studio A\r\n"
	assert.Equal(t, messageIDHash(body), messageIDHash(body))
}

func TestMessageIDHashChangesWithBody(t *testing.T) {
	assert.NotEqual(t, messageIDHash("v=0\r\ns=A\r\n"), messageIDHash("v=0\r\ns=B\r\n"))
}

type fakeProvider struct {
	slots []SlotSnapshot
}

func (f *fakeProvider) LiveSlots() []SlotSnapshot { return f.slots }

func TestAnnouncerSendsForEveryLiveSlot(t *testing.T) {
	addr, err := net.ResolveUDPAddr("udp4", "239.2.2.2:19875")
	require.NoError(t, err)

	recv, err := net.ListenMulticastUDP("udp4", nil, addr)
	if err != nil {
		t.Skipf("multicast not available in this sandbox: %v", err)
	}
	defer recv.Close()
	recv.SetReadDeadline(time.Now().Add(2 * time.Second))

	logger := slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
	emitter, err := mcast.NewEmitter(addr, nil, 255, logger)
	require.NoError(t, err)
	defer emitter.Close()

	provider := &fakeProvider{slots: []SlotSnapshot{
		{SDPParams: SDPParams{SSRC: 1, SourceIP: "10.0.0.1", AES67StreamName: "Studio A", McastIP: "239.69.0.1", McastPort: 5004}},
	}}
	a := NewAnnouncer(provider, emitter, logger)
	a.announceOnce()

	buf := make([]byte, 2048)
	n, _, err := recv.ReadFromUDP(buf)
	if err != nil {
		t.Skipf("multicast loopback delivery not available in this sandbox: %v", err)
	}
	assert.Contains(t, string(buf[:n]), "s=Studio A")
}

func TestAnnouncerRunStopsOnContextCancel(t *testing.T) {
	addr, err := net.ResolveUDPAddr("udp4", "239.2.2.3:19876")
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
	emitter, err := mcast.NewEmitter(addr, nil, 255, logger)
	require.NoError(t, err)
	defer emitter.Close()

	a := NewAnnouncer(&fakeProvider{}, emitter, logger)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
