package slot

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ndibridge/ndibridge/internal/ndi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// fakeSource is a scriptable ndi.Source: frames is drained in order, and
// once exhausted NextFrame blocks (simulating a silent source) unless
// failAfterExhausted is set, in which case it returns ErrSourceLost.
type fakeSource struct {
	mu                 sync.Mutex
	frames             []ndi.Frame
	failAfterExhausted bool
	closed             bool
}

func (f *fakeSource) NextFrame(ctx context.Context) (ndi.Frame, error) {
	f.mu.Lock()
	if len(f.frames) > 0 {
		fr := f.frames[0]
		f.frames = f.frames[1:]
		f.mu.Unlock()
		return fr, nil
	}
	failNow := f.failAfterExhausted
	f.mu.Unlock()

	if failNow {
		return ndi.Frame{}, ndi.ErrSourceLost
	}

	select {
	case <-ctx.Done():
		return ndi.Frame{}, ndi.ErrTimeout
	}
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func stereoFrame(n int, fill func(i int) float32) ndi.Frame {
	samples := make([]float32, n*2)
	for i := 0; i < n; i++ {
		samples[2*i] = fill(i)
		samples[2*i+1] = fill(i)
	}
	return ndi.Frame{SampleRate: 48000, Channels: 2, SamplesPerChannel: n, Samples: samples}
}

func localhostIface(t *testing.T) *net.Interface {
	t.Helper()
	iface, err := net.InterfaceByName("lo")
	if err != nil {
		t.Skipf("no loopback interface available: %v", err)
	}
	return iface
}

func testConfig(slotID int) SlotConfig {
	cfg := DefaultConfig(slotID)
	cfg.McastIP = "239.5.5.5"
	cfg.McastPort = 16000 + slotID*10
	cfg.NDISourceName = "Test Source"
	cfg.SSRC = uint32(1000 + slotID)
	return cfg
}

func TestEngineHappyPathReachesLive(t *testing.T) {
	src := &fakeSource{frames: []ndi.Frame{stereoFrame(9600/2, func(i int) float32 { return 0.1 })}}
	factory := func(string) (ndi.Source, error) { return src, nil }

	e := NewEngine(testConfig(1), factory, localhostIface(t), testLogger())
	require.NoError(t, e.Start())
	assert.Equal(t, StateLive, e.Status().State)

	e.Stop()
	assert.Equal(t, StateIdle, e.Status().State)
}

func TestEngineFormatRejection(t *testing.T) {
	bad := ndi.Frame{SampleRate: 44100, Channels: 2, SamplesPerChannel: 48, Samples: make([]float32, 96)}
	src := &fakeSource{frames: []ndi.Frame{bad}}
	factory := func(string) (ndi.Source, error) { return src, nil }

	e := NewEngine(testConfig(1), factory, localhostIface(t), testLogger())
	err := e.Start()
	require.Error(t, err)
	assert.Equal(t, StateFailed, e.Status().State)
	assert.Equal(t, "unsupported format: 44100Hz/2ch", e.Status().Message)
}

func TestEngineSourceNotFound(t *testing.T) {
	factory := func(string) (ndi.Source, error) { return nil, errors.New("no such source") }
	e := NewEngine(testConfig(1), factory, localhostIface(t), testLogger())
	err := e.Start()
	require.Error(t, err)
	assert.Equal(t, StateFailed, e.Status().State)
	assert.Contains(t, e.Status().Message, "source not found")
}

func TestEngineStopIsIdempotent(t *testing.T) {
	factory := func(string) (ndi.Source, error) { return &fakeSource{}, nil }
	e := NewEngine(testConfig(1), factory, localhostIface(t), testLogger())
	e.Stop()
	e.Stop()
	assert.Equal(t, StateIdle, e.Status().State)
}

func TestEngineStartWatchdogTimesOut(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping 5s watchdog test in short mode")
	}
	factory := func(string) (ndi.Source, error) { return &fakeSource{}, nil }
	e := NewEngine(testConfig(1), factory, localhostIface(t), testLogger())

	start := time.Now()
	err := e.Start()
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Equal(t, "receiver did not connect", err.Error())
	assert.GreaterOrEqual(t, elapsed, 5*time.Second)
	assert.Less(t, elapsed, 7*time.Second)
}
