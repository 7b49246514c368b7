package slot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ndibridge/ndibridge/internal/mcast"
	"github.com/ndibridge/ndibridge/internal/ndi"
	"github.com/ndibridge/ndibridge/internal/pipeline"
	"github.com/ndibridge/ndibridge/internal/rtpcodec"
)

const (
	startWatchdog            = 5 * time.Second
	stopGrace                = 2 * time.Second
	frameReadTimeout         = 1 * time.Second
	maxConsecutiveSendErrors = 100
)

// SourceFactory opens a Frame Source for the given NDI source name. The
// Slot Engine calls it once per start() and owns the returned Source for
// the life of the run.
type SourceFactory func(sourceName string) (ndi.Source, error)

// Engine is the per-slot state machine: it composes the frame source,
// format gate, repacker, the two packetizer flavors, and the two
// multicast emitters into one ingestion-to-wire pipeline, and exposes
// synchronous start/stop with the documented watchdog and grace period.
type Engine struct {
	logger        *slog.Logger
	sourceFactory SourceFactory
	iface         *net.Interface

	mu        sync.Mutex
	cfg       SlotConfig
	state     State
	message   string
	startedAt time.Time

	packetsSent           atomic.Uint64
	bytesSent             atomic.Uint64
	lastSendUnixNano      atomic.Int64
	framesReceived        atomic.Uint64
	underruns             atomic.Uint64
	paramMismatchCount    atomic.Uint64
	consecutiveSendErrors atomic.Uint64

	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine builds an idle engine for the given slot config. iface may be
// nil to let the multicast emitter auto-detect an outbound interface.
func NewEngine(cfg SlotConfig, sourceFactory SourceFactory, iface *net.Interface, logger *slog.Logger) *Engine {
	return &Engine{
		logger:        logger.With("slot_id", cfg.SlotID),
		sourceFactory: sourceFactory,
		iface:         iface,
		cfg:           cfg,
		state:         StateIdle,
	}
}

// Config returns the engine's current configuration snapshot.
func (e *Engine) Config() SlotConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Status returns a point-in-time snapshot of the engine's observable state.
func (e *Engine) Status() SlotStatus {
	e.mu.Lock()
	st, msg, startedAt := e.state, e.message, e.startedAt
	e.mu.Unlock()

	return SlotStatus{
		State:                 st,
		Message:               msg,
		StartedAt:             startedAt,
		PacketsSent:           e.packetsSent.Load(),
		BytesSent:             e.bytesSent.Load(),
		LastSendUnixNano:      e.lastSendUnixNano.Load(),
		FramesReceived:        e.framesReceived.Load(),
		Underruns:             e.underruns.Load(),
		ParamMismatchCount:    e.paramMismatchCount.Load(),
		ConsecutiveSendErrors: e.consecutiveSendErrors.Load(),
	}
}

func (e *Engine) setState(state State, message string) {
	e.mu.Lock()
	e.state, e.message = state, message
	e.mu.Unlock()
}

func (e *Engine) getState() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Start spawns the ingestion worker and blocks until the engine reaches
// Live, reaches Failed, or the 5s start watchdog elapses (also Failed).
// Calling Start on a Failed engine clears the failure and starts it
// again; calling it while Starting, Live or Stopping is a no-op that
// returns nil.
func (e *Engine) Start() error {
	if e.getState() != StateIdle && e.getState() != StateFailed {
		return nil
	}

	e.resetCounters()
	e.setState(StateStarting, "")

	ctx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.cancel = cancel
	cfg := e.cfg
	e.mu.Unlock()

	l24Addr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", cfg.McastIP, cfg.McastPort))
	if err != nil {
		cancel()
		e.setState(StateFailed, "invalid multicast address")
		return errors.New("invalid multicast address")
	}
	l16Addr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", cfg.McastIP, cfg.McastPort+2))
	if err != nil {
		cancel()
		e.setState(StateFailed, "invalid multicast address")
		return errors.New("invalid multicast address")
	}

	l24Emitter, err := mcast.NewEmitter(l24Addr, e.iface, 32, e.logger)
	if err != nil {
		cancel()
		e.setState(StateFailed, "socket bind failed")
		return fmt.Errorf("socket bind failed: %w", err)
	}
	l16Emitter, err := mcast.NewEmitter(l16Addr, e.iface, 32, e.logger)
	if err != nil {
		l24Emitter.Close()
		cancel()
		e.setState(StateFailed, "socket bind failed")
		return fmt.Errorf("socket bind failed: %w", err)
	}

	source, err := e.sourceFactory(cfg.NDISourceName)
	if err != nil {
		l24Emitter.Close()
		l16Emitter.Close()
		cancel()
		e.setState(StateFailed, "source not found")
		return fmt.Errorf("source not found: %w", err)
	}

	liveCh := make(chan struct{})
	failCh := make(chan string, 1)
	done := make(chan struct{})

	e.mu.Lock()
	e.done = done
	e.mu.Unlock()

	go e.run(ctx, cfg, source, l24Emitter, l16Emitter, liveCh, failCh, done)

	timer := time.NewTimer(startWatchdog)
	defer timer.Stop()

	select {
	case <-liveCh:
		e.mu.Lock()
		e.state, e.message, e.startedAt = StateLive, "", time.Now()
		e.mu.Unlock()
		return nil
	case msg := <-failCh:
		e.setState(StateFailed, msg)
		return errors.New(msg)
	case <-timer.C:
		e.setState(StateFailed, "receiver did not connect")
		cancel()
		return errors.New("receiver did not connect")
	}
}

func (e *Engine) resetCounters() {
	e.packetsSent.Store(0)
	e.bytesSent.Store(0)
	e.lastSendUnixNano.Store(0)
	e.framesReceived.Store(0)
	e.underruns.Store(0)
	e.paramMismatchCount.Store(0)
	e.consecutiveSendErrors.Store(0)
}

// Stop signals the worker to cancel, waits up to the stop grace period,
// then forcibly proceeds regardless. It is idempotent and safe to call
// from any state.
func (e *Engine) Stop() {
	if e.getState() == StateIdle {
		return
	}

	e.setState(StateStopping, "")

	e.mu.Lock()
	cancel := e.cancel
	done := e.done
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(stopGrace):
			e.logger.Warn("stop grace period elapsed, abandoning worker")
		}
	}

	e.mu.Lock()
	e.state, e.message, e.startedAt = StateIdle, "", time.Time{}
	e.mu.Unlock()
}

func (e *Engine) run(ctx context.Context, cfg SlotConfig, source ndi.Source, l24Emitter, l16Emitter *mcast.Emitter, liveCh chan struct{}, failCh chan string, done chan struct{}) {
	defer close(done)
	defer source.Close()
	defer l24Emitter.Close()
	defer l16Emitter.Close()

	gate := pipeline.NewFormatGate()
	repacker := pipeline.NewRepacker()
	l24 := rtpcodec.NewPacketizer(rtpcodec.FlavorL24, cfg.SSRC)
	l16 := rtpcodec.NewPacketizer(rtpcodec.FlavorL16, cfg.SSRC)

	var wentLive sync.Once

	fail := func(msg string) {
		select {
		case failCh <- msg:
		default:
		}
		e.setState(StateFailed, msg)
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		readCtx, cancel := context.WithTimeout(ctx, frameReadTimeout)
		frame, err := source.NextFrame(readCtx)
		cancel()
		if err != nil {
			if errors.Is(err, ndi.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return
				}
				continue
			}
			if ctx.Err() != nil {
				return
			}
			fail("source disconnected")
			return
		}
		e.framesReceived.Add(1)

		if err := gate.Check(frame); err != nil {
			e.paramMismatchCount.Add(1)
			fail(err.Error())
			return
		}

		for _, chunk := range repacker.Push(frame) {
			if ctx.Err() != nil {
				return
			}

			l24Pkt, err := l24.Packetize(chunk)
			if err != nil {
				fail("unsupported format: packetization failure")
				return
			}
			if sendErr := l24Emitter.Send(l24Pkt); sendErr != nil {
				e.consecutiveSendErrors.Add(1)
			} else {
				e.consecutiveSendErrors.Store(0)
				e.packetsSent.Add(1)
				e.bytesSent.Add(uint64(len(l24Pkt)))
				e.lastSendUnixNano.Store(time.Now().UnixNano())
				wentLive.Do(func() { close(liveCh) })
			}

			l16Pkt, err := l16.Packetize(chunk)
			if err == nil {
				if sendErr := l16Emitter.Send(l16Pkt); sendErr != nil {
					e.consecutiveSendErrors.Add(1)
				}
			}

			if e.consecutiveSendErrors.Load() > maxConsecutiveSendErrors {
				fail("excessive send errors")
				return
			}
		}
	}
}
