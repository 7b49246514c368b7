package slot

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"sync"

	"github.com/ndibridge/ndibridge/internal/sap"
	"github.com/ndibridge/ndibridge/internal/store"
	"github.com/pion/randutil"
	"golang.org/x/sync/errgroup"
)

// Sentinel control-surface errors, returned verbatim to the HTTP collaborator.
var (
	ErrLocked      = errors.New("locked")
	ErrUnknownSlot = errors.New("unknown slot")
	ErrBadAddress  = errors.New("invalid multicast address")
	ErrBadPort     = errors.New("port out of range")
	ErrUnavailable = errors.New("not available")
)

// Manager owns the four fixed slots, serializing configuration mutations
// under a single mutex and enforcing the "configuration locked while
// running" invariant: writes are accepted only when every slot is Idle.
type Manager struct {
	mu      sync.Mutex
	configs map[int]SlotConfig
	engines map[int]*Engine

	store         *store.ConfigStore
	sourceFactory func(slotID int, cfg SlotConfig) SourceFactory
	iface         *net.Interface
	localSourceIP string
	ptpDomain     int
	ptpGMID       string
	logger        *slog.Logger
}

// NewManager loads persisted configs (or assigns fresh defaults, including
// a randomly seeded SSRC per spec's "assigned once per slot" rule) for
// slots 1..4 and constructs one idle Engine per slot.
func NewManager(st *store.ConfigStore, sourceFactory func(slotID int, cfg SlotConfig) SourceFactory, iface *net.Interface, localSourceIP string, ptpDomain int, ptpGMID string, logger *slog.Logger) (*Manager, error) {
	rows, err := st.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("loading slot configs: %w", err)
	}

	byID := make(map[int]store.ConfigRow, len(rows))
	for _, r := range rows {
		byID[r.SlotID] = r
	}

	m := &Manager{
		configs:       make(map[int]SlotConfig, MaxSlotID),
		engines:       make(map[int]*Engine, MaxSlotID),
		store:         st,
		sourceFactory: sourceFactory,
		iface:         iface,
		localSourceIP: localSourceIP,
		ptpDomain:     ptpDomain,
		ptpGMID:       ptpGMID,
		logger:        logger.With("subsystem", "slot-manager"),
	}

	gen := randutil.NewMathRandomGenerator()
	for id := MinSlotID; id <= MaxSlotID; id++ {
		var cfg SlotConfig
		if row, ok := byID[id]; ok {
			cfg = SlotConfig{
				SlotID:          row.SlotID,
				NDISourceName:   row.NDISourceName,
				AES67StreamName: row.AES67StreamName,
				McastIP:         row.McastIP,
				McastPort:       row.McastPort,
				SSRC:            row.SSRC,
			}
		} else {
			cfg = DefaultConfig(id)
			cfg.SSRC = gen.Uint32()
			if err := st.Upsert(toRow(cfg)); err != nil {
				return nil, fmt.Errorf("persisting default config for slot %d: %w", id, err)
			}
		}
		m.configs[id] = cfg
		m.engines[id] = NewEngine(cfg, sourceFactory(id, cfg), iface, logger)
	}

	return m, nil
}

func toRow(cfg SlotConfig) store.ConfigRow {
	return store.ConfigRow{
		SlotID:          cfg.SlotID,
		NDISourceName:   cfg.NDISourceName,
		AES67StreamName: cfg.AES67StreamName,
		McastIP:         cfg.McastIP,
		McastPort:       cfg.McastPort,
		SSRC:            cfg.SSRC,
	}
}

// runningLocked reports whether any slot is not Idle — the manager is locked for
// configuration edits in that state. Caller must hold m.mu.
func (m *Manager) runningLocked() bool {
	for _, e := range m.engines {
		if e.getState() != StateIdle {
			return true
		}
	}
	return false
}

// ListConfigs returns a copy of all four slot configs, ordered by slot id.
func (m *Manager) ListConfigs() []SlotConfig {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]SlotConfig, 0, len(m.configs))
	for _, cfg := range m.configs {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SlotID < out[j].SlotID })
	return out
}

// GetConfig returns one slot's config.
func (m *Manager) GetConfig(id int) (SlotConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg, ok := m.configs[id]
	if !ok {
		return SlotConfig{}, ErrUnknownSlot
	}
	return cfg, nil
}

// SetConfig writes a new config for one slot. Rejected with ErrLocked
// unless every slot is currently Idle. The slot's SSRC is never
// overwritten by this call: it is assigned once, at manager construction.
func (m *Manager) SetConfig(id int, cfg SlotConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.configs[id]
	if !ok {
		return ErrUnknownSlot
	}
	if m.runningLocked() {
		return ErrLocked
	}
	ip := net.ParseIP(cfg.McastIP)
	if ip == nil || ip.To4() == nil || !ip.IsMulticast() {
		return ErrBadAddress
	}
	if cfg.McastPort <= 0 || cfg.McastPort > 65533 {
		return ErrBadPort
	}

	cfg.SlotID = id
	cfg.SSRC = existing.SSRC
	if err := m.store.Upsert(toRow(cfg)); err != nil {
		return fmt.Errorf("persisting slot %d config: %w", id, err)
	}

	m.configs[id] = cfg
	m.engines[id] = NewEngine(cfg, m.sourceFactory(id, cfg), m.iface, m.logger)
	return nil
}

// StartAll starts every slot whose NDI source is assigned. It returns
// whether at least one slot ended up Live and a diagnostic message: the
// first non-empty failure message among the slots it attempted to start.
func (m *Manager) StartAll() (bool, string) {
	m.mu.Lock()
	engines := make([]*Engine, 0, len(m.engines))
	for id := MinSlotID; id <= MaxSlotID; id++ {
		cfg := m.configs[id]
		if cfg.NDISourceName == "" {
			continue
		}
		engines = append(engines, m.engines[id])
	}
	m.mu.Unlock()

	// Engines start concurrently: each blocks up to the 5s watchdog, and
	// there is no ordering dependency between slots.
	var g errgroup.Group
	results := make([]error, len(engines))
	for i, e := range engines {
		i, e := i, e
		g.Go(func() error {
			results[i] = e.Start()
			return nil
		})
	}
	g.Wait() //nolint:errcheck // per-engine errors are collected in results, not returned here

	var firstErr string
	running := false
	for _, err := range results {
		if err != nil {
			if firstErr == "" {
				firstErr = err.Error()
			}
			continue
		}
		running = true
	}
	return running, firstErr
}

// StopAll stops every non-Idle slot, concurrently.
func (m *Manager) StopAll() (bool, string) {
	m.mu.Lock()
	engines := make([]*Engine, 0, len(m.engines))
	for id := MinSlotID; id <= MaxSlotID; id++ {
		engines = append(engines, m.engines[id])
	}
	m.mu.Unlock()

	var g errgroup.Group
	for _, e := range engines {
		e := e
		g.Go(func() error {
			e.Stop()
			return nil
		})
	}
	g.Wait() //nolint:errcheck

	return false, ""
}

// Status reports whether any slot is Live, and the first non-empty
// diagnostic message among all slots otherwise.
func (m *Manager) Status() (bool, string) {
	m.mu.Lock()
	engines := make([]*Engine, 0, len(m.engines))
	for id := MinSlotID; id <= MaxSlotID; id++ {
		engines = append(engines, m.engines[id])
	}
	m.mu.Unlock()

	message := ""
	for _, e := range engines {
		st := e.Status()
		if st.State == StateLive {
			return true, ""
		}
		if message == "" && st.Message != "" {
			message = st.Message
		}
	}
	return false, message
}

// ActiveSlots returns the ids of all slots currently Live.
func (m *Manager) ActiveSlots() []int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []int
	for id := MinSlotID; id <= MaxSlotID; id++ {
		if m.engines[id].getState() == StateLive {
			ids = append(ids, id)
		}
	}
	return ids
}

// DebugSlot returns the raw counters for one slot.
func (m *Manager) DebugSlot(id int) (SlotStatus, error) {
	m.mu.Lock()
	e, ok := m.engines[id]
	m.mu.Unlock()
	if !ok {
		return SlotStatus{}, ErrUnknownSlot
	}
	return e.Status(), nil
}

// SlotSDP returns SDP text for a Live slot's given flavor, or
// ErrUnavailable otherwise.
func (m *Manager) SlotSDP(id int, flavor string) (string, error) {
	m.mu.Lock()
	e, ok := m.engines[id]
	cfg := m.configs[id]
	m.mu.Unlock()
	if !ok {
		return "", ErrUnknownSlot
	}
	if e.getState() != StateLive {
		return "", ErrUnavailable
	}

	params := sap.SDPParams{
		SSRC:            cfg.SSRC,
		SourceIP:        m.localSourceIP,
		AES67StreamName: cfg.AES67StreamName,
		McastIP:         cfg.McastIP,
		McastPort:       cfg.McastPort,
		PTPDomain:       m.ptpDomain,
		PTPGMID:         m.ptpGMID,
	}

	switch flavor {
	case "aes67":
		return sap.BuildAES67SDP(params), nil
	case "monitor":
		return sap.BuildMonitorSDP(params), nil
	default:
		return "", fmt.Errorf("unknown flavor %q", flavor)
	}
}

// LiveSlots implements sap.Provider: a snapshot of every Live slot's
// announcement material, copied out under the manager mutex.
func (m *Manager) LiveSlots() []sap.SlotSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []sap.SlotSnapshot
	for id := MinSlotID; id <= MaxSlotID; id++ {
		if m.engines[id].getState() != StateLive {
			continue
		}
		cfg := m.configs[id]
		out = append(out, sap.SlotSnapshot{SDPParams: sap.SDPParams{
			SSRC:            cfg.SSRC,
			SourceIP:        m.localSourceIP,
			AES67StreamName: cfg.AES67StreamName,
			McastIP:         cfg.McastIP,
			McastPort:       cfg.McastPort,
			PTPDomain:       m.ptpDomain,
			PTPGMID:         m.ptpGMID,
		}})
	}
	return out
}
