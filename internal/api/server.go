// Package api is the HTTP control surface consumed by the bridge's web UI:
// a thin layer translating JSON requests into Slot Manager operations. The
// real-time audio path in internal/slot never depends on this package.
package api

import (
	"net/http"
	"strconv"

	"github.com/ndibridge/ndibridge/internal/api/middleware"
	"github.com/ndibridge/ndibridge/internal/slot"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Manager is the subset of *slot.Manager the control surface calls into.
type Manager interface {
	ListConfigs() []slot.SlotConfig
	GetConfig(id int) (slot.SlotConfig, error)
	SetConfig(id int, cfg slot.SlotConfig) error
	StartAll() (bool, string)
	StopAll() (bool, string)
	Status() (bool, string)
	ActiveSlots() []int
	SlotSDP(id int, flavor string) (string, error)
	DebugSlot(id int) (slot.SlotStatus, error)
}

// Server holds HTTP handler dependencies and the chi router.
type Server struct {
	router  *chi.Mux
	manager Manager
	sources SourceLister
	origins []string
}

// NewServer builds the control surface with all routes mounted.
func NewServer(manager Manager, sources SourceLister, corsOrigins []string) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		manager: manager,
		sources: sources,
		origins: corsOrigins,
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.CORS(s.origins))
	r.Use(middleware.StructuredLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/sources", s.handleListSources)
		r.Post("/sources/refresh", s.handleRefreshSources)

		r.Get("/slots", s.handleListSlots)
		r.Route("/slots/{id}", func(r chi.Router) {
			r.Put("/", s.handleSetSlot)
			r.Get("/sdp", s.handleSlotSDP)
			r.Get("/debug", s.handleSlotDebug)
		})
		r.Get("/slots/active", s.handleActiveSlots)

		r.Post("/start", s.handleStart)
		r.Post("/stop", s.handleStop)
		r.Get("/status", s.handleStatus)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	names, err := s.sources.ListSources(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing sources failed")
		return
	}
	writeJSON(w, http.StatusOK, sourceList(names))
}

func (s *Server) handleRefreshSources(w http.ResponseWriter, r *http.Request) {
	names, err := s.sources.RefreshSources(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "refreshing sources failed")
		return
	}
	writeJSON(w, http.StatusOK, sourceList(names))
}

func sourceList(names []string) []map[string]string {
	out := make([]map[string]string, 0, len(names))
	for _, n := range names {
		out = append(out, map[string]string{"name": n})
	}
	return out
}

func (s *Server) handleListSlots(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.ListConfigs())
}

// slotConfigRequest is the wire shape for PUT /slots/{id}; ssrc is
// deliberately absent, since the Slot Manager assigns and retains it.
type slotConfigRequest struct {
	NDISourceName   string `json:"ndi_source_name"`
	AES67StreamName string `json:"aes67_stream_name"`
	McastIP         string `json:"mcast_ip"`
	McastPort       int    `json:"mcast_port"`
}

func (s *Server) handleSetSlot(w http.ResponseWriter, r *http.Request) {
	id, ok := parseSlotID(w, r)
	if !ok {
		return
	}

	var req slotConfigRequest
	if msg := readJSON(r, &req); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	cfg := slot.SlotConfig{
		SlotID:          id,
		NDISourceName:   req.NDISourceName,
		AES67StreamName: req.AES67StreamName,
		McastIP:         req.McastIP,
		McastPort:       req.McastPort,
	}

	if err := s.manager.SetConfig(id, cfg); err != nil {
		writeError(w, statusForConfigError(err), err.Error())
		return
	}

	updated, _ := s.manager.GetConfig(id)
	writeJSON(w, http.StatusOK, updated)
}

func statusForConfigError(err error) int {
	switch err {
	case slot.ErrUnknownSlot:
		return http.StatusNotFound
	case slot.ErrLocked, slot.ErrBadAddress, slot.ErrBadPort:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleSlotSDP(w http.ResponseWriter, r *http.Request) {
	id, ok := parseSlotID(w, r)
	if !ok {
		return
	}
	flavor := r.URL.Query().Get("flavor")
	if flavor == "" {
		flavor = "aes67"
	}

	sdp, err := s.manager.SlotSDP(id, flavor)
	if err != nil {
		if err == slot.ErrUnknownSlot {
			writeError(w, http.StatusNotFound, "unknown slot")
			return
		}
		writeError(w, http.StatusNotFound, "not available")
		return
	}

	w.Header().Set("Content-Type", "application/sdp")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(sdp)) //nolint:errcheck
}

func (s *Server) handleSlotDebug(w http.ResponseWriter, r *http.Request) {
	id, ok := parseSlotID(w, r)
	if !ok {
		return
	}
	status, err := s.manager.DebugSlot(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown slot")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleActiveSlots(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.ActiveSlots())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	running, message := s.manager.StartAll()
	writeJSON(w, http.StatusOK, runStatus{Running: running, Message: message})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	running, message := s.manager.StopAll()
	writeJSON(w, http.StatusOK, runStatus{Running: running, Message: message})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	running, message := s.manager.Status()
	writeJSON(w, http.StatusOK, runStatus{Running: running, Message: message})
}

type runStatus struct {
	Running bool   `json:"running"`
	Message string `json:"message"`
}

func parseSlotID(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid slot id")
		return 0, false
	}
	return id, true
}
