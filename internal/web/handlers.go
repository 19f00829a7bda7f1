package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/cjeanneret/lensvcm/internal/debug"
	"github.com/cjeanneret/lensvcm/internal/hw/vcm"
	"github.com/cjeanneret/lensvcm/internal/logic/dispatch"
	"github.com/cjeanneret/lensvcm/internal/logic/registry"
	"github.com/cjeanneret/lensvcm/internal/override"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 4096

// Actuators is the part of the registry the handlers need.
type Actuators interface {
	Entries() []*registry.Entry
	Lookup(sensorID, place int) (*registry.Entry, error)
}

// PositionRequest is the body of POST .../position.
type PositionRequest struct {
	Position *int32 `json:"position"`
}

// LandingResponse reports a soft landing. Outcome is "landed" or "failure".
type LandingResponse struct {
	Outcome       string `json:"outcome"`
	FinalPosition uint16 `json:"final_position"`
}

// StatusResponse is the body of GET .../status.
type StatusResponse struct {
	registry.Snapshot
	Status string `json:"status"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Actuators   Actuators
	Overrides   *override.Store
	staticFS    fs.FS
}

// NewHandlers creates handlers with the given dependencies.
func NewHandlers(broadcaster *StatusBroadcaster, acts Actuators, ov *override.Store, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Actuators:   acts,
		Overrides:   ov,
		staticFS:    staticFS,
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// statusCode maps actuator errors onto HTTP statuses.
func statusCode(err error) int {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, vcm.ErrOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, dispatch.ErrRejected):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) entry(w http.ResponseWriter, r *http.Request) (*registry.Entry, bool) {
	vars := mux.Vars(r)
	sensor, err := strconv.Atoi(vars["sensor"])
	if err != nil {
		http.Error(w, "invalid sensor id", http.StatusBadRequest)
		return nil, false
	}
	place, err := strconv.Atoi(vars["place"])
	if err != nil {
		http.Error(w, "invalid place", http.StatusBadRequest)
		return nil, false
	}
	e, err := h.Actuators.Lookup(sensor, place)
	if err != nil {
		http.Error(w, err.Error(), statusCode(err))
		return nil, false
	}
	return e, true
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleList handles GET /actuators.
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	entries := h.Actuators.Entries()
	out := make([]registry.Snapshot, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Snapshot())
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleStatus handles GET /actuators/{sensor}/{place}/status.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	e, ok := h.entry(w, r)
	if !ok {
		return
	}
	st, err := e.Status()
	if err != nil {
		http.Error(w, err.Error(), statusCode(err))
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Snapshot: e.Snapshot(), Status: st.String()})
}

// HandlePosition handles POST /actuators/{sensor}/{place}/position.
func (h *Handlers) HandlePosition(w http.ResponseWriter, r *http.Request) {
	e, ok := h.entry(w, r)
	if !ok {
		return
	}
	var req PositionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Position == nil {
		http.Error(w, "position is required", http.StatusBadRequest)
		return
	}
	if err := e.Move(*req.Position); err != nil {
		h.Broadcaster.Broadcast("error", fmt.Sprintf("%s: move failed: %v", e.Name, err))
		http.Error(w, err.Error(), statusCode(err))
		return
	}
	writeJSON(w, http.StatusOK, e.Snapshot())
}

// HandleInit handles POST /actuators/{sensor}/{place}/init.
func (h *Handlers) HandleInit(w http.ResponseWriter, r *http.Request) {
	e, ok := h.entry(w, r)
	if !ok {
		return
	}
	if err := e.Init(); err != nil {
		h.Broadcaster.Broadcast("error", fmt.Sprintf("%s: init failed: %v", e.Name, err))
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	h.Broadcaster.BroadcastMsg(fmt.Sprintf("%s: initialized", e.Name))
	writeJSON(w, http.StatusOK, e.Snapshot())
}

// HandleSoftLand handles POST /actuators/{sensor}/{place}/softland.
// A lens left off rest is a successful request with outcome "failure".
func (h *Handlers) HandleSoftLand(w http.ResponseWriter, r *http.Request) {
	e, ok := h.entry(w, r)
	if !ok {
		return
	}
	if !e.Dispatcher.SoftLandingEnabled() {
		http.Error(w, "soft landing command disabled", http.StatusBadRequest)
		return
	}

	out, err := e.SoftLand()
	var sf *dispatch.SoftFailure
	switch {
	case errors.As(err, &sf):
		h.Broadcaster.Broadcast("warn", fmt.Sprintf("%s: soft landing incomplete at 0x%X", e.Name, sf.FinalPosition))
		writeJSON(w, http.StatusOK, LandingResponse{Outcome: "failure", FinalPosition: sf.FinalPosition})
	case err != nil:
		h.Broadcaster.Broadcast("error", fmt.Sprintf("%s: soft landing failed: %v", e.Name, err))
		http.Error(w, err.Error(), statusCode(err))
	default:
		writeJSON(w, http.StatusOK, LandingResponse{Outcome: "landed", FinalPosition: out.FinalPosition})
	}
}

// HandleGetOverride handles GET /debug/override.
func (h *Handlers) HandleGetOverride(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Overrides.Settings())
}

// HandlePutOverride handles PUT /debug/override.
func (h *Handlers) HandlePutOverride(w http.ResponseWriter, r *http.Request) {
	var s override.Settings
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&s); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if s.FixedEnabled && s.FixedPosition > vcm.MaxPosition10Bit {
		http.Error(w, fmt.Sprintf("fixed_position must be <= %d", vcm.MaxPosition10Bit), http.StatusBadRequest)
		return
	}
	if err := h.Overrides.Set(s); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	debug.Info("Debug override updated: fixed=%v(%d), %d init steps", s.FixedEnabled, s.FixedPosition, len(s.InitSteps))
	writeJSON(w, http.StatusOK, h.Overrides.Settings())
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// Send initial comment to establish connection
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
