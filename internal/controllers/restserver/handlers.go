package restserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/chrissnell/remotescope/internal/types"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Handlers contains the HTTP handlers for the REST server
type Handlers struct {
	controller *Controller
	upgrader   websocket.Upgrader
}

// NewHandlers creates a new handlers instance
func NewHandlers(controller *Controller) *Handlers {
	return &Handlers{
		controller: controller,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Status is read-only telemetry, so cross-origin viewers are fine.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// pointingRequest is the JSON body for goto and sync requests.
type pointingRequest struct {
	Mount      string  `json:"mount,omitempty"`
	RAHours    float64 `json:"ra_hours"`
	DECDegrees float64 `json:"dec_degrees"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

// GetStatus returns the latest status snapshot for every mount.
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	c := h.controller

	c.latestMu.RLock()
	statuses := make([]types.MountStatus, 0, len(c.latest))
	for _, st := range c.latest {
		statuses = append(statuses, st)
	}
	c.latestMu.RUnlock()

	writeJSON(w, http.StatusOK, statuses)
}

// GetMountStatus returns the latest status for one mount.
func (h *Handlers) GetMountStatus(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["mount"]

	h.controller.latestMu.RLock()
	st, ok := h.controller.latest[name]
	h.controller.latestMu.RUnlock()

	if !ok {
		writeError(w, http.StatusNotFound, "no status for mount "+name)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handlers) decodePointing(w http.ResponseWriter, r *http.Request) (MountService, pointingRequest, bool) {
	var req pointingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return nil, req, false
	}

	if req.RAHours < 0 || req.RAHours >= 24 {
		writeError(w, http.StatusBadRequest, "ra_hours must be in [0,24)")
		return nil, req, false
	}
	if req.DECDegrees < -90 || req.DECDegrees > 90 {
		writeError(w, http.StatusBadRequest, "dec_degrees must be in [-90,90]")
		return nil, req, false
	}

	m, ok := h.controller.mountByName(req.Mount)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown mount "+req.Mount)
		return nil, req, false
	}
	return m, req, true
}

// PostGoto starts a slew to the requested coordinates.
func (h *Handlers) PostGoto(w http.ResponseWriter, r *http.Request) {
	m, req, ok := h.decodePointing(w, r)
	if !ok {
		return
	}

	if err := m.Goto(req.RAHours, req.DECDegrees); err != nil {
		h.controller.logger.Errorf("goto failed: %v", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"result": "slewing"})
}

// PostSync tells the mount its current position is the requested coordinate.
func (h *Handlers) PostSync(w http.ResponseWriter, r *http.Request) {
	m, req, ok := h.decodePointing(w, r)
	if !ok {
		return
	}

	if err := m.Sync(req.RAHours, req.DECDegrees); err != nil {
		h.controller.logger.Errorf("sync failed: %v", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "synced"})
}

// PostAbort stops any slew in progress.
func (h *Handlers) PostAbort(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mount string `json:"mount,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	m, ok := h.controller.mountByName(req.Mount)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown mount "+req.Mount)
		return
	}

	if err := m.Abort(); err != nil {
		h.controller.logger.Errorf("abort failed: %v", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "aborted"})
}

// GetSlews returns recent slew history, newest first.
func (h *Handlers) GetSlews(w http.ResponseWriter, r *http.Request) {
	if h.controller.history == nil {
		writeError(w, http.StatusNotFound, "slew history storage is not configured")
		return
	}

	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be an integer in [1,1000]")
			return
		}
		limit = n
	}

	recs, err := h.controller.history.Recent(limit)
	if err != nil {
		h.controller.logger.Errorf("slew history query failed: %v", err)
		writeError(w, http.StatusInternalServerError, "slew history query failed")
		return
	}
	if recs == nil {
		recs = []types.SlewRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// ServeStatusSocket upgrades to a websocket and streams status updates as
// JSON, one message per poll tick.
func (h *Handlers) ServeStatusSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.controller.logger.Errorf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sub := h.controller.subscribe()
	defer h.controller.unsubscribe(sub)

	// Send the current snapshot so clients render without waiting a tick.
	h.controller.latestMu.RLock()
	for _, st := range h.controller.latest {
		if err := conn.WriteJSON(st); err != nil {
			h.controller.latestMu.RUnlock()
			return
		}
	}
	h.controller.latestMu.RUnlock()

	for {
		select {
		case st := <-sub:
			if err := conn.WriteJSON(st); err != nil {
				return
			}
		case <-h.controller.ctx.Done():
			return
		case <-r.Context().Done():
			return
		}
	}
}
