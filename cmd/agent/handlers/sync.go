package handlers

import (
	"net/http"

	"github.com/fleetmove/fieldsync/internal/connectivity"
	"github.com/fleetmove/fieldsync/internal/errors"
	"github.com/fleetmove/fieldsync/internal/queue"
	syncpkg "github.com/fleetmove/fieldsync/internal/sync"
	"github.com/fleetmove/fieldsync/internal/sync/notify"
	"github.com/fleetmove/fieldsync/internal/sync/scheduler"
)

// SyncHandler exposes sync status, the manual trigger and the
// connectivity relay.
type SyncHandler struct {
	engine   *syncpkg.Engine
	sched    *scheduler.Scheduler
	monitor  *connectivity.Monitor
	notifier *notify.Notifier
	store    *queue.Store
}

// NewSyncHandler creates a SyncHandler.
func NewSyncHandler(engine *syncpkg.Engine, sched *scheduler.Scheduler, monitor *connectivity.Monitor, notifier *notify.Notifier, store *queue.Store) *SyncHandler {
	return &SyncHandler{
		engine:   engine,
		sched:    sched,
		monitor:  monitor,
		notifier: notifier,
		store:    store,
	}
}

// SyncNow handles POST /api/sync/now, the user's "try again" action. The
// pass runs in the background; progress arrives over the websocket. If a
// pass is already running the request is absorbed.
func (h *SyncHandler) SyncNow(w http.ResponseWriter, r *http.Request) {
	h.sched.TriggerSync()
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"triggered": true,
		"running":   h.engine.Running(),
	})
}

// Status handles GET /api/sync/status.
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.Counts()
	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]interface{}{
		"status":  h.notifier.Current(),
		"online":  h.monitor.IsOnline(),
		"running": h.engine.Running(),
		"pending": counts,
	}
	if last := h.engine.LastPass(); last != nil {
		resp["last_pass"] = last
	}
	if t := h.engine.LastSync(); t != nil {
		resp["last_sync"] = t.Unix()
	}
	writeJSON(w, http.StatusOK, resp)
}

// connectivityRequest relays the platform's network signal.
type connectivityRequest struct {
	Online *bool `json:"online"`
}

// SetConnectivity handles POST /api/connectivity. The UI calls this from
// the platform's online/offline events; the monitor takes the signal as
// authoritative.
func (h *SyncHandler) SetConnectivity(w http.ResponseWriter, r *http.Request) {
	var req connectivityRequest
	if err := decodeBody(r, &req, 1024); err != nil {
		writeError(w, err)
		return
	}
	if req.Online == nil {
		writeError(w, errors.New(errors.ErrValidation, "online is required"))
		return
	}

	h.monitor.SetOnline(*req.Online)
	writeJSON(w, http.StatusOK, map[string]interface{}{"online": h.monitor.IsOnline()})
}

// GetConnectivity handles GET /api/connectivity.
func (h *SyncHandler) GetConnectivity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"online": h.monitor.IsOnline()})
}
