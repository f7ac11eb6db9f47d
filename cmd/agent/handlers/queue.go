package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fleetmove/fieldsync/internal/db"
	"github.com/fleetmove/fieldsync/internal/errors"
	"github.com/fleetmove/fieldsync/internal/models"
	"github.com/fleetmove/fieldsync/internal/queue"
)

func errInvalidType(t string) error {
	return errors.New(errors.ErrValidation, "unknown item type "+t)
}

// QueueHandler exposes queue reads and item removal to the driver UI.
type QueueHandler struct {
	store *queue.Store
}

// NewQueueHandler creates a QueueHandler.
func NewQueueHandler(store *queue.Store) *QueueHandler {
	return &QueueHandler{store: store}
}

// queueItemView is the listing shape; payloads stay out of listings so a
// queue full of photos doesn't flood the UI.
type queueItemView struct {
	ID            models.UUID     `json:"id"`
	Type          models.ItemType `json:"type"`
	JobID         string          `json:"job_id,omitempty"`
	Attempts      int             `json:"attempts"`
	LastError     string          `json:"last_error,omitempty"`
	LastAttemptAt int64           `json:"last_attempt_at,omitempty"`
	CreatedAt     int64           `json:"created_at"`
	HasThumbnail  bool            `json:"has_thumbnail"`
}

// List handles GET /api/queue?type=&job_id=.
func (h *QueueHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := db.QueueFilter{
		Type:  models.ItemType(r.URL.Query().Get("type")),
		JobID: r.URL.Query().Get("job_id"),
	}
	if filter.Type != "" && !filter.Type.IsValid() {
		writeError(w, errInvalidType(string(filter.Type)))
		return
	}

	items, err := h.store.List(filter)
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]queueItemView, 0, len(items))
	for _, item := range items {
		views = append(views, queueItemView{
			ID:            item.ID,
			Type:          item.Type,
			JobID:         item.JobID,
			Attempts:      item.Attempts,
			LastError:     item.LastError,
			LastAttemptAt: item.LastAttemptAt,
			CreatedAt:     item.CreatedAt,
			HasThumbnail:  len(item.Thumbnail) > 0,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": views})
}

// Counts handles GET /api/queue/counts, the UI badge poll.
func (h *QueueHandler) Counts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.Counts()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// Remove handles DELETE /api/queue/{id}: the user discarding a capture.
func (h *QueueHandler) Remove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.Remove(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// Thumbnail handles GET /api/queue/{id}/thumbnail.
func (h *QueueHandler) Thumbnail(w http.ResponseWriter, r *http.Request) {
	item, err := h.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if len(item.Thumbnail) == 0 {
		http.Error(w, "no thumbnail", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(item.Thumbnail)
}

// Submissions handles GET /api/jobs/submissions?pending=true.
func (h *QueueHandler) Submissions(w http.ResponseWriter, r *http.Request) {
	pendingOnly := r.URL.Query().Get("pending") == "true"
	subs, err := h.store.Submissions(pendingOnly)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"submissions": subs})
}
