package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/fleetmove/fieldsync/internal/errors"
	"github.com/fleetmove/fieldsync/internal/logging"
	"github.com/fleetmove/fieldsync/internal/media"
	"github.com/fleetmove/fieldsync/internal/models"
	"github.com/fleetmove/fieldsync/internal/queue"
)

// Payload size limits. Photos dominate; everything else is small JSON.
const (
	maxPhotoBody   = 20 << 20
	maxCaptureBody = 1 << 20
)

// CaptureHandler turns driver actions into queue items. Captures are
// enqueued even while online so nothing is lost if the upload fails.
type CaptureHandler struct {
	store *queue.Store
	thumb *media.Thumbnailer
}

// NewCaptureHandler creates a CaptureHandler.
func NewCaptureHandler(store *queue.Store, thumb *media.Thumbnailer) *CaptureHandler {
	return &CaptureHandler{store: store, thumb: thumb}
}

// itemSummary is the enqueue response; payloads are not echoed back.
type itemSummary struct {
	ID        models.UUID     `json:"id"`
	Type      models.ItemType `json:"type"`
	JobID     string          `json:"job_id,omitempty"`
	CreatedAt int64           `json:"created_at"`
}

func summarize(item *models.QueueItem) itemSummary {
	return itemSummary{ID: item.ID, Type: item.Type, JobID: item.JobID, CreatedAt: item.CreatedAt}
}

// formRequest is a collection/delivery inspection form capture.
type formRequest struct {
	JobID  string          `json:"job_id"`
	Kind   string          `json:"kind"` // collection, delivery
	Fields json.RawMessage `json:"fields"`
}

// Form handles POST /api/queue/forms.
func (h *CaptureHandler) Form(w http.ResponseWriter, r *http.Request) {
	var req formRequest
	if err := decodeBody(r, &req, maxCaptureBody); err != nil {
		writeError(w, err)
		return
	}
	if req.JobID == "" {
		writeError(w, errors.New(errors.ErrValidation, "job_id is required"))
		return
	}

	payload, _ := json.Marshal(req)
	item, err := h.store.Enqueue(&models.QueueItem{
		Type:    models.ItemTypeForm,
		JobID:   req.JobID,
		Payload: payload,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, summarize(item))
}

// Photo handles POST /api/queue/photos. A thumbnail is generated for the
// pending list; thumbnail failure is logged but never blocks the capture.
func (h *CaptureHandler) Photo(w http.ResponseWriter, r *http.Request) {
	var req models.PhotoPayload
	if err := decodeBody(r, &req, maxPhotoBody); err != nil {
		writeError(w, err)
		return
	}
	if req.JobID == "" {
		writeError(w, errors.New(errors.ErrValidation, "job_id is required"))
		return
	}
	if len(req.Data) == 0 {
		writeError(w, errors.New(errors.ErrValidation, "image data is required"))
		return
	}

	var thumbnail []byte
	if h.thumb != nil {
		t, err := h.thumb.Thumbnail(req.Data)
		if err != nil {
			logging.Warn("thumbnail generation failed", map[string]interface{}{
				"job_id": req.JobID, "error": err.Error(),
			})
		} else {
			thumbnail = t
		}
	}

	payload, _ := json.Marshal(req)
	item, err := h.store.Enqueue(&models.QueueItem{
		Type:      models.ItemTypePhoto,
		JobID:     req.JobID,
		Payload:   payload,
		Thumbnail: thumbnail,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, summarize(item))
}

// Signature handles POST /api/queue/signatures.
func (h *CaptureHandler) Signature(w http.ResponseWriter, r *http.Request) {
	var req models.SignaturePayload
	if err := decodeBody(r, &req, maxCaptureBody); err != nil {
		writeError(w, err)
		return
	}
	if req.JobID == "" {
		writeError(w, errors.New(errors.ErrValidation, "job_id is required"))
		return
	}

	payload, _ := json.Marshal(req)
	item, err := h.store.Enqueue(&models.QueueItem{
		Type:    models.ItemTypeSignature,
		JobID:   req.JobID,
		Payload: payload,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, summarize(item))
}

// inspectionRequest carries a vehicle inspection: damage markers plus the
// checklist. The body is passed through to the back office untouched.
type inspectionRequest struct {
	JobID string `json:"job_id"`
}

// Inspection handles POST /api/queue/inspections.
func (h *CaptureHandler) Inspection(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(r, maxCaptureBody)
	if err != nil {
		writeError(w, err)
		return
	}

	var req inspectionRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeError(w, errors.Wrap(errors.ErrInvalid, "invalid JSON body", err))
		return
	}
	if req.JobID == "" {
		writeError(w, errors.New(errors.ErrValidation, "job_id is required"))
		return
	}

	item, err := h.store.Enqueue(&models.QueueItem{
		Type:    models.ItemTypeInspection,
		JobID:   req.JobID,
		Payload: raw,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, summarize(item))
}

// callRequest is a generic API call to replay once online.
type callRequest struct {
	JobID string `json:"job_id,omitempty"`
	models.CallDescriptor
}

// Call handles POST /api/queue/calls.
func (h *CaptureHandler) Call(w http.ResponseWriter, r *http.Request) {
	var req callRequest
	if err := decodeBody(r, &req, maxCaptureBody); err != nil {
		writeError(w, err)
		return
	}
	if req.Method == "" || req.Path == "" {
		writeError(w, errors.New(errors.ErrValidation, "method and path are required"))
		return
	}

	payload, _ := json.Marshal(req.CallDescriptor)
	item, err := h.store.Enqueue(&models.QueueItem{
		Type:    models.ItemTypeAPICall,
		JobID:   req.JobID,
		Payload: payload,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, summarize(item))
}

// jobRequest creates a whole job offline: the job form travels as a queue
// item and the submission is tracked for the dashboard.
type jobRequest struct {
	JobID  string          `json:"job_id"`
	Kind   string          `json:"kind"` // collection, delivery
	Fields json.RawMessage `json:"fields"`
}

// SubmitJob handles POST /api/jobs.
func (h *CaptureHandler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	if err := decodeBody(r, &req, maxCaptureBody); err != nil {
		writeError(w, err)
		return
	}

	sub, err := h.store.RecordSubmission(req.JobID, models.SubmissionKind(req.Kind))
	if err != nil {
		writeError(w, err)
		return
	}

	payload, _ := json.Marshal(req)
	item, err := h.store.Enqueue(&models.QueueItem{
		Type:    models.ItemTypeForm,
		JobID:   req.JobID,
		Payload: payload,
	})
	if err != nil {
		// The submission row stays; the caller retries the capture.
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"submission": sub,
		"item":       summarize(item),
	})
}
