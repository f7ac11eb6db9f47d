// Package handlers provides the localhost REST surface the driver UI
// talks to: capture endpoints that feed the queue, queue/status reads,
// the connectivity relay and the manual sync trigger.
package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/fleetmove/fieldsync/internal/errors"
	"github.com/fleetmove/fieldsync/internal/logging"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode response", err)
	}
}

// errorBody is the JSON shape of all error responses.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

// writeError maps an application error to an HTTP response.
func writeError(w http.ResponseWriter, err error) {
	code := errors.CodeOf(err)
	writeJSON(w, httpStatusFor(code), errorBody{Error: errorDetail{
		Code:    code,
		Message: err.Error(),
	}})
}

func httpStatusFor(code errors.ErrorCode) int {
	switch code {
	case errors.ErrInvalid, errors.ErrValidation, errors.ErrQueueItemInvalid, errors.ErrCredentialInvalid:
		return http.StatusBadRequest
	case errors.ErrNotFound, errors.ErrQueueItemNotFound:
		return http.StatusNotFound
	case errors.ErrStorageFull:
		return http.StatusInsufficientStorage
	case errors.ErrSyncNotConfigured:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody decodes a JSON request body into v, limiting its size so a
// runaway capture cannot exhaust device memory.
func decodeBody(r *http.Request, v interface{}, maxBytes int64) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBytes))
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(errors.ErrInvalid, "invalid JSON body", err)
	}
	return nil
}

// readBody reads a bounded raw body for pass-through payloads.
func readBody(r *http.Request, maxBytes int64) ([]byte, error) {
	raw, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBytes))
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalid, "failed to read body", err)
	}
	return raw, nil
}
