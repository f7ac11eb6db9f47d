package handlers

import (
	"net/http"

	"github.com/fleetmove/fieldsync/internal/api"
)

// CredentialHandler manages the stored back-office credential.
type CredentialHandler struct {
	creds *api.CredentialStore
}

// NewCredentialHandler creates a CredentialHandler.
func NewCredentialHandler(creds *api.CredentialStore) *CredentialHandler {
	return &CredentialHandler{creds: creds}
}

// Get handles GET /api/credentials. The token is redacted; the UI only
// needs to know whether syncing is configured and where it points.
func (h *CredentialHandler) Get(w http.ResponseWriter, r *http.Request) {
	cred, err := h.creds.Describe()
	if err != nil {
		writeError(w, err)
		return
	}
	if cred == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"configured": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"configured": true,
		"credential": cred,
	})
}

// putCredentialRequest carries new back-office credentials.
type putCredentialRequest struct {
	BaseURL  string `json:"base_url"`
	DriverID string `json:"driver_id"`
	Token    string `json:"token"`
	Enabled  *bool  `json:"enabled"`
}

// Put handles PUT /api/credentials.
func (h *CredentialHandler) Put(w http.ResponseWriter, r *http.Request) {
	var req putCredentialRequest
	if err := decodeBody(r, &req, 1<<16); err != nil {
		writeError(w, err)
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	if err := h.creds.Save(req.BaseURL, req.DriverID, req.Token, enabled); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"configured": true})
}
