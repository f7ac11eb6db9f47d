// Package models provides data model definitions for the fieldsync agent.
package models

import "time"

// RemoteCredential holds the back-office API endpoint and the driver's
// bearer token, encrypted at rest.
// TokenEncrypted is never exposed in JSON responses.
type RemoteCredential struct {
	ID             UUID   `db:"id" json:"id"`
	BaseURL        string `db:"base_url" json:"base_url"`
	DriverID       string `db:"driver_id" json:"driver_id"`
	TokenEncrypted string `db:"token_encrypted" json:"-"` // Never expose
	IsEnabled      bool   `db:"is_enabled" json:"is_enabled"`
	CreatedAt      int64  `db:"created_at" json:"created_at"`
	UpdatedAt      int64  `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for RemoteCredential.
func (RemoteCredential) TableName() string {
	return "remote_credentials"
}

// UpdatedAtTime returns the UpdatedAt as time.Time.
func (r *RemoteCredential) UpdatedAtTime() time.Time {
	return time.Unix(r.UpdatedAt, 0)
}
