// Package models provides data model definitions for the fieldsync agent.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// UUID is a wrapper around string for UUID v4 type safety.
type UUID string

// Value implements driver.Valuer for UUID.
func (u UUID) Value() (driver.Value, error) {
	return string(u), nil
}

// Scan implements sql.Scanner for UUID.
func (u *UUID) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*u = ""
	case string:
		*u = UUID(v)
	case []byte:
		*u = UUID(v)
	default:
		return fmt.Errorf("cannot scan %T into UUID", value)
	}
	return nil
}

// String returns the string representation of the UUID.
func (u UUID) String() string {
	return string(u)
}

// ItemType classifies what kind of capture a queue item carries.
type ItemType string

const (
	ItemTypeForm       ItemType = "form"
	ItemTypePhoto      ItemType = "photo"
	ItemTypeSignature  ItemType = "signature"
	ItemTypeAPICall    ItemType = "api-call"
	ItemTypeInspection ItemType = "vehicle-inspection"
)

// IsValid reports whether t is one of the known item types.
func (t ItemType) IsValid() bool {
	switch t {
	case ItemTypeForm, ItemTypePhoto, ItemTypeSignature, ItemTypeAPICall, ItemTypeInspection:
		return true
	}
	return false
}

// QueueItem is the generic envelope for a unit of offline-captured work
// awaiting upload. The payload is opaque to the queue; it is interpreted
// only when the item is replayed against the back-office API.
//
// An item is immutable once created except for its Synced flag and the
// retry bookkeeping fields, which are touched only by the sync engine.
type QueueItem struct {
	ID            UUID            `db:"id" json:"id"`
	Type          ItemType        `db:"item_type" json:"type"`
	JobID         string          `db:"job_id" json:"job_id,omitempty"`
	Payload       json.RawMessage `db:"payload" json:"payload"`
	Thumbnail     []byte          `db:"thumbnail" json:"-"`
	Synced        bool            `db:"synced" json:"synced"`
	Attempts      int             `db:"attempts" json:"attempts"`
	LastError     string          `db:"last_error" json:"last_error,omitempty"`
	LastAttemptAt int64           `db:"last_attempt_at" json:"last_attempt_at,omitempty"`
	CreatedAt     int64           `db:"created_at" json:"created_at"`
}

// TableName returns the table name for QueueItem.
func (QueueItem) TableName() string {
	return "queue_items"
}

// CreatedAtTime returns the CreatedAt as time.Time.
func (q *QueueItem) CreatedAtTime() time.Time {
	return time.Unix(q.CreatedAt, 0)
}

// CallDescriptor is the payload shape for api-call items: a generic request
// that the sync engine replays verbatim against the back-office API.
type CallDescriptor struct {
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Body    json.RawMessage   `json:"body,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// PhotoPayload is the payload shape for photo items. The image bytes are
// stored base64-encoded inside the JSON payload so the envelope stays a
// single opaque column.
type PhotoPayload struct {
	JobID    string `json:"job_id"`
	Category string `json:"category"` // collection, delivery, damage
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
	Data     []byte `json:"data"` // base64 via encoding/json
}

// SignaturePayload is the payload shape for signature items.
type SignaturePayload struct {
	JobID    string          `json:"job_id"`
	Category string          `json:"category"` // collection, delivery
	SignedBy string          `json:"signed_by"`
	Points   json.RawMessage `json:"points"` // stroke point list, pass-through
	Image    []byte          `json:"image,omitempty"`
}
