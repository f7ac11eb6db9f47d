// Package api is the client for the logistics back-office REST API. The
// sync engine hands it queue items to replay; everything else about the
// remote surface (schema, persistence, idempotent upserts) belongs to the
// back office.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fleetmove/fieldsync/internal/errors"
	"github.com/fleetmove/fieldsync/internal/logging"
	"github.com/fleetmove/fieldsync/internal/models"
)

// Credentials identify the back office and the driver session.
type Credentials struct {
	BaseURL  string
	Token    string
	DriverID string
}

// CredentialSource supplies the current credentials. Resolved per request
// so a credential update applies without restarting the agent.
type CredentialSource interface {
	Credentials() (Credentials, error)
}

// RemoteError is a terminal non-2xx outcome from the back office.
type RemoteError struct {
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote returned %d: %s", e.StatusCode, e.Body)
}

// Client replays queue items against the back-office API.
type Client struct {
	http  *http.Client
	creds CredentialSource
	log   *logrus.Entry
}

// NewClient creates a Client. A non-positive timeout selects 30s.
func NewClient(creds CredentialSource, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		http:  &http.Client{Timeout: timeout},
		creds: creds,
		log:   logging.WithComponent("api"),
	}
}

// Endpoints per item type. The back office upserts by natural key
// (job id + category), so replaying the same item twice is harmless.
const (
	pathForms       = "/api/v1/forms"
	pathPhotos      = "/api/v1/photos"
	pathSignatures  = "/api/v1/signatures"
	pathInspections = "/api/v1/inspections"
)

// Submit replays one queue item and waits for a terminal HTTP outcome.
// A nil return means the back office confirmed receipt (2xx). Non-2xx
// responses come back as *RemoteError wrapped in REMOTE_REJECTED;
// transport failures as NETWORK_UNREACHABLE. Both are retryable from the
// queue's point of view.
func (c *Client) Submit(ctx context.Context, item *models.QueueItem) error {
	creds, err := c.creds.Credentials()
	if err != nil {
		return errors.Wrap(errors.ErrSyncNotConfigured, "no back-office credentials", err)
	}

	var req *http.Request
	switch item.Type {
	case models.ItemTypePhoto:
		req, err = c.photoRequest(ctx, creds, item)
	case models.ItemTypeAPICall:
		req, err = c.callRequest(ctx, creds, item)
	case models.ItemTypeForm:
		req, err = c.jsonRequest(ctx, creds, pathForms, item)
	case models.ItemTypeSignature:
		req, err = c.jsonRequest(ctx, creds, pathSignatures, item)
	case models.ItemTypeInspection:
		req, err = c.jsonRequest(ctx, creds, pathInspections, item)
	default:
		return errors.New(errors.ErrQueueItemInvalid, "unknown item type "+string(item.Type))
	}
	if err != nil {
		return err
	}

	req.Header.Set("Authorization", "Bearer "+creds.Token)
	// The item id doubles as an idempotency key for the upsert.
	req.Header.Set("Idempotency-Key", item.ID.String())
	if creds.DriverID != "" {
		req.Header.Set("X-Driver-ID", creds.DriverID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(errors.ErrNetworkUnreachable, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.log.WithFields(logrus.Fields{"id": item.ID, "status": resp.StatusCode}).Debug("item accepted")
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return errors.Wrap(errors.ErrRemoteRejected, "back office rejected item",
		&RemoteError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))})
}

// jsonRequest posts the item payload as-is to a fixed endpoint.
func (c *Client) jsonRequest(ctx context.Context, creds Credentials, path string, item *models.QueueItem) (*http.Request, error) {
	target, err := joinURL(creds.BaseURL, path)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(item.Payload))
	if err != nil {
		return nil, errors.Wrap(errors.ErrInternal, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// photoRequest posts the captured image as multipart form data.
func (c *Client) photoRequest(ctx context.Context, creds Credentials, item *models.QueueItem) (*http.Request, error) {
	var payload models.PhotoPayload
	if err := json.Unmarshal(item.Payload, &payload); err != nil {
		return nil, errors.Wrap(errors.ErrQueueItemInvalid, "bad photo payload", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	_ = writer.WriteField("job_id", payload.JobID)
	_ = writer.WriteField("category", payload.Category)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, sanitizeFileName(payload.FileName)))
	if payload.MimeType != "" {
		header.Set("Content-Type", payload.MimeType)
	}
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInternal, "failed to build multipart body", err)
	}
	if _, err := part.Write(payload.Data); err != nil {
		return nil, errors.Wrap(errors.ErrInternal, "failed to write image part", err)
	}
	if err := writer.Close(); err != nil {
		return nil, errors.Wrap(errors.ErrInternal, "failed to finish multipart body", err)
	}

	target, err := joinURL(creds.BaseURL, pathPhotos)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, &body)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInternal, "failed to build request", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req, nil
}

// callRequest replays a generic request descriptor verbatim.
func (c *Client) callRequest(ctx context.Context, creds Credentials, item *models.QueueItem) (*http.Request, error) {
	var desc models.CallDescriptor
	if err := json.Unmarshal(item.Payload, &desc); err != nil {
		return nil, errors.Wrap(errors.ErrQueueItemInvalid, "bad call descriptor", err)
	}
	if desc.Method == "" || desc.Path == "" {
		return nil, errors.New(errors.ErrQueueItemInvalid, "call descriptor needs method and path")
	}

	target, err := joinURL(creds.BaseURL, desc.Path)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if len(desc.Body) > 0 {
		body = bytes.NewReader(desc.Body)
	}
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(desc.Method), target, body)
	if err != nil {
		return nil, errors.Wrap(errors.ErrQueueItemInvalid, "bad call descriptor", err)
	}
	if len(desc.Body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range desc.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

func joinURL(base, path string) (string, error) {
	if base == "" {
		return "", errors.New(errors.ErrSyncNotConfigured, "back-office base URL is empty")
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", errors.Wrap(errors.ErrCredentialInvalid, "bad base URL", err)
	}
	return strings.TrimRight(u.String(), "/") + "/" + strings.TrimLeft(path, "/"), nil
}

func sanitizeFileName(name string) string {
	name = strings.ReplaceAll(name, `"`, "")
	name = strings.ReplaceAll(name, "\\", "")
	if name == "" {
		name = "photo.jpg"
	}
	return name
}
