package api

import (
	"database/sql"
	stderrors "errors"
	"net/url"

	"github.com/fleetmove/fieldsync/internal/crypto"
	"github.com/fleetmove/fieldsync/internal/db"
	"github.com/fleetmove/fieldsync/internal/errors"
	"github.com/fleetmove/fieldsync/internal/models"
)

// CredentialStore keeps the back-office endpoint and bearer token in the
// local store, token encrypted with a device-derived key. It implements
// CredentialSource for the client.
type CredentialStore struct {
	repo *db.Repository
	key  string
}

// NewCredentialStore creates a CredentialStore keyed to this device.
func NewCredentialStore(repo *db.Repository, deviceID string) *CredentialStore {
	return &CredentialStore{
		repo: repo,
		key:  crypto.DeriveDeviceKey(deviceID),
	}
}

// Credentials returns the decrypted credentials, or SYNC_NOT_CONFIGURED
// when none are stored or syncing is disabled.
func (s *CredentialStore) Credentials() (Credentials, error) {
	cred, err := s.repo.GetRemoteCredential()
	if stderrors.Is(err, sql.ErrNoRows) {
		return Credentials{}, errors.New(errors.ErrSyncNotConfigured, "no credentials stored")
	}
	if err != nil {
		return Credentials{}, errors.Wrap(errors.ErrDatabase, "failed to load credentials", err)
	}
	if !cred.IsEnabled {
		return Credentials{}, errors.New(errors.ErrSyncNotConfigured, "syncing is disabled")
	}

	token, err := crypto.DecryptString(cred.TokenEncrypted, s.key)
	if err != nil {
		return Credentials{}, errors.Wrap(errors.ErrCryptoFailed, "failed to decrypt token", err)
	}

	return Credentials{BaseURL: cred.BaseURL, Token: token, DriverID: cred.DriverID}, nil
}

// Save validates and stores new credentials, replacing any previous ones.
func (s *CredentialStore) Save(baseURL, driverID, token string, enabled bool) error {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New(errors.ErrCredentialInvalid, "base URL must be absolute")
	}
	if token == "" {
		return errors.New(errors.ErrCredentialInvalid, "token is required")
	}

	encrypted, err := crypto.EncryptString(token, s.key)
	if err != nil {
		return errors.Wrap(errors.ErrCryptoFailed, "failed to encrypt token", err)
	}

	cred := &models.RemoteCredential{
		BaseURL:        baseURL,
		DriverID:       driverID,
		TokenEncrypted: encrypted,
		IsEnabled:      enabled,
	}
	if err := s.repo.UpsertRemoteCredential(cred); err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to store credentials", err)
	}
	return nil
}

// Describe returns the stored credential row with the token redacted by
// its json tag, or nil when none is configured.
func (s *CredentialStore) Describe() (*models.RemoteCredential, error) {
	cred, err := s.repo.GetRemoteCredential()
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to load credentials", err)
	}
	return cred, nil
}
