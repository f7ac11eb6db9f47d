// Package db provides CRUD repository operations for fieldsync data models.
package db

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fleetmove/fieldsync/internal/models"
	"github.com/fleetmove/fieldsync/internal/uuid"
)

// Repository provides CRUD operations for all models.
// Frequently used queries go through a prepared statement cache to avoid
// repeated SQL parsing on the device.
type Repository struct {
	db *sql.DB

	stmtCache sync.Map // map[string]*sql.Stmt
}

// NewRepository creates a new Repository instance.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// PrepareStmt gets or creates a prepared statement from cache.
// Key is the query string, value is the prepared statement.
func (r *Repository) PrepareStmt(query string) (*sql.Stmt, error) {
	if stmt, ok := r.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	stmt, err := r.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	actual, loaded := r.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		// Another goroutine already prepared this, close our duplicate
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}

	return stmt, nil
}

// Close closes all cached prepared statements.
// Should be called when the Repository is no longer needed.
func (r *Repository) Close() error {
	var firstErr error
	r.stmtCache.Range(func(key, value interface{}) bool {
		stmt := value.(*sql.Stmt)
		if err := stmt.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return firstErr
}

// =====================================================
// QueueItem Operations
// =====================================================

// QueueFilter narrows queue listings. Zero values mean "no constraint".
type QueueFilter struct {
	Type  models.ItemType
	JobID string
}

const queueItemColumns = `id, item_type, job_id, payload, thumbnail, synced, attempts, last_error, last_attempt_at, created_at`

// CreateQueueItem persists a new queue item. ID and CreatedAt are assigned
// when absent.
func (r *Repository) CreateQueueItem(item *models.QueueItem) error {
	if item.ID == "" {
		item.ID = models.UUID(uuid.New())
	}
	if item.CreatedAt == 0 {
		item.CreatedAt = time.Now().Unix()
	}

	stmt, err := r.PrepareStmt(`INSERT INTO queue_items (` + queueItemColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}

	_, err = stmt.Exec(item.ID, item.Type, item.JobID, []byte(item.Payload), item.Thumbnail,
		item.Synced, item.Attempts, item.LastError, item.LastAttemptAt, item.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert queue item: %w", err)
	}
	return nil
}

// GetQueueItem returns a single queue item by id.
func (r *Repository) GetQueueItem(id string) (*models.QueueItem, error) {
	stmt, err := r.PrepareStmt(`SELECT ` + queueItemColumns + ` FROM queue_items WHERE id = ?`)
	if err != nil {
		return nil, err
	}
	return scanQueueItem(stmt.QueryRow(id))
}

// ListQueueItems returns queue items matching the filter in insertion
// order (creation time, then rowid as tiebreak for same-second inserts).
func (r *Repository) ListQueueItems(filter QueueFilter) ([]*models.QueueItem, error) {
	query := `SELECT ` + queueItemColumns + ` FROM queue_items`
	var args []interface{}
	var where []string

	if filter.Type != "" {
		where = append(where, "item_type = ?")
		args = append(args, filter.Type)
	}
	if filter.JobID != "" {
		where = append(where, "job_id = ?")
		args = append(args, filter.JobID)
	}
	for i, cond := range where {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY created_at, rowid"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue items: %w", err)
	}
	defer rows.Close()

	var items []*models.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// DeleteQueueItem removes a queue item. Returns sql.ErrNoRows if absent.
func (r *Repository) DeleteQueueItem(id string) error {
	stmt, err := r.PrepareStmt(`DELETE FROM queue_items WHERE id = ?`)
	if err != nil {
		return err
	}
	res, err := stmt.Exec(id)
	if err != nil {
		return fmt.Errorf("failed to delete queue item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// RecordAttempt updates retry bookkeeping after a failed upload attempt.
func (r *Repository) RecordAttempt(id string, attemptErr string, at int64) error {
	stmt, err := r.PrepareStmt(`UPDATE queue_items
		SET attempts = attempts + 1, last_error = ?, last_attempt_at = ?
		WHERE id = ?`)
	if err != nil {
		return err
	}
	_, err = stmt.Exec(attemptErr, at, id)
	if err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}
	return nil
}

// CountQueueItems returns pending counts broken down by item type.
func (r *Repository) CountQueueItems() (map[models.ItemType]int, error) {
	rows, err := r.db.Query(`SELECT item_type, COUNT(*) FROM queue_items GROUP BY item_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to count queue items: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.ItemType]int)
	for rows.Next() {
		var itemType models.ItemType
		var count int
		if err := rows.Scan(&itemType, &count); err != nil {
			return nil, err
		}
		counts[itemType] = count
	}
	return counts, rows.Err()
}

// CountQueueItemsForJob returns the number of pending items for one job.
func (r *Repository) CountQueueItemsForJob(jobID string) (int, error) {
	stmt, err := r.PrepareStmt(`SELECT COUNT(*) FROM queue_items WHERE job_id = ?`)
	if err != nil {
		return 0, err
	}
	var count int
	if err := stmt.QueryRow(jobID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count items for job: %w", err)
	}
	return count, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanQueueItem(row rowScanner) (*models.QueueItem, error) {
	var item models.QueueItem
	var payload []byte
	err := row.Scan(&item.ID, &item.Type, &item.JobID, &payload, &item.Thumbnail,
		&item.Synced, &item.Attempts, &item.LastError, &item.LastAttemptAt, &item.CreatedAt)
	if err != nil {
		return nil, err
	}
	item.Payload = payload
	return &item, nil
}

// =====================================================
// JobSubmission Operations
// =====================================================

// CreateJobSubmission records a whole-job offline submission. Duplicate
// (job, kind) pairs are ignored so re-capturing a form is harmless.
func (r *Repository) CreateJobSubmission(sub *models.JobSubmission) error {
	if sub.ID == "" {
		sub.ID = models.UUID(uuid.New())
	}
	if sub.CreatedAt == 0 {
		sub.CreatedAt = time.Now().Unix()
	}

	stmt, err := r.PrepareStmt(`INSERT OR IGNORE INTO job_submissions (id, job_id, kind, synced, created_at)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	if _, err := stmt.Exec(sub.ID, sub.JobID, sub.Kind, sub.Synced, sub.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert job submission: %w", err)
	}
	return nil
}

// ListJobSubmissions returns submissions, optionally only unsynced ones,
// in insertion order.
func (r *Repository) ListJobSubmissions(unsyncedOnly bool) ([]*models.JobSubmission, error) {
	query := `SELECT id, job_id, kind, synced, created_at FROM job_submissions`
	if unsyncedOnly {
		query += ` WHERE synced = 0`
	}
	query += ` ORDER BY created_at, rowid`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list job submissions: %w", err)
	}
	defer rows.Close()

	var subs []*models.JobSubmission
	for rows.Next() {
		var sub models.JobSubmission
		if err := rows.Scan(&sub.ID, &sub.JobID, &sub.Kind, &sub.Synced, &sub.CreatedAt); err != nil {
			return nil, err
		}
		subs = append(subs, &sub)
	}
	return subs, rows.Err()
}

// MarkDrainedSubmissionsSynced flags submissions among the given jobs
// once no pending queue items remain for them. The job list is the set of
// jobs that actually had an item delivered; a submission whose job never
// delivered anything stays pending no matter how empty its queue is.
func (r *Repository) MarkDrainedSubmissionsSynced(jobIDs []string) (int, error) {
	if len(jobIDs) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(jobIDs)), ",")
	args := make([]interface{}, len(jobIDs))
	for i, id := range jobIDs {
		args[i] = id
	}

	res, err := r.db.Exec(`UPDATE job_submissions SET synced = 1
		WHERE synced = 0
		AND job_id IN (`+placeholders+`)
		AND job_id NOT IN (SELECT DISTINCT job_id FROM queue_items)`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to mark submissions synced: %w", err)
	}
	affected, err := res.RowsAffected()
	return int(affected), err
}

// =====================================================
// RemoteCredential Operations
// =====================================================

// GetRemoteCredential returns the stored back-office credential.
// Returns sql.ErrNoRows when none has been configured.
func (r *Repository) GetRemoteCredential() (*models.RemoteCredential, error) {
	var cred models.RemoteCredential
	err := r.db.QueryRow(`SELECT id, base_url, driver_id, token_encrypted, is_enabled, created_at, updated_at
		FROM remote_credentials LIMIT 1`).
		Scan(&cred.ID, &cred.BaseURL, &cred.DriverID, &cred.TokenEncrypted,
			&cred.IsEnabled, &cred.CreatedAt, &cred.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

// UpsertRemoteCredential stores the back-office credential, replacing any
// previous one. The agent only ever talks to a single back office.
func (r *Repository) UpsertRemoteCredential(cred *models.RemoteCredential) error {
	now := time.Now().Unix()
	if cred.ID == "" {
		cred.ID = models.UUID(uuid.New())
		cred.CreatedAt = now
	}
	cred.UpdatedAt = now

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM remote_credentials WHERE id != ?`, cred.ID); err != nil {
		return fmt.Errorf("failed to clear previous credential: %w", err)
	}
	_, err = tx.Exec(`INSERT INTO remote_credentials (id, base_url, driver_id, token_encrypted, is_enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			base_url = excluded.base_url,
			driver_id = excluded.driver_id,
			token_encrypted = excluded.token_encrypted,
			is_enabled = excluded.is_enabled,
			updated_at = excluded.updated_at`,
		cred.ID, cred.BaseURL, cred.DriverID, cred.TokenEncrypted, cred.IsEnabled, cred.CreatedAt, cred.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert credential: %w", err)
	}
	return tx.Commit()
}
