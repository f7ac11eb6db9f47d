// Package queue provides the durable local queue of offline-captured work.
// Items live in the agent's sqlite store until the back office confirms
// receipt, so captures survive crashes and restarts.
package queue

import (
	"database/sql"
	stderrors "errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fleetmove/fieldsync/internal/db"
	"github.com/fleetmove/fieldsync/internal/errors"
	"github.com/fleetmove/fieldsync/internal/logging"
	"github.com/fleetmove/fieldsync/internal/models"
)

// Store is the durable holding area for not-yet-confirmed work. All
// operations are local persistence only; no network calls originate here.
type Store struct {
	repo *db.Repository
	log  *logrus.Entry
}

// NewStore creates a Store over the given repository.
func NewStore(repo *db.Repository) *Store {
	return &Store{
		repo: repo,
		log:  logging.WithComponent("queue"),
	}
}

// Counts is the pending-work breakdown shown as UI badges.
type Counts struct {
	Total       int                     `json:"total"`
	ByType      map[models.ItemType]int `json:"by_type"`
	Submissions int                     `json:"submissions"`
}

// Enqueue assigns an id and timestamp if absent and persists the item.
// A persistence failure is surfaced to the caller so the originating
// action can retry or warn the user; the capture is never dropped
// silently.
func (s *Store) Enqueue(item *models.QueueItem) (*models.QueueItem, error) {
	if !item.Type.IsValid() {
		return nil, errors.New(errors.ErrQueueItemInvalid, "unknown item type "+string(item.Type))
	}
	if len(item.Payload) == 0 {
		return nil, errors.New(errors.ErrQueueItemInvalid, "empty payload")
	}

	if err := s.repo.CreateQueueItem(item); err != nil {
		code := errors.ErrEnqueueFailed
		if isStorageFull(err) {
			code = errors.ErrStorageFull
		}
		s.log.WithError(err).WithField("type", item.Type).Error("enqueue failed")
		return nil, errors.Wrap(code, "failed to persist queue item", err)
	}

	s.log.WithFields(logrus.Fields{
		"id":     item.ID,
		"type":   item.Type,
		"job_id": item.JobID,
	}).Info("enqueued")

	return item, nil
}

// List returns items matching the filter in insertion order.
func (s *Store) List(filter db.QueueFilter) ([]*models.QueueItem, error) {
	items, err := s.repo.ListQueueItems(filter)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to list queue", err)
	}
	return items, nil
}

// Get returns a single item by id.
func (s *Store) Get(id string) (*models.QueueItem, error) {
	item, err := s.repo.GetQueueItem(id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.New(errors.ErrQueueItemNotFound, "no queue item "+id)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to load queue item", err)
	}
	return item, nil
}

// Remove deletes a confirmed item.
func (s *Store) Remove(id string) error {
	err := s.repo.DeleteQueueItem(id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.New(errors.ErrQueueItemNotFound, "no queue item "+id)
	}
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to remove queue item", err)
	}
	return nil
}

// RecordFailure updates retry bookkeeping for an item whose upload attempt
// failed. The item itself stays queued for the next pass.
func (s *Store) RecordFailure(id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if err := s.repo.RecordAttempt(id, msg, time.Now().Unix()); err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to record attempt", err)
	}
	return nil
}

// Counts returns pending counts broken down by category.
func (s *Store) Counts() (Counts, error) {
	byType, err := s.repo.CountQueueItems()
	if err != nil {
		return Counts{}, errors.Wrap(errors.ErrDatabase, "failed to count queue", err)
	}

	total := 0
	for _, n := range byType {
		total += n
	}

	subs, err := s.repo.ListJobSubmissions(true)
	if err != nil {
		return Counts{}, errors.Wrap(errors.ErrDatabase, "failed to count submissions", err)
	}

	return Counts{Total: total, ByType: byType, Submissions: len(subs)}, nil
}

// CountForJob returns the number of pending items for one job.
func (s *Store) CountForJob(jobID string) (int, error) {
	n, err := s.repo.CountQueueItemsForJob(jobID)
	if err != nil {
		return 0, errors.Wrap(errors.ErrDatabase, "failed to count items for job", err)
	}
	return n, nil
}

// RecordSubmission tracks a whole-job offline creation for the dashboard.
// The job's actual data travels as ordinary queue items.
func (s *Store) RecordSubmission(jobID string, kind models.SubmissionKind) (*models.JobSubmission, error) {
	if jobID == "" {
		return nil, errors.New(errors.ErrValidation, "job id is required")
	}
	if !kind.IsValid() {
		return nil, errors.New(errors.ErrValidation, "unknown submission kind "+string(kind))
	}

	sub := &models.JobSubmission{JobID: jobID, Kind: kind}
	if err := s.repo.CreateJobSubmission(sub); err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to record submission", err)
	}
	return sub, nil
}

// Submissions lists tracked job submissions.
func (s *Store) Submissions(unsyncedOnly bool) ([]*models.JobSubmission, error) {
	subs, err := s.repo.ListJobSubmissions(unsyncedOnly)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to list submissions", err)
	}
	return subs, nil
}

// SettleSubmissions marks submissions synced for jobs that had items
// delivered this pass and have nothing left pending. Called by the sync
// engine after a pass. A submission is only ever confirmed by an actual
// delivery; a job with no queue items at all stays pending.
func (s *Store) SettleSubmissions(deliveredJobs []string) (int, error) {
	n, err := s.repo.MarkDrainedSubmissionsSynced(deliveredJobs)
	if err != nil {
		return 0, errors.Wrap(errors.ErrDatabase, "failed to settle submissions", err)
	}
	return n, nil
}

// isStorageFull detects the sqlite disk-full condition so callers can
// distinguish "device out of space" from other persistence errors.
func isStorageFull(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database or disk is full") || strings.Contains(msg, "disk i/o error")
}
