// Package sync drains the local queue against the back-office API.
package sync

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fleetmove/fieldsync/internal/db"
	"github.com/fleetmove/fieldsync/internal/logging"
	"github.com/fleetmove/fieldsync/internal/models"
	"github.com/fleetmove/fieldsync/internal/queue"
	"github.com/fleetmove/fieldsync/internal/sync/notify"
)

// Submitter replays one queue item and waits for a terminal outcome.
// Satisfied by *api.Client.
type Submitter interface {
	Submit(ctx context.Context, item *models.QueueItem) error
}

// PassResult summarizes one full drain attempt over the queue snapshot.
type PassResult struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Attempted int           `json:"attempted"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Error     string        `json:"error,omitempty"`
}

// Engine performs best-effort, at-least-once delivery of queued items.
//
// Items are attempted sequentially in insertion order; one item's failure
// never aborts the pass. Only one pass runs at a time: a SyncAll call
// while a pass is active is silently ignored, since the next trigger will
// pick up whatever remains. Duplicate delivery after an interrupted pass
// is expected and absorbed by the back office's idempotent upserts.
type Engine struct {
	store    *queue.Store
	client   Submitter
	notifier *notify.Notifier
	log      *logrus.Entry

	running atomic.Bool

	mu       sync.Mutex
	lastPass *PassResult
	lastSync *time.Time
}

// NewEngine creates an Engine.
func NewEngine(store *queue.Store, client Submitter, notifier *notify.Notifier) *Engine {
	return &Engine{
		store:    store,
		client:   client,
		notifier: notifier,
		log:      logging.WithComponent("sync"),
	}
}

// LastPass returns the most recent pass result, or nil before the first.
func (e *Engine) LastPass() *PassResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastPass
}

// LastSync returns when the last fully successful pass finished.
func (e *Engine) LastSync() *time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSync
}

// Running reports whether a pass is currently active.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// SyncAll drains the current snapshot of the queue. Items enqueued while
// the pass runs wait for the next trigger, keeping each pass bounded.
//
// Returns nil when a pass was already running (the call is a no-op).
// Failures never propagate out as errors; they are translated into
// status events and retained queue items. The named return lets the
// panic-recovery path hand callers the aborted pass instead of nil.
func (e *Engine) SyncAll(ctx context.Context) (result *PassResult) {
	if !e.running.CompareAndSwap(false, true) {
		e.log.Debug("sync requested while pass in progress, ignoring")
		return nil
	}
	defer e.running.Store(false)

	result = &PassResult{StartedAt: time.Now()}

	defer func() {
		// A panic inside the pass is an overall failure, not a crash;
		// items already removed stay removed.
		if r := recover(); r != nil {
			result.Error = fmt.Sprintf("pass aborted: %v", r)
			e.log.WithField("panic", r).Error("sync pass aborted")
			e.finish(result)
		}
	}()

	items, err := e.store.List(db.QueueFilter{})
	if err != nil {
		result.Error = err.Error()
		e.log.WithError(err).Error("failed to snapshot queue")
		e.finish(result)
		return result
	}

	e.notifier.PublishStatus(notify.StateSyncing, 0)
	for _, jobID := range distinctJobs(items) {
		e.notifier.PublishUpload(jobID, notify.UploadPending)
	}

	delivered := make(map[string]struct{})

	for i, item := range items {
		if ctx.Err() != nil {
			result.Error = ctx.Err().Error()
			break
		}

		result.Attempted++
		e.notifier.PublishUpload(item.JobID, notify.UploadUploading)

		if err := e.client.Submit(ctx, item); err != nil {
			result.Failed++
			e.notifier.PublishUpload(item.JobID, notify.UploadFailed)
			if recordErr := e.store.RecordFailure(item.ID.String(), err); recordErr != nil {
				e.log.WithError(recordErr).WithField("id", item.ID).Warn("failed to record attempt")
			}
			e.log.WithError(err).WithFields(logrus.Fields{
				"id": item.ID, "type": item.Type, "job_id": item.JobID,
			}).Warn("item upload failed")
		} else {
			result.Succeeded++
			if item.JobID != "" {
				delivered[item.JobID] = struct{}{}
			}
			e.notifier.PublishUpload(item.JobID, notify.UploadSuccess)
			if removeErr := e.store.Remove(item.ID.String()); removeErr != nil {
				// The server has the item; a duplicate replay next pass is
				// absorbed by its idempotent upsert.
				e.log.WithError(removeErr).WithField("id", item.ID).Warn("failed to remove delivered item")
			}
		}

		e.notifier.PublishStatus(notify.StateSyncing, (i+1)*100/len(items))
	}

	deliveredJobs := make([]string, 0, len(delivered))
	for jobID := range delivered {
		deliveredJobs = append(deliveredJobs, jobID)
	}
	if settled, err := e.store.SettleSubmissions(deliveredJobs); err != nil {
		e.log.WithError(err).Warn("failed to settle job submissions")
	} else if settled > 0 {
		e.log.WithField("count", settled).Info("job submissions confirmed")
	}

	e.finish(result)
	return result
}

// finish records the pass outcome and emits the terminal status event.
func (e *Engine) finish(result *PassResult) {
	result.Duration = time.Since(result.StartedAt)

	e.mu.Lock()
	e.lastPass = result
	clean := result.Error == "" && result.Failed == 0
	if clean {
		now := time.Now()
		e.lastSync = &now
	}
	e.mu.Unlock()

	if clean {
		e.notifier.PublishStatus(notify.StateCompleted, 100)
	} else {
		e.notifier.PublishStatus(notify.StateFailed, 100)
	}

	e.log.WithFields(logrus.Fields{
		"attempted": result.Attempted,
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
		"duration":  result.Duration.String(),
	}).Info("sync pass finished")
}

func distinctJobs(items []*models.QueueItem) []string {
	seen := make(map[string]struct{})
	var jobs []string
	for _, item := range items {
		if item.JobID == "" {
			continue
		}
		if _, ok := seen[item.JobID]; ok {
			continue
		}
		seen[item.JobID] = struct{}{}
		jobs = append(jobs, item.JobID)
	}
	return jobs
}
