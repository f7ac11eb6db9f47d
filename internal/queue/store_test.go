package queue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetmove/fieldsync/internal/db"
	"github.com/fleetmove/fieldsync/internal/errors"
	"github.com/fleetmove/fieldsync/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	database, err := db.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	require.NoError(t, db.NewMigrator(database.DB).Up())

	repo := db.NewRepository(database.DB)
	t.Cleanup(func() { repo.Close() })
	return NewStore(repo)
}

func enqueueTest(t *testing.T, store *Store, itemType models.ItemType, jobID string) *models.QueueItem {
	t.Helper()
	item, err := store.Enqueue(&models.QueueItem{
		Type:    itemType,
		JobID:   jobID,
		Payload: json.RawMessage(`{"job_id":"` + jobID + `"}`),
	})
	require.NoError(t, err)
	return item
}

func TestEnqueueAssignsIdentity(t *testing.T) {
	store := newTestStore(t)

	item := enqueueTest(t, store, models.ItemTypeForm, "job-1")
	assert.NotEmpty(t, item.ID)
	assert.NotZero(t, item.CreatedAt)

	got, err := store.Get(item.ID.String())
	require.NoError(t, err)
	assert.Equal(t, item.ID, got.ID)
}

func TestEnqueueRejectsInvalidItems(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Enqueue(&models.QueueItem{Type: "telegram", Payload: json.RawMessage(`{}`)})
	assert.True(t, errors.Is(err, errors.ErrQueueItemInvalid))

	_, err = store.Enqueue(&models.QueueItem{Type: models.ItemTypeForm})
	assert.True(t, errors.Is(err, errors.ErrQueueItemInvalid))
}

func TestEnqueueSurfacesPersistenceFailure(t *testing.T) {
	database, err := db.Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, db.NewMigrator(database.DB).Up())

	repo := db.NewRepository(database.DB)
	store := NewStore(repo)

	// Break the store underneath the queue; the capture must not be
	// reported as saved.
	require.NoError(t, database.Close())

	_, err = store.Enqueue(&models.QueueItem{
		Type:    models.ItemTypeForm,
		Payload: json.RawMessage(`{}`),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrEnqueueFailed))
}

func TestListPreservesInsertionOrderAcrossJobs(t *testing.T) {
	store := newTestStore(t)

	a := enqueueTest(t, store, models.ItemTypePhoto, "job-a")
	b := enqueueTest(t, store, models.ItemTypeForm, "job-b")
	c := enqueueTest(t, store, models.ItemTypeSignature, "job-a")

	items, err := store.List(db.QueueFilter{})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, a.ID, items[0].ID)
	assert.Equal(t, b.ID, items[1].ID)
	assert.Equal(t, c.ID, items[2].ID)
}

func TestRemoveNotFound(t *testing.T) {
	store := newTestStore(t)

	err := store.Remove("00000000-0000-4000-8000-000000000000")
	assert.True(t, errors.Is(err, errors.ErrQueueItemNotFound))
}

func TestRecordFailureKeepsItemQueued(t *testing.T) {
	store := newTestStore(t)

	item := enqueueTest(t, store, models.ItemTypePhoto, "job-1")
	require.NoError(t, store.RecordFailure(item.ID.String(), assert.AnError))

	got, err := store.Get(item.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, assert.AnError.Error(), got.LastError)
	assert.NotZero(t, got.LastAttemptAt)
}

func TestCounts(t *testing.T) {
	store := newTestStore(t)

	enqueueTest(t, store, models.ItemTypeForm, "job-1")
	enqueueTest(t, store, models.ItemTypePhoto, "job-1")
	enqueueTest(t, store, models.ItemTypePhoto, "job-2")
	_, err := store.RecordSubmission("job-1", models.SubmissionCollection)
	require.NoError(t, err)

	counts, err := store.Counts()
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Total)
	assert.Equal(t, 1, counts.ByType[models.ItemTypeForm])
	assert.Equal(t, 2, counts.ByType[models.ItemTypePhoto])
	assert.Equal(t, 1, counts.Submissions)

	n, err := store.CountForJob("job-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRecordSubmissionValidation(t *testing.T) {
	store := newTestStore(t)

	_, err := store.RecordSubmission("", models.SubmissionCollection)
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = store.RecordSubmission("job-1", "handover")
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestSettleSubmissions(t *testing.T) {
	store := newTestStore(t)

	item := enqueueTest(t, store, models.ItemTypeForm, "job-1")
	_, err := store.RecordSubmission("job-1", models.SubmissionCollection)
	require.NoError(t, err)

	// Still pending while the job has queue items.
	n, err := store.SettleSubmissions([]string{"job-1"})
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, store.Remove(item.ID.String()))

	n, err = store.SettleSubmissions([]string{"job-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pending, err := store.Submissions(true)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSettleSubmissionsRequiresDelivery(t *testing.T) {
	store := newTestStore(t)

	// Submission recorded but the accompanying item never made it into
	// the queue; with no delivery evidence it must stay pending.
	_, err := store.RecordSubmission("job-1", models.SubmissionCollection)
	require.NoError(t, err)

	n, err := store.SettleSubmissions(nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	pending, err := store.Submissions(true)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "job-1", pending[0].JobID)
}
