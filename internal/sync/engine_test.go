package sync

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetmove/fieldsync/internal/db"
	"github.com/fleetmove/fieldsync/internal/models"
	"github.com/fleetmove/fieldsync/internal/queue"
	"github.com/fleetmove/fieldsync/internal/sync/notify"
)

// fakeSubmitter records submissions and fails the item ids it is told to.
type fakeSubmitter struct {
	mu        sync.Mutex
	submitted []*models.QueueItem
	failIDs   map[string]error
	block     chan struct{} // when set, Submit waits until closed
}

func (f *fakeSubmitter) Submit(ctx context.Context, item *models.QueueItem) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, item)
	if err, ok := f.failIDs[item.ID.String()]; ok {
		return err
	}
	return nil
}

func (f *fakeSubmitter) submittedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, len(f.submitted))
	for i, item := range f.submitted {
		ids[i] = item.ID.String()
	}
	return ids
}

func newTestStore(t *testing.T) *queue.Store {
	t.Helper()

	database, err := db.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	require.NoError(t, db.NewMigrator(database.DB).Up())

	repo := db.NewRepository(database.DB)
	t.Cleanup(func() { repo.Close() })
	return queue.NewStore(repo)
}

func enqueueTest(t *testing.T, store *queue.Store, itemType models.ItemType, jobID string) *models.QueueItem {
	t.Helper()
	item, err := store.Enqueue(&models.QueueItem{
		Type:    itemType,
		JobID:   jobID,
		Payload: json.RawMessage(`{"job_id":"` + jobID + `"}`),
	})
	require.NoError(t, err)
	return item
}

func TestSyncAllDrainsQueue(t *testing.T) {
	store := newTestStore(t)
	client := &fakeSubmitter{}
	notifier := notify.NewNotifier(time.Hour) // no auto-reset during the test
	defer notifier.Close()

	for i := 0; i < 3; i++ {
		enqueueTest(t, store, models.ItemTypePhoto, "J1")
	}

	engine := NewEngine(store, client, notifier)
	result := engine.SyncAll(context.Background())

	require.NotNil(t, result)
	assert.Equal(t, 3, result.Attempted)
	assert.Equal(t, 3, result.Succeeded)
	assert.Zero(t, result.Failed)
	assert.Empty(t, result.Error)

	items, err := store.List(db.QueueFilter{})
	require.NoError(t, err)
	assert.Empty(t, items, "delivered items must leave the queue")

	assert.Equal(t, notify.StateCompleted, notifier.Current().State)
	assert.Equal(t, 100, notifier.Current().Progress)
	require.NotNil(t, engine.LastSync())
}

func TestSyncAllFailureIsolation(t *testing.T) {
	store := newTestStore(t)
	notifier := notify.NewNotifier(time.Hour)
	defer notifier.Close()

	good1 := enqueueTest(t, store, models.ItemTypeForm, "J1")
	bad := enqueueTest(t, store, models.ItemTypePhoto, "J2")
	good2 := enqueueTest(t, store, models.ItemTypeSignature, "J3")

	client := &fakeSubmitter{failIDs: map[string]error{
		bad.ID.String(): assert.AnError,
	}}

	engine := NewEngine(store, client, notifier)
	result := engine.SyncAll(context.Background())

	require.NotNil(t, result)
	assert.Equal(t, 3, result.Attempted)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, result.Failed)

	// One failure must not block the rest of the pass.
	assert.Equal(t, []string{good1.ID.String(), bad.ID.String(), good2.ID.String()}, client.submittedIDs())

	items, err := store.List(db.QueueFilter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, bad.ID, items[0].ID)
	assert.Equal(t, 1, items[0].Attempts)
	assert.NotEmpty(t, items[0].LastError)

	assert.Equal(t, notify.StateFailed, notifier.Current().State)
	assert.Nil(t, engine.LastSync(), "a failed pass is not a successful sync")
}

func TestSyncAllRetriesFailedItemsOnNextPass(t *testing.T) {
	store := newTestStore(t)
	notifier := notify.NewNotifier(time.Hour)
	defer notifier.Close()

	item := enqueueTest(t, store, models.ItemTypeForm, "J1")

	client := &fakeSubmitter{failIDs: map[string]error{item.ID.String(): assert.AnError}}
	engine := NewEngine(store, client, notifier)

	result := engine.SyncAll(context.Background())
	require.NotNil(t, result)
	assert.Equal(t, 1, result.Failed)

	// The remote recovers; the next trigger drains the retained item.
	client.mu.Lock()
	client.failIDs = nil
	client.mu.Unlock()

	result = engine.SyncAll(context.Background())
	require.NotNil(t, result)
	assert.Equal(t, 1, result.Succeeded)
	assert.Zero(t, result.Failed)

	items, err := store.List(db.QueueFilter{})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, notify.StateCompleted, notifier.Current().State)
}

func TestSyncAllPreservesInsertionOrder(t *testing.T) {
	store := newTestStore(t)
	notifier := notify.NewNotifier(time.Hour)
	defer notifier.Close()

	a := enqueueTest(t, store, models.ItemTypePhoto, "A")
	b := enqueueTest(t, store, models.ItemTypeForm, "B")
	c := enqueueTest(t, store, models.ItemTypePhoto, "A")

	client := &fakeSubmitter{}
	engine := NewEngine(store, client, notifier)
	require.NotNil(t, engine.SyncAll(context.Background()))

	assert.Equal(t, []string{a.ID.String(), b.ID.String(), c.ID.String()}, client.submittedIDs())
}

func TestSyncAllSecondCallIsNoOp(t *testing.T) {
	store := newTestStore(t)
	notifier := notify.NewNotifier(time.Hour)
	defer notifier.Close()

	enqueueTest(t, store, models.ItemTypeForm, "J1")

	block := make(chan struct{})
	client := &fakeSubmitter{block: block}
	engine := NewEngine(store, client, notifier)

	done := make(chan *PassResult, 1)
	go func() {
		done <- engine.SyncAll(context.Background())
	}()

	// Wait for the first pass to take the slot.
	require.Eventually(t, engine.Running, time.Second, 5*time.Millisecond)

	assert.Nil(t, engine.SyncAll(context.Background()), "overlapping pass must be ignored")

	close(block)
	result := <-done
	require.NotNil(t, result)
	assert.Equal(t, 1, result.Succeeded)
	assert.False(t, engine.Running())
}

func TestSyncAllEmptyQueueCompletes(t *testing.T) {
	store := newTestStore(t)
	notifier := notify.NewNotifier(time.Hour)
	defer notifier.Close()

	engine := NewEngine(store, &fakeSubmitter{}, notifier)
	result := engine.SyncAll(context.Background())

	require.NotNil(t, result)
	assert.Zero(t, result.Attempted)
	assert.Empty(t, result.Error)
	assert.Equal(t, notify.StateCompleted, notifier.Current().State)
}

func TestSyncAllSettlesSubmissions(t *testing.T) {
	store := newTestStore(t)
	notifier := notify.NewNotifier(time.Hour)
	defer notifier.Close()

	enqueueTest(t, store, models.ItemTypeForm, "J1")
	_, err := store.RecordSubmission("J1", models.SubmissionCollection)
	require.NoError(t, err)

	engine := NewEngine(store, &fakeSubmitter{}, notifier)
	require.NotNil(t, engine.SyncAll(context.Background()))

	pending, err := store.Submissions(true)
	require.NoError(t, err)
	assert.Empty(t, pending, "drained job submission should be settled")
}

func TestSyncAllDoesNotSettleUndeliveredSubmission(t *testing.T) {
	store := newTestStore(t)
	notifier := notify.NewNotifier(time.Hour)
	defer notifier.Close()

	// The submission row exists but its item never reached the queue
	// (the enqueue after RecordSubmission failed). An empty pass must
	// not report the job as synced.
	_, err := store.RecordSubmission("J9", models.SubmissionCollection)
	require.NoError(t, err)

	engine := NewEngine(store, &fakeSubmitter{}, notifier)
	require.NotNil(t, engine.SyncAll(context.Background()))

	pending, err := store.Submissions(true)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "J9", pending[0].JobID)
}

func TestSyncAllFailedItemsDoNotSettleSubmission(t *testing.T) {
	store := newTestStore(t)
	notifier := notify.NewNotifier(time.Hour)
	defer notifier.Close()

	item := enqueueTest(t, store, models.ItemTypeForm, "J1")
	_, err := store.RecordSubmission("J1", models.SubmissionCollection)
	require.NoError(t, err)

	client := &fakeSubmitter{failIDs: map[string]error{item.ID.String(): assert.AnError}}
	engine := NewEngine(store, client, notifier)
	require.NotNil(t, engine.SyncAll(context.Background()))

	pending, err := store.Submissions(true)
	require.NoError(t, err)
	require.Len(t, pending, 1, "nothing was delivered, so the submission stays pending")
}

func TestSyncAllPublishesUploadLifecycle(t *testing.T) {
	store := newTestStore(t)
	notifier := notify.NewNotifier(time.Hour)
	defer notifier.Close()

	enqueueTest(t, store, models.ItemTypePhoto, "J1")

	unsub, events := notifier.SubscribeUpload()
	defer unsub()

	engine := NewEngine(store, &fakeSubmitter{}, notifier)
	require.NotNil(t, engine.SyncAll(context.Background()))

	var states []notify.UploadState
	for len(events) > 0 {
		ev := <-events
		require.Equal(t, "J1", ev.JobID)
		states = append(states, ev.State)
	}
	assert.Equal(t, []notify.UploadState{notify.UploadPending, notify.UploadUploading, notify.UploadSuccess}, states)
}

type panicSubmitter struct{}

func (panicSubmitter) Submit(context.Context, *models.QueueItem) error {
	panic("submitter exploded")
}

func TestSyncAllRecoversFromPanic(t *testing.T) {
	store := newTestStore(t)
	notifier := notify.NewNotifier(time.Hour)
	defer notifier.Close()

	enqueueTest(t, store, models.ItemTypeForm, "J1")

	engine := NewEngine(store, panicSubmitter{}, notifier)
	result := engine.SyncAll(context.Background())

	require.NotNil(t, result, "an aborted pass must still be reported")
	assert.Contains(t, result.Error, "pass aborted")
	assert.Equal(t, notify.StateFailed, notifier.Current().State)
	assert.False(t, engine.Running())
	require.NotNil(t, engine.LastPass())
	assert.Equal(t, result.Error, engine.LastPass().Error)

	items, err := store.List(db.QueueFilter{})
	require.NoError(t, err)
	assert.Len(t, items, 1, "the item survives for the next pass")

	// The engine slot is free again after the abort.
	result = engine.SyncAll(context.Background())
	require.NotNil(t, result)
}

func TestSyncAllCancelledContext(t *testing.T) {
	store := newTestStore(t)
	notifier := notify.NewNotifier(time.Hour)
	defer notifier.Close()

	enqueueTest(t, store, models.ItemTypeForm, "J1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := NewEngine(store, &fakeSubmitter{}, notifier)
	result := engine.SyncAll(ctx)

	require.NotNil(t, result)
	assert.Zero(t, result.Attempted)
	assert.NotEmpty(t, result.Error)
	assert.Equal(t, notify.StateFailed, notifier.Current().State)

	items, err := store.List(db.QueueFilter{})
	require.NoError(t, err)
	assert.Len(t, items, 1, "interrupted pass keeps items queued")
}
