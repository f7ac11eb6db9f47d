package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishStatusReachesSubscribers(t *testing.T) {
	n := NewNotifier(time.Hour)
	defer n.Close()

	unsub, events := n.SubscribeStatus()
	defer unsub()

	n.PublishStatus(StateSyncing, 40)

	select {
	case s := <-events:
		assert.Equal(t, StateSyncing, s.State)
		assert.Equal(t, 40, s.Progress)
	case <-time.After(time.Second):
		t.Fatal("no status event received")
	}

	assert.Equal(t, StateSyncing, n.Current().State)
}

func TestTerminalStateAutoResetsToIdle(t *testing.T) {
	n := NewNotifier(20 * time.Millisecond)
	defer n.Close()

	unsub, events := n.SubscribeStatus()
	defer unsub()

	n.PublishStatus(StateCompleted, 100)

	s := <-events
	assert.Equal(t, StateCompleted, s.State)

	select {
	case s = <-events:
		assert.Equal(t, StateIdle, s.State)
		assert.Zero(t, s.Progress)
	case <-time.After(time.Second):
		t.Fatal("terminal state never reset to idle")
	}
	assert.Equal(t, StateIdle, n.Current().State)
}

func TestNewPassCancelsPendingReset(t *testing.T) {
	n := NewNotifier(20 * time.Millisecond)
	defer n.Close()

	n.PublishStatus(StateFailed, 100)
	// A new pass starts before the banner reset fires.
	n.PublishStatus(StateSyncing, 0)

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, StateSyncing, n.Current().State, "stale reset must not fire into a running pass")
}

func TestUploadEvents(t *testing.T) {
	n := NewNotifier(time.Hour)
	defer n.Close()

	unsub, events := n.SubscribeUpload()
	defer unsub()

	n.PublishUpload("J1", UploadUploading)
	n.PublishUpload("", UploadUploading) // no job → dropped

	select {
	case ev := <-events:
		assert.Equal(t, "J1", ev.JobID)
		assert.Equal(t, UploadUploading, ev.State)
	case <-time.After(time.Second):
		t.Fatal("no upload event received")
	}
	assert.Empty(t, events)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	n := NewNotifier(time.Hour)
	defer n.Close()

	unsub, events := n.SubscribeStatus()
	unsub()
	unsub() // calling twice is safe

	_, open := <-events
	assert.False(t, open, "channel should be closed after unsubscribe")

	// Publishing after unsubscribe must not panic.
	n.PublishStatus(StateSyncing, 0)
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	n := NewNotifier(time.Hour)
	defer n.Close()

	unsub, _ := n.SubscribeStatus()
	defer unsub()

	done := make(chan struct{})
	go func() {
		// Overflow the subscriber buffer; publishes must not block.
		for i := 0; i < 200; i++ {
			n.PublishStatus(StateSyncing, i%100)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestCloseDropsSubscribers(t *testing.T) {
	n := NewNotifier(time.Hour)

	_, statusCh := n.SubscribeStatus()
	_, uploadCh := n.SubscribeUpload()

	n.Close()
	n.Close() // idempotent

	_, open := <-statusCh
	require.False(t, open)
	_, open = <-uploadCh
	require.False(t, open)

	// Publishing after close is a no-op.
	n.PublishStatus(StateSyncing, 0)
	n.PublishUpload("J1", UploadPending)
}
