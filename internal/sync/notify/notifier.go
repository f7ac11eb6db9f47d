// Package notify fans sync outcomes out to presentation components.
//
// The notifier holds no business state; it relays events produced by the
// sync engine to any number of subscribers (websocket hub, badge poller,
// tests) through explicit subscription handles.
package notify

import (
	"sync"
	"time"
)

// State is the aggregate sync state shown to the user.
type State string

const (
	StateIdle      State = "idle"
	StateSyncing   State = "syncing"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Status is an aggregate progress event: pass start, after each item, and
// pass end.
type Status struct {
	State    State `json:"state"`
	Progress int   `json:"progress"` // 0-100
}

// UploadState is the per-job upload state.
type UploadState string

const (
	UploadPending   UploadState = "pending"
	UploadUploading UploadState = "uploading"
	UploadSuccess   UploadState = "success"
	UploadFailed    UploadState = "failed"
)

// UploadEvent reports a per-job state change.
type UploadEvent struct {
	JobID string      `json:"job_id"`
	State UploadState `json:"state"`
}

// DefaultResetDelay is how long a terminal banner stays up before the
// aggregate state returns to idle.
const DefaultResetDelay = 2 * time.Second

// Notifier is a publish/subscribe bridge between the sync engine and the
// UI. After a pass reaches completed or failed the aggregate state
// auto-resets to idle so a stale banner never sticks around.
type Notifier struct {
	mu         sync.Mutex
	statusSubs map[chan Status]struct{}
	uploadSubs map[chan UploadEvent]struct{}
	current    Status
	resetDelay time.Duration
	resetTimer *time.Timer
	generation int
	closed     bool
}

// NewNotifier creates a notifier. A non-positive resetDelay selects
// DefaultResetDelay.
func NewNotifier(resetDelay time.Duration) *Notifier {
	if resetDelay <= 0 {
		resetDelay = DefaultResetDelay
	}
	return &Notifier{
		statusSubs: make(map[chan Status]struct{}),
		uploadSubs: make(map[chan UploadEvent]struct{}),
		current:    Status{State: StateIdle},
		resetDelay: resetDelay,
	}
}

// Current returns the latest aggregate status.
func (n *Notifier) Current() Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

// SubscribeStatus registers for aggregate status events. The returned func
// unsubscribes; calling it more than once is safe.
func (n *Notifier) SubscribeStatus() (func(), <-chan Status) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch := make(chan Status, 64)
	n.statusSubs[ch] = struct{}{}

	unsub := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if _, ok := n.statusSubs[ch]; !ok {
			return
		}
		delete(n.statusSubs, ch)
		close(ch)
	}
	return unsub, ch
}

// SubscribeUpload registers for per-job upload events.
func (n *Notifier) SubscribeUpload() (func(), <-chan UploadEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch := make(chan UploadEvent, 64)
	n.uploadSubs[ch] = struct{}{}

	unsub := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if _, ok := n.uploadSubs[ch]; !ok {
			return
		}
		delete(n.uploadSubs, ch)
		close(ch)
	}
	return unsub, ch
}

// PublishStatus emits an aggregate status event. Terminal states schedule
// the timed auto-reset to idle; a newer publish cancels any pending reset.
func (n *Notifier) PublishStatus(state State, progress int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.publishStatusLocked(Status{State: state, Progress: progress})
}

func (n *Notifier) publishStatusLocked(s Status) {
	if n.closed {
		return
	}

	n.current = s
	n.generation++

	if n.resetTimer != nil {
		n.resetTimer.Stop()
		n.resetTimer = nil
	}

	for ch := range n.statusSubs {
		select {
		case ch <- s:
		default:
			// Slow subscriber; it will catch up from Current().
		}
	}

	if s.State == StateCompleted || s.State == StateFailed {
		gen := n.generation
		n.resetTimer = time.AfterFunc(n.resetDelay, func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			// A newer event superseded this reset.
			if n.generation != gen {
				return
			}
			n.publishStatusLocked(Status{State: StateIdle})
		})
	}
}

// PublishUpload emits a per-job upload event.
func (n *Notifier) PublishUpload(jobID string, state UploadState) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed || jobID == "" {
		return
	}

	ev := UploadEvent{JobID: jobID, State: state}
	for ch := range n.uploadSubs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close drops all subscribers and stops any pending reset.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return
	}
	n.closed = true

	if n.resetTimer != nil {
		n.resetTimer.Stop()
		n.resetTimer = nil
	}
	for ch := range n.statusSubs {
		close(ch)
		delete(n.statusSubs, ch)
	}
	for ch := range n.uploadSubs {
		close(ch)
		delete(n.uploadSubs, ch)
	}
}
