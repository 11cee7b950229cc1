package session

import (
	"time"

	"github.com/google/uuid"
)

// queueModeTracker decides when EnteringQueueMode should fire, based on
// the time elapsed since the last recorded exchange activity (§4.5.4).
type queueModeTracker struct {
	cfg          QueueModeConfig
	lastActivity time.Time
}

func newQueueModeTracker(cfg QueueModeConfig) *queueModeTracker {
	return &queueModeTracker{cfg: cfg}
}

func (q *queueModeTracker) touch(now time.Time) { q.lastActivity = now }

// due reports whether now has passed the idle timeout since the last
// recorded activity.
func (q *queueModeTracker) due(now time.Time) bool {
	if !q.cfg.Enabled || q.cfg.Timeout <= 0 || q.lastActivity.IsZero() {
		return false
	}
	return !now.Before(q.lastActivity.Add(q.cfg.Timeout))
}

// wakeDeadline returns the absolute time the idle timer will next fire, if
// queue mode is enabled and activity has been recorded at least once.
func (q *queueModeTracker) wakeDeadline() (time.Time, bool) {
	if !q.cfg.Enabled || q.cfg.Timeout <= 0 || q.lastActivity.IsZero() {
		return time.Time{}, false
	}
	return q.lastActivity.Add(q.cfg.Timeout), true
}

// SendEntry is one queued client-originated LwM2M "Send" request (§5:
// FIFO order within the Send queue). CorrelationID is local bookkeeping
// only — it never appears on the wire — so the owner can track
// completion of a specific enqueued report across retries and across a
// Queue Mode sleep/wake cycle.
type SendEntry struct {
	CorrelationID uuid.UUID
	Payload       []byte
	ContentFormat uint16
	Confirmable   bool
}

// SendQueue holds pending client-initiated Send requests in FIFO order
// (§5).
type SendQueue struct {
	entries []SendEntry
}

// NewSendQueue creates an empty Send queue.
func NewSendQueue() *SendQueue {
	return &SendQueue{}
}

// Enqueue appends a new Send request, stamping it with a fresh
// correlation id, and returns that id.
func (q *SendQueue) Enqueue(payload []byte, contentFormat uint16, confirmable bool) uuid.UUID {
	id := uuid.New()
	q.entries = append(q.entries, SendEntry{CorrelationID: id, Payload: payload, ContentFormat: contentFormat, Confirmable: confirmable})
	return id
}

// Peek returns the oldest queued entry without removing it.
func (q *SendQueue) Peek() (SendEntry, bool) {
	if len(q.entries) == 0 {
		return SendEntry{}, false
	}
	return q.entries[0], true
}

// Pop removes and returns the oldest queued entry.
func (q *SendQueue) Pop() (SendEntry, bool) {
	e, ok := q.Peek()
	if ok {
		q.entries = q.entries[1:]
	}
	return e, ok
}

// Len reports the number of queued entries.
func (q *SendQueue) Len() int { return len(q.entries) }
