// Package events records processed-command events into a bounded ring
// buffer and fans them out to live status subscribers.
package events

import (
	"sync"
	"time"
)

// subscriberBuffer is the per-subscriber channel capacity. A subscriber
// that falls this far behind is dropped rather than allowed to block
// command processing.
const subscriberBuffer = 64

// CommandEvent describes one processed command.
type CommandEvent struct {
	Time       time.Time `json:"time"`
	Source     string    `json:"source"` // "tcp" or "udp"
	Remote     string    `json:"remote"`
	Command    string    `json:"command"`
	OK         bool      `json:"ok"`
	Reply      string    `json:"reply,omitempty"`
	DurationMS int64     `json:"durationMs"`
}

// Counters holds running command totals.
type Counters struct {
	Total  uint64 `json:"total"`
	OK     uint64 `json:"ok"`
	Failed uint64 `json:"failed"`
}

// Recorder buffers command events and fans them out to subscribers.
type Recorder struct {
	buf *RingBuffer[CommandEvent]

	mu       sync.Mutex
	counters Counters
	subs     map[int]chan CommandEvent
	nextID   int
}

// NewRecorder creates a recorder with the given buffer capacity.
func NewRecorder(capacity int) *Recorder {
	return &Recorder{
		buf:  NewRingBuffer[CommandEvent](capacity),
		subs: map[int]chan CommandEvent{},
	}
}

// Record stores the event and delivers it to every subscriber. Delivery
// never blocks: a subscriber whose channel is full is dropped and its
// channel closed.
func (r *Recorder) Record(ev CommandEvent) {
	r.buf.Push(ev)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.counters.Total++
	if ev.OK {
		r.counters.OK++
	} else {
		r.counters.Failed++
	}

	for id, ch := range r.subs {
		select {
		case ch <- ev:
		default:
			delete(r.subs, id)
			close(ch)
		}
	}
}

// Subscribe registers a new event subscriber. The returned cancel
// function unregisters it; the channel is closed on cancel or when the
// subscriber falls too far behind.
func (r *Recorder) Subscribe() (<-chan CommandEvent, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++
	ch := make(chan CommandEvent, subscriberBuffer)
	r.subs[id] = ch

	cancel := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if sub, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Events returns the buffered events, oldest first.
func (r *Recorder) Events() []CommandEvent {
	return r.buf.All()
}

// Counters returns the running command totals.
func (r *Recorder) Counters() Counters {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters
}

// Len returns the number of buffered events.
func (r *Recorder) Len() int {
	return r.buf.Len()
}
