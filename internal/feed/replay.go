package feed

import (
	"sync"

	"tradedesk/internal/model"
)

// replayBuffer is a fixed-size circular buffer of recent price events.
// Late subscribers drain it to warm their view before live delivery.
//
// Thread-safe for concurrent writes and reads.
type replayBuffer struct {
	mu   sync.Mutex
	buf  []model.PriceEvent
	cap  int
	pos  int // next write position
	full bool
}

func newReplayBuffer(capacity int) *replayBuffer {
	if capacity <= 0 {
		capacity = 64
	}
	return &replayBuffer{
		buf: make([]model.PriceEvent, capacity),
		cap: capacity,
	}
}

// Push appends an event, overwriting the oldest entry when full.
func (rb *replayBuffer) Push(ev model.PriceEvent) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.buf[rb.pos] = ev
	rb.pos = (rb.pos + 1) % rb.cap
	if rb.pos == 0 && !rb.full {
		rb.full = true
	}
}

// Events returns the buffered events, oldest first.
func (rb *replayBuffer) Events() []model.PriceEvent {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := rb.pos
	start := 0
	if rb.full {
		n = rb.cap
		start = rb.pos
	}

	out := make([]model.PriceEvent, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, rb.buf[(start+i)%rb.cap])
	}
	return out
}

// Len returns the number of buffered events.
func (rb *replayBuffer) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.full {
		return rb.cap
	}
	return rb.pos
}
