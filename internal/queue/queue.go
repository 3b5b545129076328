// Package queue provides the bounded two-priority notification queue that
// sits between detection and delivery. Trade lifecycle events ride the high
// priority; opportunities ride normal. Under overflow the queue sheds the
// oldest normal item first and touches high-priority items only as a last
// resort.
package queue

import (
	"context"
	"sync"

	"github.com/alanyoungcy/dmarketbot/internal/domain"
)

// Priority orders queue entries. High drains before normal.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityHigh
)

// Stats is a point-in-time snapshot of queue depth and shed counters.
type Stats struct {
	High           int
	Normal         int
	DroppedNormal  int64
	DroppedHigh    int64
	TotalEnqueued  int64
	TotalDelivered int64
}

// Queue is a bounded in-memory event queue with two FIFO priority lanes.
// Capacity bounds the two lanes together.
type Queue struct {
	mu     sync.Mutex
	high   []domain.Event
	normal []domain.Event
	cap    int
	closed bool

	droppedNormal int64
	droppedHigh   int64
	enqueued      int64
	delivered     int64

	// wake is signalled (non-blockingly) on every enqueue; done is closed
	// exactly once when the queue closes.
	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a queue holding at most capacity events across both lanes.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 256
	}
	return &Queue{
		cap:  capacity,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// priorityFor maps event kinds onto lanes: trade lifecycle and degradation
// notices outrank opportunity chatter.
func priorityFor(kind domain.EventKind) Priority {
	switch kind {
	case domain.EventTradeFilled, domain.EventTradeFailed, domain.EventDegraded:
		return PriorityHigh
	default:
		return PriorityNormal
	}
}

// Publish enqueues an event at the priority implied by its kind. Satisfies
// the scanner's event sink.
func (q *Queue) Publish(_ context.Context, ev domain.Event) error {
	return q.Enqueue(ev, priorityFor(ev.Kind))
}

// Enqueue adds an event, shedding the oldest normal entry when the queue is
// full. The oldest high entry is shed only when a high slot is needed and no
// normal entry remains; a full queue of high entries sheds an incoming
// normal event instead. Enqueue never blocks.
func (q *Queue) Enqueue(ev domain.Event, prio Priority) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return domain.ErrQueueClosed
	}

	if len(q.high)+len(q.normal) >= q.cap {
		switch {
		case len(q.normal) > 0:
			q.normal = q.normal[1:]
			q.droppedNormal++
		case prio == PriorityHigh:
			// Only high entries remain and a high slot is needed.
			q.high = q.high[1:]
			q.droppedHigh++
		default:
			// Normal chatter never evicts a high entry; the incoming
			// event is the one shed.
			q.droppedNormal++
			q.mu.Unlock()
			return nil
		}
	}

	if prio == PriorityHigh {
		q.high = append(q.high, ev)
	} else {
		q.normal = append(q.normal, ev)
	}
	q.enqueued++
	q.mu.Unlock()

	q.signal()
	return nil
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Drain blocks until an event is available and returns it, high priority
// first, FIFO within a lane. Returns ErrQueueClosed once the queue is
// closed and fully drained.
func (q *Queue) Drain(ctx context.Context) (domain.Event, error) {
	for {
		q.mu.Lock()
		if ev, ok := q.pop(); ok {
			q.delivered++
			remaining := len(q.high) + len(q.normal)
			q.mu.Unlock()
			if remaining > 0 {
				q.signal()
			}
			return ev, nil
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return domain.Event{}, domain.ErrQueueClosed
		}

		select {
		case <-ctx.Done():
			return domain.Event{}, ctx.Err()
		case <-q.wake:
		case <-q.done:
		}
	}
}

// pop removes the next event under q.mu.
func (q *Queue) pop() (domain.Event, bool) {
	if len(q.high) > 0 {
		ev := q.high[0]
		q.high = q.high[1:]
		return ev, true
	}
	if len(q.normal) > 0 {
		ev := q.normal[0]
		q.normal = q.normal[1:]
		return ev, true
	}
	return domain.Event{}, false
}

// Close stops further enqueues. Queued events remain drainable.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.closeOnce.Do(func() { close(q.done) })
}

// Stats returns current depths and drop counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		High:           len(q.high),
		Normal:         len(q.normal),
		DroppedNormal:  q.droppedNormal,
		DroppedHigh:    q.droppedHigh,
		TotalEnqueued:  q.enqueued,
		TotalDelivered: q.delivered,
	}
}
