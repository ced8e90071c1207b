// Package queue implements the engine's event queue: a min-heap ordered
// by (scheduled_time_ms, insertion_seq), a total order over simultaneous
// events. Unlike a FIFO submission queue, dispatch order
// here is driven by simulated time, not arrival order, so the underlying
// structure is container/heap rather than a plain slice.
package queue

import "container/heap"

// Token identifies a previously pushed event for later cancellation
// (used by the timer service to cancel a pending TimerFire).
type Token uint64

// Item is one scheduled event. Payload is opaque to the queue; callers
// type-switch on it after Pop.
type Item struct {
	TimeMs       int64
	InsertionSeq int64
	Token        Token
	Payload      any
}

// Queue is a min-heap of Item keyed by (TimeMs, InsertionSeq), with
// logical (tombstone) cancellation so a cancelled event is never
// dispatched even though removing it from the middle of a heap is
// expensive.
type Queue struct {
	h         innerHeap
	nextSeq   int64
	nextToken Token
	cancelled map[Token]struct{}
}

// New creates an empty Queue.
func New() *Queue {
	return &Queue{
		h:         make(innerHeap, 0, 64),
		cancelled: make(map[Token]struct{}),
	}
}

// Push enqueues payload for dispatch at timeMs, assigning the next
// insertion sequence number and a cancellation token. Ties at the same
// timeMs are broken by insertion order.
func (q *Queue) Push(timeMs int64, payload any) Token {
	tok := q.nextToken
	q.nextToken++

	item := &Item{
		TimeMs:       timeMs,
		InsertionSeq: q.nextSeq,
		Token:        tok,
		Payload:      payload,
	}
	q.nextSeq++

	heap.Push(&q.h, item)
	return tok
}

// Cancel logically removes a previously pushed event. Safe to call with
// an unknown or already-dispatched token (no-op). Cancel is the primitive
// the timer service uses to make cancel_timer/replacing start_timer safe.
func (q *Queue) Cancel(tok Token) {
	if tok >= q.nextToken {
		return
	}
	q.cancelled[tok] = struct{}{}
}

// Pop removes and returns the earliest non-cancelled event. ok is false
// if the queue is empty of live events.
func (q *Queue) Pop() (Item, bool) {
	for q.h.Len() > 0 {
		item := heap.Pop(&q.h).(*Item)
		if _, dead := q.cancelled[item.Token]; dead {
			delete(q.cancelled, item.Token)
			continue
		}
		return *item, true
	}
	return Item{}, false
}

// NextTimeMs peeks the scheduled time of the next live event without
// removing it, for the control dashboard's progress display.
// ok is false if the queue has no live events.
func (q *Queue) NextTimeMs() (int64, bool) {
	for q.h.Len() > 0 {
		top := q.h[0]
		if _, dead := q.cancelled[top.Token]; dead {
			heap.Pop(&q.h)
			delete(q.cancelled, top.Token)
			continue
		}
		return top.TimeMs, true
	}
	return 0, false
}

// Len returns the number of items still in the backing heap, including
// cancelled-but-not-yet-skipped tombstones. Use NextTimeMs's presence or
// a Pop loop to test true liveness.
func (q *Queue) Len() int {
	return q.h.Len()
}

type innerHeap []*Item

func (h innerHeap) Len() int { return len(h) }

func (h innerHeap) Less(i, j int) bool {
	if h[i].TimeMs != h[j].TimeMs {
		return h[i].TimeMs < h[j].TimeMs
	}
	return h[i].InsertionSeq < h[j].InsertionSeq
}

func (h innerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *innerHeap) Push(x any) {
	*h = append(*h, x.(*Item))
}

func (h *innerHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
