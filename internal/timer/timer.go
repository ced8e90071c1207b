// Package timer implements the per-endpoint keyed timer registry.
// A timer_id maps to at most one pending TimerFire event; starting a
// timer with an id already registered replaces the prior one.
//
// Cancellation safety is grounded on the generation-counter idiom the
// original simulator uses to distinguish a live TimerFire from a stale
// one still sitting in the event queue after a cancel/replace: every
// (endpoint, timer_id) pair carries a generation that increments on
// every Begin, and a dispatched TimerFire is only honored if its
// generation still matches the registry's current one for that key.
package timer

import (
	"github.com/ouc-computer-network/tcp-lab/internal/packet"
	"github.com/ouc-computer-network/tcp-lab/internal/queue"
)

type key struct {
	endpoint packet.NodeId
	timerID  int32
}

type entry struct {
	token      queue.Token
	generation uint64
}

// Registry tracks live timers across both endpoints. Not safe for
// concurrent use: the engine dispatch loop is single-threaded.
type Registry struct {
	entries map[key]*entry
	nextGen uint64
}

// New creates an empty timer registry.
func New() *Registry {
	return &Registry{entries: make(map[key]*entry)}
}

// Begin reserves the next generation for (endpoint, timerID), replacing
// any prior registration. Returns the previous event-queue token (if one
// existed, so the caller can cancel it) and the new generation to stamp
// onto the TimerFire payload being pushed. The caller must follow with
// Commit once the new event has been pushed and its token is known.
func (r *Registry) Begin(endpoint packet.NodeId, timerID int32) (prevToken queue.Token, hadPrev bool, generation uint64) {
	k := key{endpoint, timerID}
	r.nextGen++
	generation = r.nextGen

	if e, ok := r.entries[k]; ok {
		prevToken, hadPrev = e.token, true
	}
	return prevToken, hadPrev, generation
}

// Commit records the event-queue token for a generation reserved by
// Begin, making the timer live.
func (r *Registry) Commit(endpoint packet.NodeId, timerID int32, token queue.Token, generation uint64) {
	k := key{endpoint, timerID}
	r.entries[k] = &entry{token: token, generation: generation}
}

// Cancel unregisters a timer if present, returning the queue token the
// caller must cancel. hadPrev is false (no-op) if the id was not
// registered: cancelling an unregistered timer_id is a no-op.
func (r *Registry) Cancel(endpoint packet.NodeId, timerID int32) (token queue.Token, hadPrev bool) {
	k := key{endpoint, timerID}
	e, ok := r.entries[k]
	if !ok {
		return 0, false
	}
	delete(r.entries, k)
	return e.token, true
}

// Fire checks whether a dispatched TimerFire for (endpoint, timerID) at
// the given generation is still live, and if so removes the mapping
// before returning true, so the hook may safely re-arm the same id. A false
// return means the event is stale (the timer was cancelled or replaced
// after this event was enqueued) and must be silently dropped.
func (r *Registry) Fire(endpoint packet.NodeId, timerID int32, generation uint64) bool {
	k := key{endpoint, timerID}
	e, ok := r.entries[k]
	if !ok || e.generation != generation {
		return false
	}
	delete(r.entries, k)
	return true
}
