// Package pending tracks which listing scopes have a background fetch in
// flight and which have a settled result waiting to be read.
package pending

import (
	"sync"
	"time"
)

// Status is the state of one scope
type Status int

const (
	Absent Status = iota
	Pending
	Settled
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Settled:
		return "settled"
	default:
		return "absent"
	}
}

type entry struct {
	status    Status
	err       error
	startedAt time.Time
	settledAt time.Time
}

// Outcome is the settled result of a fetch, handed to exactly one reader
type Outcome struct {
	Err       error
	StartedAt time.Time
	SettledAt time.Time
}

// Tracker maps scope keys to absent, pending or settled.
// absent -> pending (Begin) -> settled (End) -> absent (Drain or Clear).
type Tracker struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Begin moves key from absent to pending. It returns false, changing
// nothing, when key is already pending or settled; callers use that to
// guarantee a single fetch per scope.
func (t *Tracker) Begin(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[key]; ok {
		return false
	}
	t.entries[key] = &entry{status: Pending, startedAt: t.now()}
	return true
}

// End settles a pending key, recording the fetch error if any.
// Ending a key that is not pending is ignored.
func (t *Tracker) End(key string, err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	if !ok || e.status != Pending {
		return false
	}
	e.status = Settled
	e.err = err
	e.settledAt = t.now()
	return true
}

// Status reports the state of key
func (t *Tracker) Status(key string) Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[key]; ok {
		return e.status
	}
	return Absent
}

// Drain removes a settled key and returns its outcome. ok is false when
// the key was not settled; at most one caller receives a given outcome.
func (t *Tracker) Drain(key string) (Outcome, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	if !ok || e.status != Settled {
		return Outcome{}, false
	}
	delete(t.entries, key)
	return Outcome{Err: e.err, StartedAt: e.startedAt, SettledAt: e.settledAt}, true
}

// Clear removes a settled key, discarding its outcome
func (t *Tracker) Clear(key string) bool {
	_, ok := t.Drain(key)
	return ok
}

// InFlight returns the number of pending keys
func (t *Tracker) InFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, e := range t.entries {
		if e.status == Pending {
			n++
		}
	}
	return n
}
