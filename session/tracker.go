package session

import (
	"errors"
	"sync"
)

// ErrBusy is returned when a session already has a generation in flight.
var ErrBusy = errors.New("session busy")

// Tracker allows at most one active generation per chat session. Claims are
// atomic, so two concurrent requests for the same session can never both
// pass: the loser fails fast with ErrBusy instead of queueing.
type Tracker struct {
	inFlight sync.Map // map[int64]bool, one entry per claimed session
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// TryAcquire claims the slot for a session. The returned lease must be
// released on every exit path of the owning request.
func (t *Tracker) TryAcquire(session int64) (*Lease, error) {
	if _, loaded := t.inFlight.LoadOrStore(session, true); loaded {
		return nil, ErrBusy
	}
	return &Lease{tracker: t, session: session}, nil
}

// Active reports whether a session currently holds a lease.
func (t *Tracker) Active(session int64) bool {
	_, ok := t.inFlight.Load(session)
	return ok
}

// Lease is an exclusive claim on a session slot.
type Lease struct {
	tracker *Tracker
	session int64
	once    sync.Once
}

// Release frees the session slot. Calling it more than once is harmless;
// only the first call has an effect.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.tracker.inFlight.Delete(l.session)
	})
}
