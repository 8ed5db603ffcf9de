package processed

import "sync"

type state uint8

const (
	stateAccepted state = iota
	stateClaimed
)

// Set is the process-lifetime membership set of order ids the relay has taken
// responsibility for. An id is accepted at webhook intake, which blocks any
// further enqueue of the same order while it waits in the queue, and claimed
// by the settlement worker just before its first network call. Membership
// never expires: a restart rebuilds an empty set, and the startup cutoff
// timestamp redefines which orders are eligible at all. It grows unbounded
// for the life of the process.
type Set struct {
	mu  sync.Mutex
	ids map[int64]state
}

// NewSet returns an empty set.
func NewSet() *Set {
	return &Set{ids: make(map[int64]state)}
}

// Contains reports whether the order id is known, accepted or claimed.
func (s *Set) Contains(orderID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[orderID]
	return ok
}

// Accept records the order id at intake, returning false when it is already
// known. The check and the write are one atomic step so two concurrent
// deliveries of the same notification can never both enqueue.
func (s *Set) Accept(orderID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[orderID]; ok {
		return false
	}
	s.ids[orderID] = stateAccepted
	return true
}

// Claim marks the order id as owned by the settlement worker, returning false
// when a claim already went through. An accepted id is claimed exactly once;
// an id the set has never seen (a queue persisted across a restart) claims
// directly.
func (s *Set) Claim(orderID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.ids[orderID]; ok && st == stateClaimed {
		return false
	}
	s.ids[orderID] = stateClaimed
	return true
}

// Len reports the number of known orders.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}
