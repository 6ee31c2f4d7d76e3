package session

import (
	"sync"
)

// Store holds the quiz session state behind a single exclusive lock.
//
// Every read and write goes through the lock. Callbacks passed to Update and
// UpdateSnapshot run while the lock is held and must not block, perform I/O or
// publish anywhere; callers publish with the returned Snapshot after the call
// returns.
type Store struct {
	mu    sync.Mutex
	state *State
}

// NewStore creates a store initialized to the starting session state.
func NewStore() *Store {
	return &Store{
		state: NewState(),
	}
}

// Snapshot copies the current state out under the lock.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.snapshot()
}

// Update mutates the state under the lock and returns nothing.
func (s *Store) Update(fn func(st *State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.state)
}

// UpdateSnapshot mutates the state under the lock and, when fn returns true,
// copies out a snapshot before releasing it.
func (s *Store) UpdateSnapshot(fn func(st *State) bool) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !fn(s.state) {
		return Snapshot{}, false
	}
	return s.state.snapshot(), true
}

// SetSlide sets the current slide.
func (s *Store) SetSlide(slide uint32) {
	s.Update(func(st *State) {
		st.CurrentSlide = slide
	})
}

// Reveal sets the reveal flag and returns the resulting snapshot.
func (s *Store) Reveal(show bool) Snapshot {
	snap, _ := s.UpdateSnapshot(func(st *State) bool {
		st.ResultsRevealed = show
		return true
	})
	return snap
}

// RecordAnswer counts labels towards q in one critical section.
//
// accepted is false when q is QuestionUnknown; nothing is mutated then.
// When the answer was accepted and results are currently revealed, revealed
// is true and snap holds the updated state.
func (s *Store) RecordAnswer(q Question, labels []string) (snap Snapshot, accepted, revealed bool) {
	snap, revealed = s.UpdateSnapshot(func(st *State) bool {
		accepted = st.Count(q, labels...)
		return accepted && st.ResultsRevealed
	})
	return snap, accepted, revealed
}
