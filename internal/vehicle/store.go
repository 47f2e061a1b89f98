package vehicle

import "sync"

// Store keeps the newest kinematic snapshot per vehicle. Snapshots of
// finished vehicles are dropped and the vehicle is remembered as finished.
// It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	states   map[ID]State
	finished map[ID]bool
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		states:   make(map[ID]State),
		finished: make(map[ID]bool),
	}
}

// Put records s as the newest snapshot for id, overwriting any previous one.
func (s *Store) Put(id ID, st State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st.Finished {
		delete(s.states, id)
		s.finished[id] = true
		return
	}
	s.states[id] = st
}

// Get returns the newest unfinished snapshot for id.
func (s *Store) Get(id ID) (State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[id]
	return st, ok
}

// Finished reports whether id has reported crossing the intersection.
func (s *Store) Finished(id ID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.finished[id]
}

// Known reports whether the store has heard from id at all.
func (s *Store) Known(id ID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.states[id]
	return ok || s.finished[id]
}

// Snapshot returns a copy of the unfinished states restricted to ids.
// Unknown and finished ids are skipped.
func (s *Store) Snapshot(ids []ID) map[ID]State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[ID]State, len(ids))
	for _, id := range ids {
		if st, ok := s.states[id]; ok {
			out[id] = st
		}
	}
	return out
}

// Len returns the number of unfinished vehicles with a snapshot.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}
