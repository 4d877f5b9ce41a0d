package settings

import "sync"

// Store owns the current Settings for a process.
//
// Readers get a copy and the lock is released before they do anything with
// it, so no formatting or network work ever runs under the lock.
type Store struct {
	mu  sync.RWMutex
	cur Settings
}

func NewStore(s Settings) *Store {
	return &Store{cur: s}
}

// Snapshot returns a copy of the current settings.
func (st *Store) Snapshot() Settings {
	st.mu.RLock()
	s := st.cur
	st.mu.RUnlock()
	return s
}

// Update applies fn to the current settings and returns the result.
func (st *Store) Update(fn func(*Settings)) Settings {
	st.mu.Lock()
	defer st.mu.Unlock()
	if fn != nil {
		fn(&st.cur)
	}
	return st.cur
}

// Replace swaps in a whole new value (used on config reload).
func (st *Store) Replace(s Settings) {
	st.mu.Lock()
	st.cur = s
	st.mu.Unlock()
}
