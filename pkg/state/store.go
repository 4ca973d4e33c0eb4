package state

import (
	"sync"
)

// StateManager provides shared access to the tracker state.
// Implementations must be thread-safe.
type StateManager interface {
	// Get returns the current snapshot.
	Get() Snapshot
	// Dispatch reduces the action into the current snapshot and returns the result.
	Dispatch(a Action) Snapshot
}

var _ StateManager = &Store{}

// Store serializes every Dispatch so that Reduce is the only writer.
type Store struct {
	lock     sync.RWMutex
	snapshot Snapshot
	watchers map[int]chan Snapshot
	nextID   int
}

func NewStore() *Store {
	return &Store{
		snapshot: Empty(),
		watchers: make(map[int]chan Snapshot),
	}
}

func (s *Store) Get() Snapshot {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.snapshot
}

func (s *Store) Dispatch(a Action) Snapshot {
	s.lock.Lock()
	defer s.lock.Unlock()

	next, changed := Reduce(s.snapshot, a)
	if !changed {
		return s.snapshot
	}
	s.snapshot = next
	for _, ch := range s.watchers {
		// Watchers only care about the latest snapshot.
		select {
		case <-ch:
		default:
		}
		ch <- next
	}
	return next
}

// Watch returns a channel that receives the latest snapshot after every
// change, and a function that stops the watch.
func (s *Store) Watch() (<-chan Snapshot, func()) {
	s.lock.Lock()
	defer s.lock.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan Snapshot, 1)
	ch <- s.snapshot
	s.watchers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.lock.Lock()
			defer s.lock.Unlock()
			delete(s.watchers, id)
			close(ch)
		})
	}
}
