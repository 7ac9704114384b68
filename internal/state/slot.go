package state

import (
	"sync"
	"time"
)

// Slot holds one resource's latest snapshot. Writes replace the value
// wholesale and never move the version backwards.
type Slot[T any] struct {
	mu        sync.RWMutex
	value     T
	version   uint64
	set       bool
	updatedAt time.Time
	notify    func(version uint64)
}

func newSlot[T any](notify func(uint64)) *Slot[T] {
	return &Slot[T]{notify: notify}
}

// Get returns the committed value, its version and whether anything has
// been committed yet.
func (s *Slot[T]) Get() (T, uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value, s.version, s.set
}

func (s *Slot[T]) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func (s *Slot[T]) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// Set commits value at version. A version older than the committed one is
// refused and Set returns false; an equal version replaces the value.
func (s *Slot[T]) Set(value T, version uint64) bool {
	s.mu.Lock()
	if s.set && version < s.version {
		s.mu.Unlock()
		return false
	}
	s.value = value
	s.version = version
	s.set = true
	s.updatedAt = time.Now().UTC()
	notify := s.notify
	s.mu.Unlock()

	if notify != nil {
		notify(version)
	}
	return true
}

// Update commits fn's result at the next version and returns that version.
// fn runs under the slot lock with the committed value and whether one
// exists; it must not touch the slot.
func (s *Slot[T]) Update(fn func(current T, ok bool) T) uint64 {
	s.mu.Lock()
	s.value = fn(s.value, s.set)
	s.version++
	s.set = true
	s.updatedAt = time.Now().UTC()
	version := s.version
	notify := s.notify
	s.mu.Unlock()

	if notify != nil {
		notify(version)
	}
	return version
}
