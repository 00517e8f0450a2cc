package tle

import (
	"sync"
	"sync/atomic"
	"time"
)

// Store provides thread-safe access to the current constellation.
type Store struct {
	current atomic.Pointer[Constellation]
	mu      sync.Mutex // serializes regenerations
}

// NewStore creates a new empty Store.
func NewStore() *Store {
	return &Store{}
}

// Get returns the current constellation, or nil if none has been loaded.
func (s *Store) Get() *Constellation {
	return s.current.Load()
}

// Set atomically replaces the current constellation.
func (s *Store) Set(c *Constellation) {
	s.current.Store(c)
}

// AgeSeconds returns the age of the current constellation in seconds.
// Returns -1 if none is loaded.
func (s *Store) AgeSeconds() float64 {
	c := s.current.Load()
	if c == nil {
		return -1
	}
	return time.Since(c.GeneratedAt).Seconds()
}

// Lock acquires the regeneration mutex.
func (s *Store) Lock() {
	s.mu.Lock()
}

// Unlock releases the regeneration mutex.
func (s *Store) Unlock() {
	s.mu.Unlock()
}
