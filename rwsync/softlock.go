package rwsync

import "sync"

// SoftLock is a reference count that keeps an object alive past its
// owner's teardown: the owner marks itself dead and defers physical
// release until the last external holder calls Release. Used by fsindex
// entries referenced by open channels.
type SoftLock struct {
	mu    sync.Mutex
	count int
	dead  bool
}

// NewSoftLock returns a SoftLock with one implicit reference (the owner's
// own).
func NewSoftLock() *SoftLock {
	return &SoftLock{count: 1}
}

// Acquire adds one external reference.
func (s *SoftLock) Acquire() {
	s.mu.Lock()
	s.count++
	s.mu.Unlock()
}

// Release removes one reference, returning true if this was the last one
// (the caller should now physically release the guarded resource,
// regardless of whether MarkDead was ever called).
func (s *SoftLock) Release() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count--
	if s.count < 0 {
		panic("rwsync: SoftLock released more times than acquired")
	}
	return s.count == 0
}

// MarkDead flags the guarded object as logically gone: holders of a stale
// handle can check Dead() to fail safely instead of touching freed state.
// It does not itself release any reference.
func (s *SoftLock) MarkDead() {
	s.mu.Lock()
	s.dead = true
	s.mu.Unlock()
}

// Dead reports whether MarkDead has been called.
func (s *SoftLock) Dead() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dead
}

// Count reports the current reference count, for tests and diagnostics.
func (s *SoftLock) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}
