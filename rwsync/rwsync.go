// Package rwsync provides two locking primitives: an RWMutex (used by
// fsindex.Index and archive.Archive; the page store and the small-file
// writer use a plain sync.Mutex instead) with an explicit exclusive-escalation state, and a SoftLock
// refcount that keeps an object's backing memory alive past its owner's
// teardown until the last external holder releases it.
package rwsync

import (
	"errors"
	"sync"
)

// ErrDead is returned by Lock/RLock once the mutex has been killed: no new
// lock, shared or exclusive, is granted after that point.
var ErrDead = errors.New("rwsync: object is dead")

// RWMutex is a readers-writer mutex with an explicit exclusive-escalation
// state: once a writer starts escalating, no further readers are admitted,
// and the writer blocks until all in-flight readers have released their
// read lock. This matches the concurrency model in spec.md §5: readers
// never starve a writer indefinitely, and a writer never has to contend
// with a reader that started after it announced intent.
type RWMutex struct {
	mu         sync.Mutex
	cond       *sync.Cond
	readers    int
	writer     bool
	escalating bool
	dead       bool
}

// New returns a ready-to-use RWMutex. The zero value is also safe to use
// directly (as an embedded or struct-value field); New just avoids the
// lazy-init check on the first call.
func New() *RWMutex {
	m := &RWMutex{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// ensureCond lazily builds the condition variable for a zero-value
// RWMutex. Caller must hold m.mu.
func (m *RWMutex) ensureCond() {
	if m.cond == nil {
		m.cond = sync.NewCond(&m.mu)
	}
}

// RLock acquires a shared (reader) lock, blocking while a writer holds or
// is escalating to the lock. It returns ErrDead if the mutex has been
// killed, without blocking further.
func (m *RWMutex) RLock() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureCond()
	for {
		if m.dead {
			return ErrDead
		}
		if !m.writer && !m.escalating {
			break
		}
		m.cond.Wait()
	}
	m.readers++
	return nil
}

// RUnlock releases a shared lock previously acquired with RLock.
func (m *RWMutex) RUnlock() {
	m.mu.Lock()
	m.readers--
	if m.readers < 0 {
		panic("rwsync: RUnlock without matching RLock")
	}
	if m.readers == 0 {
		m.cond.Broadcast()
	}
	m.mu.Unlock()
}

// Lock acquires the exclusive lock. It first waits for any other writer to
// finish, then sets the escalating flag — which blocks new readers from
// being admitted — and waits for in-flight readers to drain before taking
// the lock. It returns ErrDead if the mutex has been killed.
func (m *RWMutex) Lock() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureCond()
	for {
		if m.dead {
			return ErrDead
		}
		if !m.writer && !m.escalating {
			break
		}
		m.cond.Wait()
	}
	m.escalating = true
	for m.readers > 0 {
		if m.dead {
			m.escalating = false
			m.cond.Broadcast()
			return ErrDead
		}
		m.cond.Wait()
	}
	m.escalating = false
	m.writer = true
	return nil
}

// Unlock releases the exclusive lock.
func (m *RWMutex) Unlock() {
	m.mu.Lock()
	if !m.writer {
		m.mu.Unlock()
		panic("rwsync: Unlock without matching Lock")
	}
	m.writer = false
	m.cond.Broadcast()
	m.mu.Unlock()
}

// Kill marks the mutex dead: every blocked or future Lock/RLock call
// returns ErrDead as soon as it re-checks, without waiting for anything
// else. It does not wait for the current holder to release; that holder
// must still call Unlock/RUnlock normally.
func (m *RWMutex) Kill() {
	m.mu.Lock()
	m.ensureCond()
	m.dead = true
	m.cond.Broadcast()
	m.mu.Unlock()
}

// Dead reports whether Kill has been called.
func (m *RWMutex) Dead() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dead
}
