package rwsync

import (
	"sync"
	"testing"
	"time"
)

func TestZeroValueIsUsable(t *testing.T) {
	var m RWMutex
	if err := m.RLock(); err != nil {
		t.Fatalf("RLock on zero value: %v", err)
	}
	m.RUnlock()

	if err := m.Lock(); err != nil {
		t.Fatalf("Lock on zero value: %v", err)
	}
	m.Unlock()
}

func TestMultipleReadersConcurrent(t *testing.T) {
	m := New()
	if err := m.RLock(); err != nil {
		t.Fatalf("RLock: %v", err)
	}
	if err := m.RLock(); err != nil {
		t.Fatalf("second RLock: %v", err)
	}
	m.RUnlock()
	m.RUnlock()
}

func TestWriterExcludesReaders(t *testing.T) {
	m := New()
	if err := m.RLock(); err != nil {
		t.Fatalf("RLock: %v", err)
	}

	locked := make(chan struct{})
	go func() {
		if err := m.Lock(); err != nil {
			t.Errorf("Lock: %v", err)
			return
		}
		close(locked)
		m.Unlock()
	}()

	select {
	case <-locked:
		t.Fatalf("writer acquired the lock while a reader still held it")
	case <-time.After(20 * time.Millisecond):
	}

	m.RUnlock()
	<-locked
}

func TestEscalatingWriterBlocksNewReaders(t *testing.T) {
	m := New()
	if err := m.RLock(); err != nil {
		t.Fatalf("RLock: %v", err)
	}

	writerWaiting := make(chan struct{})
	go func() {
		close(writerWaiting)
		m.Lock()
		m.Unlock()
	}()
	<-writerWaiting
	time.Sleep(10 * time.Millisecond) // give the writer a chance to start escalating

	readerDone := make(chan struct{})
	go func() {
		if err := m.RLock(); err == nil {
			m.RUnlock()
		}
		close(readerDone)
	}()

	select {
	case <-readerDone:
		t.Fatalf("new reader was admitted while a writer was escalating")
	case <-time.After(20 * time.Millisecond):
	}

	m.RUnlock()
	<-readerDone
}

func TestKillReleasesBlockedWaiters(t *testing.T) {
	m := New()
	if err := m.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(2)
	go func() { defer wg.Done(); errs <- m.RLock() }()
	go func() { defer wg.Done(); errs <- m.Lock() }()

	time.Sleep(10 * time.Millisecond)
	m.Kill()
	m.Unlock()
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != ErrDead {
			t.Fatalf("got %v, want ErrDead", err)
		}
	}
	if !m.Dead() {
		t.Fatalf("Dead() = false after Kill")
	}
}
