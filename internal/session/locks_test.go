package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAccountLocksSerialize(t *testing.T) {
	locks := NewAccountLocks()

	var mu sync.Mutex
	var active, maxActive int

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("acct")
			defer unlock()

			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive)
}

func TestAccountLocksIndependentAccounts(t *testing.T) {
	locks := NewAccountLocks()

	unlockA := locks.Lock("a")
	defer unlockA()

	// A different account must not block behind "a".
	done := make(chan struct{})
	go func() {
		unlockB := locks.Lock("b")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock for independent account blocked")
	}
}

func TestAccountLocksReleaseDropsEntry(t *testing.T) {
	locks := NewAccountLocks()

	unlock := locks.Lock("acct")
	assert.Contains(t, locks.locks, "acct")
	unlock()
	assert.Empty(t, locks.locks)
}

func TestAccountLocksWaiterKeepsEntry(t *testing.T) {
	locks := NewAccountLocks()

	unlockA := locks.Lock("acct")

	acquired := make(chan func())
	go func() {
		acquired <- locks.Lock("acct")
	}()

	// Wait for the second goroutine to register as a waiter, then let
	// the holder go; the entry must outlive the first release.
	assert.Eventually(t, func() bool {
		locks.mu.Lock()
		defer locks.mu.Unlock()
		l, ok := locks.locks["acct"]
		return ok && l.refs == 2
	}, time.Second, time.Millisecond)

	unlockA()

	select {
	case unlockB := <-acquired:
		assert.Contains(t, locks.locks, "acct")
		unlockB()
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired the lock")
	}

	assert.Empty(t, locks.locks)
}
