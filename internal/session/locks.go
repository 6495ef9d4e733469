package session

import "sync"

// AccountLocks serializes command handling per account. The lock is
// held from key decryption through the last chain confirmation, so a
// second command for the same account blocks until the first
// completes and cannot act on a stale balance.
type AccountLocks struct {
	mu    sync.Mutex
	locks map[string]*accountLock
}

type accountLock struct {
	mu sync.Mutex
	// refs counts the holder plus waiters, maintained under the table
	// mutex. The entry is removed once it drops to zero, so the table
	// never grows beyond the accounts currently in flight.
	refs int
}

// NewAccountLocks creates an empty lock table.
func NewAccountLocks() *AccountLocks {
	return &AccountLocks{
		locks: make(map[string]*accountLock),
	}
}

// Lock acquires the account's mutex and returns the unlock function.
func (a *AccountLocks) Lock(accountID string) func() {
	a.mu.Lock()
	l, ok := a.locks[accountID]
	if !ok {
		l = &accountLock{}
		a.locks[accountID] = l
	}
	l.refs++
	a.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		a.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(a.locks, accountID)
		}
		a.mu.Unlock()
	}
}
