// Package session tracks pending multi-step commands per account and
// provides the per-account mutual exclusion required around key
// decryption and orchestration.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/lendchat/lendchat/pkg/types"
)

// DefaultTTL is how long a pending session stays resolvable.
const DefaultTTL = 5 * time.Minute

const sweepInterval = time.Minute

// Store holds at most one pending session per account. Reads expire
// stale entries lazily; a background sweep only bounds memory.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*types.Session
	ttl      time.Duration
	now      func() time.Time
}

// NewStore creates a session store with the default TTL.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*types.Session),
		ttl:      DefaultTTL,
		now:      time.Now,
	}
}

// Set creates or replaces the account's pending session. A prior
// session for the same account is silently discarded.
func (s *Store) Set(accountID string, kind types.SessionKind, amount, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[accountID] = &types.Session{
		AccountID: accountID,
		Kind:      kind,
		Amount:    amount,
		Token:     token,
		CreatedAt: s.now(),
	}
}

// Get returns the account's pending session, or nil if none exists.
// A session older than the TTL is deleted as a side effect of the
// read and reported as absent. Reading does not refresh the TTL.
func (s *Store) Get(accountID string) *types.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[accountID]
	if !ok {
		return nil
	}

	if s.now().Sub(sess.CreatedAt) > s.ttl {
		delete(s.sessions, accountID)
		return nil
	}

	return sess
}

// Len reports the number of stored sessions, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Clear removes the account's pending session, if any.
func (s *Store) Clear(accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, accountID)
}

// sweep removes all expired entries.
func (s *Store) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for accountID, sess := range s.sessions {
		if now.Sub(sess.CreatedAt) > s.ttl {
			delete(s.sessions, accountID)
		}
	}
}

// StartSweeper runs a periodic sweep until the context is cancelled.
// No behavior depends on the sweep; lazy expiry on read is
// authoritative.
func (s *Store) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}
