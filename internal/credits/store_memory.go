package credits

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryStore struct {
	mu       sync.Mutex
	accounts map[string]Account
	entries  map[string][]Entry
	now      func() time.Time
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		accounts: make(map[string]Account),
		entries:  make(map[string][]Entry),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *memoryStore) Get(ctx context.Context, userID string) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[userID]
	if !ok {
		return Account{}, ErrNotFound
	}
	return acct, nil
}

func (s *memoryStore) Open(ctx context.Context, userID string, initial int) (Account, bool, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if acct, ok := s.accounts[userID]; ok {
		return acct, false, nil
	}
	acct := Account{UserID: userID, Credits: initial, UpdatedAt: s.now()}
	s.accounts[userID] = acct
	if initial > 0 {
		s.appendLocked(acct, initial, Ref{Type: EntryGrant})
	}
	return acct, true, nil
}

func (s *memoryStore) Debit(ctx context.Context, userID string, amount int, ref Ref) (Account, bool, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[userID]
	if !ok || acct.Credits < amount {
		return Account{}, false, nil
	}
	acct.Credits -= amount
	acct.UpdatedAt = s.now()
	s.accounts[userID] = acct
	s.appendLocked(acct, -amount, ref)
	return acct, true, nil
}

func (s *memoryStore) Credit(ctx context.Context, userID string, amount int, ref Ref) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[userID]
	if !ok {
		acct = Account{UserID: userID}
	}
	acct.Credits += amount
	acct.UpdatedAt = s.now()
	s.accounts[userID] = acct
	s.appendLocked(acct, amount, ref)
	return acct, nil
}

func (s *memoryStore) Entries(ctx context.Context, userID string, limit int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.entries[userID]
	out := make([]Entry, 0, min(limit, len(all)))
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (s *memoryStore) appendLocked(acct Account, amount int, ref Ref) {
	s.entries[acct.UserID] = append(s.entries[acct.UserID], Entry{
		ID:           uuid.NewString(),
		UserID:       acct.UserID,
		Type:         ref.Type,
		Amount:       amount,
		BalanceAfter: acct.Credits,
		AnalysisID:   ref.AnalysisID,
		CreatedAt:    acct.UpdatedAt,
	})
}
