package accounts

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory, thread-safe account store. Records keep their
// insertion order, which stands in for the database's native ordering. It is
// used in tests and for store-less development runs.
type MemoryStore struct {
	mu   sync.RWMutex
	rows []*Account
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Link implements the same upsert semantics as PostgresStore.Link.
func (s *MemoryStore) Link(_ context.Context, userID string, platform Platform, username string) (*Account, error) {
	code, err := NewVerificationCode()
	if err != nil {
		return nil, err
	}
	username = NormalizeUsername(username)

	s.mu.Lock()
	defer s.mu.Unlock()

	if a := s.find(userID, platform, username); a != nil {
		a.VerificationCode = &code
		a.Verified = false
		a.CodeFound = nil
		a.LastAttemptAt = nil
		a.LastError = nil
		return clone(a), nil
	}

	a := &Account{
		ID:               uuid.New(),
		UserID:           userID,
		Platform:         platform,
		Username:         username,
		VerificationCode: &code,
		CreatedAt:        time.Now().UTC(),
	}
	s.rows = append(s.rows, a)
	return clone(a), nil
}

// Put inserts or replaces a fully-formed record, keyed by ID.
func (s *MemoryStore) Put(a *Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	for i, row := range s.rows {
		if row.ID == a.ID {
			s.rows[i] = clone(a)
			return
		}
	}
	s.rows = append(s.rows, clone(a))
}

// Get retrieves an account by its natural key.
func (s *MemoryStore) Get(_ context.Context, userID string, platform Platform, username string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a := s.find(userID, platform, NormalizeUsername(username))
	if a == nil {
		return nil, ErrNotFound
	}
	return clone(a), nil
}

// GetVerificationCode returns the assigned code, or "" if none is assigned.
func (s *MemoryStore) GetVerificationCode(ctx context.Context, userID string, platform Platform, username string) (string, error) {
	a, err := s.Get(ctx, userID, platform, username)
	if err != nil {
		return "", err
	}
	return a.ExpectedCode(), nil
}

// ListByUser returns the user's accounts in insertion order.
func (s *MemoryStore) ListByUser(_ context.Context, userID string) ([]*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Account
	for _, a := range s.rows {
		if a.UserID == userID {
			out = append(out, clone(a))
		}
	}
	return out, nil
}

// ListPending returns up to limit never-attempted or stale accounts.
func (s *MemoryStore) ListPending(_ context.Context, cutoff time.Time, limit int) ([]*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Account
	for _, a := range s.rows {
		if len(out) >= limit {
			break
		}
		if a.LastAttemptAt == nil || a.LastAttemptAt.Before(cutoff) {
			out = append(out, clone(a))
		}
	}
	return out, nil
}

// UpdateVerification writes the outcome of a verification attempt.
func (s *MemoryStore) UpdateVerification(_ context.Context, id uuid.UUID, upd VerificationUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.rows {
		if a.ID != id {
			continue
		}
		at := upd.AttemptedAt
		a.Verified = upd.Verified
		a.CodeFound = copyString(upd.CodeFound)
		a.LastAttemptAt = &at
		a.LastError = copyString(upd.Error)
		return nil
	}
	return ErrNotFound
}

// ResetCode assigns a new verification code to an existing account.
func (s *MemoryStore) ResetCode(_ context.Context, id uuid.UUID) (string, error) {
	code, err := NewVerificationCode()
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.rows {
		if a.ID == id {
			a.VerificationCode = &code
			return code, nil
		}
	}
	return "", ErrNotFound
}

func (s *MemoryStore) find(userID string, platform Platform, username string) *Account {
	for _, a := range s.rows {
		if a.UserID == userID && a.Platform == platform && a.Username == username {
			return a
		}
	}
	return nil
}

func clone(a *Account) *Account {
	cp := *a
	cp.VerificationCode = copyString(a.VerificationCode)
	cp.CodeFound = copyString(a.CodeFound)
	cp.LastError = copyString(a.LastError)
	if a.LastAttemptAt != nil {
		t := *a.LastAttemptAt
		cp.LastAttemptAt = &t
	}
	return &cp
}

func copyString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
