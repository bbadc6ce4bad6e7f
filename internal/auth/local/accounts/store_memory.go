package accounts

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"backoffice/pkg/platform/sentinel"
)

// InMemoryStore keeps accounts in process memory for tests and development.
type InMemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*Account
	byEmail  map[string]string
	refresh  map[string]*RefreshToken
	resets   map[string]*ResetToken
	stepUps  map[string]*StepUp
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		accounts: make(map[string]*Account),
		byEmail:  make(map[string]string),
		refresh:  make(map[string]*RefreshToken),
		resets:   make(map[string]*ResetToken),
		stepUps:  make(map[string]*StepUp),
	}
}

func cloneAccount(a *Account) *Account {
	c := *a
	c.BackupCodeHashes = slices.Clone(a.BackupCodeHashes)
	if a.LockedUntil != nil {
		t := *a.LockedUntil
		c.LockedUntil = &t
	}
	return &c
}

func (s *InMemoryStore) Create(_ context.Context, account *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byEmail[account.Email]; exists {
		return fmt.Errorf("account %s: %w", account.Email, sentinel.ErrAlreadyUsed)
	}
	s.accounts[account.ID] = cloneAccount(account)
	s.byEmail[account.Email] = account.ID
	return nil
}

func (s *InMemoryStore) FindByEmail(_ context.Context, email string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return nil, fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
	}
	return cloneAccount(s.accounts[id]), nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
	}
	return cloneAccount(a), nil
}

func (s *InMemoryStore) Update(_ context.Context, account *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[account.ID]; !ok {
		return fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
	}
	s.accounts[account.ID] = cloneAccount(account)
	return nil
}

func (s *InMemoryStore) RecordFailure(_ context.Context, id string, threshold int, lockedUntil time.Time) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
	}
	a.FailedAttempts++
	if a.FailedAttempts >= threshold {
		until := lockedUntil
		a.LockedUntil = &until
		a.FailedAttempts = 0
	}
	return cloneAccount(a), nil
}

func (s *InMemoryStore) ResetFailures(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
	}
	a.FailedAttempts = 0
	a.LockedUntil = nil
	return nil
}

func (s *InMemoryStore) ConsumeBackupCode(_ context.Context, id, codeHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return false, fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
	}
	i := slices.Index(a.BackupCodeHashes, codeHash)
	if i < 0 {
		return false, nil
	}
	a.BackupCodeHashes = slices.Delete(a.BackupCodeHashes, i, i+1)
	return true, nil
}

func (s *InMemoryStore) SaveRefreshToken(_ context.Context, token RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh[token.TokenHash] = &token
	return nil
}

func (s *InMemoryStore) ConsumeRefreshToken(_ context.Context, tokenHash string, now time.Time) (*RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.refresh[tokenHash]
	if !ok {
		return nil, fmt.Errorf("refresh token not found: %w", sentinel.ErrNotFound)
	}
	if t.Used {
		c := *t
		return &c, fmt.Errorf("refresh token already used: %w", sentinel.ErrAlreadyUsed)
	}
	if !now.Before(t.ExpiresAt) {
		return nil, fmt.Errorf("refresh token expired: %w", sentinel.ErrExpired)
	}
	t.Used = true
	c := *t
	return &c, nil
}

func (s *InMemoryStore) RevokeRefreshTokens(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for hash, t := range s.refresh {
		if t.AccountID == accountID {
			delete(s.refresh, hash)
		}
	}
	return nil
}

func (s *InMemoryStore) SaveResetToken(_ context.Context, token ResetToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets[token.TokenHash] = &token
	return nil
}

func (s *InMemoryStore) ConsumeResetToken(_ context.Context, tokenHash string, now time.Time) (*ResetToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.resets[tokenHash]
	if !ok {
		return nil, fmt.Errorf("reset token not found: %w", sentinel.ErrNotFound)
	}
	if t.Used {
		return nil, fmt.Errorf("reset token already used: %w", sentinel.ErrAlreadyUsed)
	}
	if !now.Before(t.ExpiresAt) {
		return nil, fmt.Errorf("reset token expired: %w", sentinel.ErrExpired)
	}
	t.Used = true
	c := *t
	return &c, nil
}

func (s *InMemoryStore) SaveStepUp(_ context.Context, step StepUp) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for hash, open := range s.stepUps {
		if !step.CreatedAt.Before(open.ExpiresAt) {
			delete(s.stepUps, hash)
		}
	}
	s.stepUps[step.TokenHash] = &step
	return nil
}

func (s *InMemoryStore) FindStepUp(_ context.Context, tokenHash string, now time.Time) (*StepUp, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	step, ok := s.stepUps[tokenHash]
	if !ok {
		return nil, fmt.Errorf("step-up not found: %w", sentinel.ErrNotFound)
	}
	if !now.Before(step.ExpiresAt) {
		return nil, fmt.Errorf("step-up expired: %w", sentinel.ErrExpired)
	}
	c := *step
	return &c, nil
}

func (s *InMemoryStore) RecordStepUpFailure(_ context.Context, tokenHash string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	step, ok := s.stepUps[tokenHash]
	if !ok {
		return 0, fmt.Errorf("step-up not found: %w", sentinel.ErrNotFound)
	}
	step.AttemptsRemaining--
	if step.AttemptsRemaining <= 0 {
		delete(s.stepUps, tokenHash)
		return 0, nil
	}
	return step.AttemptsRemaining, nil
}

func (s *InMemoryStore) ConsumeStepUp(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stepUps[tokenHash]; !ok {
		return fmt.Errorf("step-up not found: %w", sentinel.ErrNotFound)
	}
	delete(s.stepUps, tokenHash)
	return nil
}
