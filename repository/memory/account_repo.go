package memory

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/fastygo/clientevip/domain"
)

type accountRepository struct {
	s *Store
}

func (r *accountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	a, ok := r.s.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, a := range r.s.accounts {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

func (r *accountRepository) Upsert(ctx context.Context, account *domain.Account) error {
	if account == nil {
		return domain.ErrInvalidPayload
	}
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	account.Email = strings.ToLower(strings.TrimSpace(account.Email))

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for id, a := range r.s.accounts {
		if id != account.ID && a.Email == account.Email {
			return domain.NewError(domain.ErrCodeConflict, "email already registered")
		}
	}
	now := r.s.now()
	if existing, ok := r.s.accounts[account.ID]; ok {
		account.CreatedAt = existing.CreatedAt
	} else if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now
	cp := *account
	r.s.accounts[account.ID] = &cp
	return nil
}
