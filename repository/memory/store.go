// Package memory keeps every repository in process memory behind one lock. It backs
// STORAGE_DRIVER=memory and the use case tests.
package memory

import (
	"sync"
	"time"

	"github.com/fastygo/clientevip/domain"
	"github.com/fastygo/clientevip/pkg/vipcode"
	"github.com/fastygo/clientevip/repository"
)

type codeEntry struct {
	membershipID string
	kind         vipcode.Kind
	retired      bool
}

// Store holds all entities. The repositories it hands out share its lock, so the
// redemption eligibility check sees the same membership state a cancellation writes.
type Store struct {
	mu          sync.RWMutex
	memberships map[string]*domain.Membership
	order       []string
	codes       map[string]*codeEntry
	benefits    map[string]*domain.Benefit
	redemptions []domain.Redemption
	accounts    map[string]*domain.Account
	now         func() time.Time
}

func NewStore() *Store {
	return &Store{
		memberships: make(map[string]*domain.Membership),
		codes:       make(map[string]*codeEntry),
		benefits:    make(map[string]*domain.Benefit),
		accounts:    make(map[string]*domain.Account),
		now:         time.Now,
	}
}

func (s *Store) Memberships() repository.MembershipRepository {
	return &membershipRepository{s: s}
}

func (s *Store) Benefits() repository.BenefitRepository {
	return &benefitRepository{s: s}
}

func (s *Store) Redemptions() repository.RedemptionRepository {
	return &redemptionRepository{s: s}
}

func (s *Store) Accounts() repository.AccountRepository {
	return &accountRepository{s: s}
}

// CodeCount returns how many codes were ever issued, retired ones included.
func (s *Store) CodeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.codes)
}

func cloneMembership(m *domain.Membership) *domain.Membership {
	cp := *m
	if m.RenewalDate != nil {
		t := *m.RenewalDate
		cp.RenewalDate = &t
	}
	if m.CancelledAt != nil {
		t := *m.CancelledAt
		cp.CancelledAt = &t
	}
	if m.Vehicles != nil {
		cp.Vehicles = append([]domain.Vehicle(nil), m.Vehicles...)
	}
	return &cp
}

func page[T any](items []T, limit, offset int) []T {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
