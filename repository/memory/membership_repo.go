package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fastygo/clientevip/domain"
	"github.com/fastygo/clientevip/pkg/vipcode"
	"github.com/fastygo/clientevip/repository"
)

type membershipRepository struct {
	s *Store
}

func (r *membershipRepository) Create(ctx context.Context, m *domain.Membership) error {
	if m == nil || m.DigitalCode == "" {
		return domain.ErrInvalidPayload
	}
	if err := ctx.Err(); err != nil {
		return domain.Unavailable("create membership", err)
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}

	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.codes[m.DigitalCode]; taken {
		return domain.ErrCodeCollision
	}
	if m.PhysicalCode != "" {
		if _, taken := s.codes[m.PhysicalCode]; taken || m.PhysicalCode == m.DigitalCode {
			return domain.ErrCodeCollision
		}
	}
	if _, exists := s.memberships[m.ID]; exists {
		return domain.NewError(domain.ErrCodeConflict, "membership id already used")
	}

	now := s.now()
	m.Version = 1
	m.CreatedAt = now
	m.UpdatedAt = now
	for i := range m.Vehicles {
		if m.Vehicles[i].ID == "" {
			m.Vehicles[i].ID = uuid.NewString()
		}
		m.Vehicles[i].CreatedAt = now
	}

	s.memberships[m.ID] = cloneMembership(m)
	s.order = append(s.order, m.ID)
	s.codes[m.DigitalCode] = &codeEntry{membershipID: m.ID, kind: vipcode.KindDigital}
	if m.PhysicalCode != "" {
		s.codes[m.PhysicalCode] = &codeEntry{membershipID: m.ID, kind: vipcode.KindPhysical}
	}
	return nil
}

func (r *membershipRepository) GetByID(ctx context.Context, id string) (*domain.Membership, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	m, ok := r.s.memberships[id]
	if !ok {
		return nil, domain.ErrMembershipNotFound
	}
	return cloneMembership(m), nil
}

func (r *membershipRepository) GetByCode(ctx context.Context, code string) (*domain.Membership, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	entry, ok := r.s.codes[code]
	if !ok || entry.retired {
		return nil, domain.ErrVIPCodeNotFound
	}
	m, ok := r.s.memberships[entry.membershipID]
	if !ok {
		return nil, domain.ErrVIPCodeNotFound
	}
	return cloneMembership(m), nil
}

func (r *membershipRepository) List(ctx context.Context, filter repository.MembershipFilter) ([]domain.Membership, error) {
	at := filter.At
	if at.IsZero() {
		at = time.Now()
	}
	window := filter.ExpiringWindow
	if window <= 0 {
		window = domain.DefaultExpiringWindow
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var matched []domain.Membership
	for i := len(r.s.order) - 1; i >= 0; i-- {
		m := r.s.memberships[r.s.order[i]]
		if filter.StoreID != "" && m.StoreID != filter.StoreID {
			continue
		}
		if filter.Status != "" && domain.ComputeStatus(m, at, window) != filter.Status {
			continue
		}
		cp := cloneMembership(m)
		cp.Vehicles = nil
		matched = append(matched, *cp)
	}
	return page(matched, filter.Limit, filter.Offset), nil
}

func (r *membershipRepository) Update(ctx context.Context, m *domain.Membership) error {
	if m == nil {
		return domain.ErrInvalidPayload
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.compareVersion(m)
	if err != nil {
		return err
	}
	stored.ValidUntil = m.ValidUntil
	stored.RenewalDate = m.RenewalDate
	stored.CancelledAt = m.CancelledAt
	stored.Status = m.Status
	s.bump(stored)

	fresh := cloneMembership(stored)
	m.RenewalDate, m.CancelledAt = fresh.RenewalDate, fresh.CancelledAt
	m.Version = stored.Version
	m.UpdatedAt = stored.UpdatedAt
	return nil
}

func (r *membershipRepository) IssuePhysicalCode(ctx context.Context, m *domain.Membership, code string) error {
	if m == nil || code == "" {
		return domain.ErrInvalidPayload
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.compareVersion(m)
	if err != nil {
		return err
	}
	if stored.IsCancelled() {
		return domain.ErrConcurrentUpdate
	}
	if _, taken := s.codes[code]; taken {
		return domain.ErrCodeCollision
	}

	for _, entry := range s.codes {
		if entry.membershipID == stored.ID && entry.kind == vipcode.KindPhysical {
			entry.retired = true
		}
	}
	s.codes[code] = &codeEntry{membershipID: stored.ID, kind: vipcode.KindPhysical}
	stored.PhysicalCode = code
	s.bump(stored)

	m.PhysicalCode = code
	m.Version = stored.Version
	m.UpdatedAt = stored.UpdatedAt
	return nil
}

func (r *membershipRepository) AddVehicle(ctx context.Context, m *domain.Membership, v *domain.Vehicle) error {
	if m == nil || v == nil {
		return domain.ErrInvalidPayload
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.compareVersion(m)
	if err != nil {
		return err
	}
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	v.CreatedAt = s.now()
	stored.Vehicles = append(stored.Vehicles, *v)
	s.bump(stored)

	m.Vehicles = append([]domain.Vehicle(nil), stored.Vehicles...)
	m.Version = stored.Version
	m.UpdatedAt = stored.UpdatedAt
	return nil
}

func (r *membershipRepository) UpdateStatus(ctx context.Context, id string, status domain.Status) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.memberships[id]
	if !ok {
		return domain.ErrMembershipNotFound
	}
	stored.Status = status
	return nil
}

// compareVersion must be called with s.mu held.
func (s *Store) compareVersion(m *domain.Membership) (*domain.Membership, error) {
	stored, ok := s.memberships[m.ID]
	if !ok {
		return nil, domain.ErrMembershipNotFound
	}
	if stored.Version != m.Version {
		return nil, domain.ErrConcurrentUpdate
	}
	return stored, nil
}

func (s *Store) bump(stored *domain.Membership) {
	stored.Version++
	stored.UpdatedAt = s.now()
}
