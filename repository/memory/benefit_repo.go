package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/fastygo/clientevip/domain"
	"github.com/fastygo/clientevip/repository"
)

type benefitRepository struct {
	s *Store
}

func (r *benefitRepository) Create(ctx context.Context, b *domain.Benefit) error {
	if b == nil {
		return domain.ErrInvalidPayload
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	b.CreatedAt = now
	b.UpdatedAt = now
	cp := *b
	r.s.benefits[b.ID] = &cp
	return nil
}

func (r *benefitRepository) GetByID(ctx context.Context, id string) (*domain.Benefit, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	b, ok := r.s.benefits[id]
	if !ok {
		return nil, domain.ErrBenefitNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *benefitRepository) List(ctx context.Context, filter repository.BenefitFilter) ([]domain.Benefit, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []domain.Benefit
	for _, b := range r.s.benefits {
		if filter.Matches(b) {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return page(out, filter.Limit, filter.Offset), nil
}

func (r *benefitRepository) ListAvailable(ctx context.Context, storeID string) ([]domain.Benefit, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []domain.Benefit
	for _, b := range r.s.benefits {
		if !b.Active {
			continue
		}
		if b.Variant == domain.VariantOfficial || (b.Variant == domain.VariantStore && b.StoreID == storeID) {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Variant != out[j].Variant {
			return out[i].Variant < out[j].Variant
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *benefitRepository) SetActive(ctx context.Context, id string, active bool) (*domain.Benefit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, ok := r.s.benefits[id]
	if !ok {
		return nil, domain.ErrBenefitNotFound
	}
	b.Active = active
	b.UpdatedAt = r.s.now()
	cp := *b
	return &cp, nil
}
