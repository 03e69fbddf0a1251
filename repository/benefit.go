package repository

import (
	"context"

	"github.com/fastygo/clientevip/domain"
)

type BenefitFilter struct {
	Variant   domain.Variant
	PartnerID string
	StoreID   string
	Active    *bool
	// VisibleToStore keeps official benefits and the store benefits of that store.
	VisibleToStore string
	Limit          int
	Offset         int
}

// Matches applies the filter to a single benefit. Repositories without a query
// language use it directly.
func (f BenefitFilter) Matches(b *domain.Benefit) bool {
	if f.Variant != "" && b.Variant != f.Variant {
		return false
	}
	if f.PartnerID != "" && b.PartnerID != f.PartnerID {
		return false
	}
	if f.StoreID != "" && b.StoreID != f.StoreID {
		return false
	}
	if f.Active != nil && b.Active != *f.Active {
		return false
	}
	if f.VisibleToStore != "" && b.Variant == domain.VariantStore && b.StoreID != f.VisibleToStore {
		return false
	}
	return true
}

type BenefitRepository interface {
	Create(ctx context.Context, b *domain.Benefit) error
	GetByID(ctx context.Context, id string) (*domain.Benefit, error)
	List(ctx context.Context, filter BenefitFilter) ([]domain.Benefit, error)
	// ListAvailable returns the active official benefits plus the active store
	// benefits of storeID.
	ListAvailable(ctx context.Context, storeID string) ([]domain.Benefit, error)
	SetActive(ctx context.Context, id string, active bool) (*domain.Benefit, error)
}
