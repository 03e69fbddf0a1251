package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/fastygo/clientevip/domain"
	"github.com/fastygo/clientevip/repository"
)

type redemptionRepository struct {
	s *Store
}

func (r *redemptionRepository) Append(ctx context.Context, red *domain.Redemption) error {
	if red == nil {
		return domain.ErrInvalidPayload
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.memberships[red.MembershipID]
	if !ok || m.IsCancelled() || !m.InWindow(red.RedeemedAt) {
		return domain.ErrMembershipNotEligible
	}
	if red.ID == "" {
		red.ID = uuid.NewString()
	}
	r.s.redemptions = append(r.s.redemptions, *red)
	return nil
}

func (r *redemptionRepository) List(ctx context.Context, filter repository.RedemptionFilter) ([]domain.Redemption, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []domain.Redemption
	for i := len(r.s.redemptions) - 1; i >= 0; i-- {
		red := r.s.redemptions[i]
		if filter.MembershipID != "" && red.MembershipID != filter.MembershipID {
			continue
		}
		if filter.PartnerID != "" && red.PartnerID != filter.PartnerID {
			continue
		}
		if filter.StoreID != "" && red.StoreID != filter.StoreID {
			continue
		}
		out = append(out, red)
	}
	return page(out, filter.Limit, filter.Offset), nil
}
