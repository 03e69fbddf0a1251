package repository

import (
	"context"

	"github.com/fastygo/clientevip/domain"
)

type RedemptionFilter struct {
	MembershipID string
	PartnerID    string
	StoreID      string
	Limit        int
	Offset       int
}

// RedemptionRepository is append-only.
type RedemptionRepository interface {
	// Append writes r only if its membership is still uncancelled and r.RedeemedAt lies
	// inside the membership's validity window at write time. Otherwise nothing is
	// written and domain.ErrMembershipNotEligible is returned.
	Append(ctx context.Context, r *domain.Redemption) error
	List(ctx context.Context, filter RedemptionFilter) ([]domain.Redemption, error)
}
