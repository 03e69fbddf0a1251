package benefit

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/fastygo/clientevip/domain"
	"github.com/fastygo/clientevip/repository"
)

// MembershipFinder resolves a membership the caller is allowed to see.
type MembershipFinder interface {
	Get(ctx context.Context, p domain.Principal, ref string) (*domain.Membership, error)
}

type UseCase struct {
	benefits    repository.BenefitRepository
	memberships MembershipFinder
	logger      *zap.Logger
}

func New(benefits repository.BenefitRepository, memberships MembershipFinder, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{
		benefits:    benefits,
		memberships: memberships,
		logger:      logger,
	}
}

// CreateOfficial registers a mall-wide benefit validated by partnerID.
func (uc *UseCase) CreateOfficial(ctx context.Context, p domain.Principal, name, description, partnerID string) (*domain.Benefit, error) {
	if err := p.Require(domain.CapManageOfficialBenefits); err != nil {
		return nil, err
	}
	b, err := domain.NewOfficialBenefit(name, description, partnerID)
	if err != nil {
		return nil, err
	}
	if err := uc.benefits.Create(ctx, b); err != nil {
		return nil, err
	}
	uc.logger.Info("official benefit created",
		zap.String("benefit_id", b.ID),
		zap.String("partner_id", b.PartnerID),
		zap.String("actor", p.ID))
	return b, nil
}

// CreateStoreBenefit registers a dealership benefit. Store-bound callers may only
// create benefits for their own store.
func (uc *UseCase) CreateStoreBenefit(ctx context.Context, p domain.Principal, name, description, storeID string) (*domain.Benefit, error) {
	if err := p.Require(domain.CapManageStoreBenefits); err != nil {
		return nil, err
	}
	storeID = strings.TrimSpace(storeID)
	if p.StoreBound() && storeID == "" {
		storeID = p.StoreID
	}
	if storeID != "" && !p.CanAccessStore(storeID) {
		return nil, domain.ErrForbidden.With("store %s", storeID)
	}
	b, err := domain.NewStoreBenefit(name, description, storeID)
	if err != nil {
		return nil, err
	}
	if err := uc.benefits.Create(ctx, b); err != nil {
		return nil, err
	}
	uc.logger.Info("store benefit created",
		zap.String("benefit_id", b.ID),
		zap.String("store_id", b.StoreID),
		zap.String("actor", p.ID))
	return b, nil
}

// SetActive enables or disables a benefit. Benefits are never deleted so redemption
// history keeps its references.
func (uc *UseCase) SetActive(ctx context.Context, p domain.Principal, id string, active bool) (*domain.Benefit, error) {
	b, err := uc.benefits.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch b.Variant {
	case domain.VariantOfficial:
		if err := p.Require(domain.CapManageOfficialBenefits); err != nil {
			return nil, err
		}
	default:
		if err := p.Require(domain.CapManageStoreBenefits); err != nil {
			return nil, err
		}
		if !p.CanAccessStore(b.StoreID) {
			return nil, domain.ErrForbidden.With("store %s", b.StoreID)
		}
	}
	if b.Active == active {
		return b, nil
	}
	updated, err := uc.benefits.SetActive(ctx, id, active)
	if err != nil {
		return nil, err
	}
	uc.logger.Info("benefit toggled",
		zap.String("benefit_id", id),
		zap.Bool("active", active),
		zap.String("actor", p.ID))
	return updated, nil
}

// List returns the catalogue as seen by the caller: store-bound roles see official
// benefits and those of their store, partners see the official benefits they own.
func (uc *UseCase) List(ctx context.Context, p domain.Principal, filter repository.BenefitFilter) ([]domain.Benefit, error) {
	if err := p.Require(domain.CapViewBenefits); err != nil {
		return nil, err
	}
	if filter.Variant != "" && !filter.Variant.Valid() {
		return nil, domain.Validation("invalid filter", map[string][]string{
			"variant": {"Unknown benefit variant"},
		})
	}
	switch {
	case p.StoreBound():
		if filter.StoreID != "" && filter.StoreID != p.StoreID {
			return nil, domain.ErrForbidden.With("store %s", filter.StoreID)
		}
		filter.VisibleToStore = p.StoreID
	case p.Role == domain.RoleParceiro:
		filter.Variant = domain.VariantOfficial
		filter.PartnerID = p.PartnerID
	}
	return uc.benefits.List(ctx, filter)
}

// ListAvailableFor returns the benefits the authorizer would accept for m: every active
// official benefit plus the active store benefits of m's store.
func (uc *UseCase) ListAvailableFor(ctx context.Context, m *domain.Membership) ([]domain.Benefit, error) {
	if m == nil {
		return nil, domain.ErrMembershipNotFound
	}
	candidates, err := uc.benefits.ListAvailable(ctx, m.StoreID)
	if err != nil {
		return nil, err
	}
	available := make([]domain.Benefit, 0, len(candidates))
	for i := range candidates {
		if candidates[i].Active && candidates[i].AvailableTo(m) {
			available = append(available, candidates[i])
		}
	}
	return available, nil
}

// ListEligibleBenefits resolves the membership for the caller and lists its benefits.
// A partner terminal only sees the benefits it could validate itself.
func (uc *UseCase) ListEligibleBenefits(ctx context.Context, p domain.Principal, membershipRef string) ([]domain.Benefit, error) {
	if err := p.Require(domain.CapViewBenefits); err != nil {
		return nil, err
	}
	m, err := uc.memberships.Get(ctx, p, membershipRef)
	if err != nil {
		return nil, err
	}
	available, err := uc.ListAvailableFor(ctx, m)
	if err != nil || p.Role != domain.RoleParceiro {
		return available, err
	}
	validatable := available[:0]
	for i := range available {
		if available[i].ValidatableByPartner(m, p.PartnerID) {
			validatable = append(validatable, available[i])
		}
	}
	return validatable, nil
}
