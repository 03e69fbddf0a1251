package redemption

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fastygo/clientevip/domain"
	"github.com/fastygo/clientevip/internal/metrics"
	"github.com/fastygo/clientevip/repository"
	"github.com/fastygo/clientevip/usecase"
)

// Terminal tells which kind of validating device sent the request.
type Terminal string

const (
	TerminalAny     Terminal = ""
	TerminalPartner Terminal = "partner"
	TerminalStore   Terminal = "store"
)

// MembershipSource resolves codes and scoped membership reads.
type MembershipSource interface {
	Resolve(ctx context.Context, code string) (*domain.Membership, error)
	Get(ctx context.Context, p domain.Principal, ref string) (*domain.Membership, error)
}

// Request is one scan at a validating terminal.
type Request struct {
	Code      string
	BenefitID string
	// PartnerID is the partner performing the validation. Official benefits only
	// accept their own partner.
	PartnerID string
	// StoreID, when set, is the dealership of the terminal. Store benefits of other
	// dealerships are rejected.
	StoreID     string
	Terminal    Terminal
	ValidatedBy string
	At          time.Time
}

type Config struct {
	ExpiringWindow time.Duration
}

type UseCase struct {
	memberships MembershipSource
	benefits    repository.BenefitRepository
	redemptions repository.RedemptionRepository
	cfg         Config
	now         usecase.Clock
	tracer      trace.Tracer
	logger      *zap.Logger
}

func New(
	memberships MembershipSource,
	benefits repository.BenefitRepository,
	redemptions repository.RedemptionRepository,
	cfg Config,
	logger *zap.Logger,
) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ExpiringWindow <= 0 {
		cfg.ExpiringWindow = domain.DefaultExpiringWindow
	}
	return &UseCase{
		memberships: memberships,
		benefits:    benefits,
		redemptions: redemptions,
		cfg:         cfg,
		now:         time.Now,
		tracer:      otel.Tracer("clientevip/usecase/redemption"),
		logger:      logger,
	}
}

// WithClock returns a copy of the use case reading time from clock.
func (uc *UseCase) WithClock(clock usecase.Clock) *UseCase {
	cp := *uc
	if clock != nil {
		cp.now = clock
	}
	return &cp
}

// Authorize validates a scan and appends the redemption. Checks run in a fixed order
// so the reported error is deterministic: code, eligibility, benefit, scope. Nothing
// is written unless every check passes.
func (uc *UseCase) Authorize(ctx context.Context, req Request) (_ *domain.Redemption, err error) {
	started := time.Now()
	at := req.At
	if at.IsZero() {
		at = uc.now()
	}
	ctx, span := uc.tracer.Start(ctx, "redemption.authorize",
		trace.WithAttributes(
			attribute.String("benefit.id", req.BenefitID),
			attribute.String("partner.id", req.PartnerID),
			attribute.String("terminal", string(req.Terminal)),
		))
	var variant domain.Variant
	defer func() {
		outcome := "granted"
		if err != nil {
			outcome = string(domain.KindOf(err))
			if outcome == "" {
				outcome = "error"
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		span.SetAttributes(attribute.String("redemption.outcome", outcome))
		span.End()
		metrics.RecordRedemption(outcome, string(variant), time.Since(started).Seconds())
	}()

	m, err := uc.memberships.Resolve(ctx, req.Code)
	if err != nil {
		uc.reject(err, req)
		return nil, err
	}
	span.SetAttributes(attribute.String("membership.id", m.ID))

	status := domain.ComputeStatus(m, at, uc.cfg.ExpiringWindow)
	if !status.Eligible() || at.Before(m.ActivationDate) {
		err = domain.ErrMembershipNotEligible.With("membership is %s", status)
		uc.reject(err, req)
		return nil, err
	}

	b, err := uc.benefits.GetByID(ctx, req.BenefitID)
	if err != nil {
		uc.reject(err, req)
		return nil, err
	}
	variant = b.Variant
	if !b.Active {
		err = domain.ErrBenefitInactive.With("benefit %s", b.ID)
		uc.reject(err, req)
		return nil, err
	}

	if err = checkScope(b, m, req); err != nil {
		uc.reject(err, req)
		return nil, err
	}

	red := &domain.Redemption{
		MembershipID: m.ID,
		BenefitID:    b.ID,
		PartnerID:    req.PartnerID,
		StoreID:      m.StoreID,
		Variant:      b.Variant,
		ValidatedBy:  req.ValidatedBy,
		RedeemedAt:   at,
	}
	if err = uc.redemptions.Append(ctx, red); err != nil {
		uc.reject(err, req)
		return nil, err
	}

	uc.logger.Info("redemption granted",
		zap.String("redemption_id", red.ID),
		zap.String("membership_id", m.ID),
		zap.String("benefit_id", b.ID),
		zap.String("variant", string(b.Variant)),
		zap.String("status", string(status)),
		zap.String("validated_by", req.ValidatedBy))
	return red, nil
}

// AuthorizeFor fills the terminal identity from the caller: partners validate their
// official benefits, lojistas the store benefits of their dealership.
func (uc *UseCase) AuthorizeFor(ctx context.Context, p domain.Principal, code, benefitID string) (*domain.Redemption, error) {
	if err := p.Require(domain.CapValidateRedemption); err != nil {
		return nil, err
	}
	req := Request{
		Code:        code,
		BenefitID:   strings.TrimSpace(benefitID),
		ValidatedBy: p.ID,
	}
	switch p.Role {
	case domain.RoleParceiro:
		if p.PartnerID == "" {
			return nil, domain.ErrForbidden.With("partner account without partner")
		}
		req.PartnerID = p.PartnerID
		req.Terminal = TerminalPartner
	case domain.RoleLojista:
		if p.StoreID == "" {
			return nil, domain.ErrForbidden.With("store account without store")
		}
		req.StoreID = p.StoreID
		req.Terminal = TerminalStore
	}
	return uc.Authorize(ctx, req)
}

// ListHistory reads a membership's redemptions, newest first.
func (uc *UseCase) ListHistory(ctx context.Context, p domain.Principal, membershipRef string, limit, offset int) ([]domain.Redemption, error) {
	if err := p.Require(domain.CapViewRedemptions); err != nil {
		return nil, err
	}
	m, err := uc.memberships.Get(ctx, p, membershipRef)
	if err != nil {
		return nil, err
	}
	filter := repository.RedemptionFilter{
		MembershipID: m.ID,
		Limit:        limit,
		Offset:       offset,
	}
	if p.Role == domain.RoleParceiro {
		filter.PartnerID = p.PartnerID
	}
	return uc.redemptions.List(ctx, filter)
}

// List returns the redemptions visible to the caller: a partner's own validations,
// a store's redemptions, or everything for mall admins.
func (uc *UseCase) List(ctx context.Context, p domain.Principal, filter repository.RedemptionFilter) ([]domain.Redemption, error) {
	if err := p.Require(domain.CapViewRedemptions); err != nil {
		return nil, err
	}
	switch {
	case p.Role == domain.RoleParceiro:
		filter.PartnerID = p.PartnerID
	case p.StoreBound():
		filter.StoreID = p.StoreID
	}
	return uc.redemptions.List(ctx, filter)
}

// ListByPartner is List narrowed to one partner's validations.
func (uc *UseCase) ListByPartner(ctx context.Context, p domain.Principal, partnerID string, limit, offset int) ([]domain.Redemption, error) {
	return uc.List(ctx, p, repository.RedemptionFilter{PartnerID: partnerID, Limit: limit, Offset: offset})
}

func checkScope(b *domain.Benefit, m *domain.Membership, req Request) error {
	if !b.InScope(m, req.PartnerID) {
		if b.Variant == domain.VariantOfficial {
			return domain.ErrScopeMismatch.With("benefit %s belongs to another partner", b.ID)
		}
		return domain.ErrScopeMismatch.With("benefit %s belongs to another store", b.ID)
	}
	if req.Terminal == TerminalPartner && !b.ValidatableByPartner(m, req.PartnerID) {
		return domain.ErrScopeMismatch.With("store benefit %s cannot be validated by a partner", b.ID)
	}
	if b.Variant == domain.VariantStore && req.StoreID != "" && req.StoreID != b.StoreID {
		return domain.ErrScopeMismatch.With("benefit %s belongs to another store", b.ID)
	}
	return nil
}

func (uc *UseCase) reject(err error, req Request) {
	fields := []zap.Field{
		zap.String("kind", string(domain.KindOf(err))),
		zap.String("benefit_id", req.BenefitID),
		zap.String("partner_id", req.PartnerID),
		zap.String("store_id", req.StoreID),
		zap.String("validated_by", req.ValidatedBy),
		zap.Error(err),
	}
	if domain.IsDomainError(err, domain.ErrCodeUnavailable) || domain.KindOf(err) == "" {
		uc.logger.Error("redemption authorization failed", fields...)
		return
	}
	uc.logger.Warn("redemption rejected", fields...)
}
