package membership

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fastygo/clientevip/domain"
	"github.com/fastygo/clientevip/internal/metrics"
	"github.com/fastygo/clientevip/pkg/vipcode"
	"github.com/fastygo/clientevip/repository"
	"github.com/fastygo/clientevip/usecase"
)

const (
	defaultTerm        = 365 * 24 * time.Hour
	defaultRetryBudget = 5
	maxWriteAttempts   = 3
)

type Config struct {
	ExpiringWindow  time.Duration
	Term            time.Duration
	CodeRetryBudget int
}

type CreateInput struct {
	ClientName  string
	ContactInfo string
	StoreID     string
	Vehicle     *domain.Vehicle
}

type Option func(*UseCase)

// WithClock replaces time.Now.
func WithClock(clock usecase.Clock) Option {
	return func(uc *UseCase) {
		if clock != nil {
			uc.now = clock
		}
	}
}

// WithCodeIssuer replaces the crypto/rand backed code generator.
func WithCodeIssuer(issuer usecase.CodeIssuer) Option {
	return func(uc *UseCase) {
		if issuer != nil {
			uc.codes = issuer
		}
	}
}

type UseCase struct {
	memberships repository.MembershipRepository
	cache       repository.CodeCache
	status      usecase.StatusCache
	codes       usecase.CodeIssuer
	cfg         Config
	now         usecase.Clock
	logger      *zap.Logger
}

// New wires the membership use case. cache and status may be nil.
func New(
	memberships repository.MembershipRepository,
	cache repository.CodeCache,
	status usecase.StatusCache,
	cfg Config,
	logger *zap.Logger,
	opts ...Option,
) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ExpiringWindow <= 0 {
		cfg.ExpiringWindow = domain.DefaultExpiringWindow
	}
	if cfg.Term <= 0 {
		cfg.Term = defaultTerm
	}
	if cfg.CodeRetryBudget <= 0 {
		cfg.CodeRetryBudget = defaultRetryBudget
	}
	uc := &UseCase{
		memberships: memberships,
		cache:       cache,
		status:      status,
		codes:       vipcode.New(),
		cfg:         cfg,
		now:         time.Now,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// ExpiringWindow exposes the configured threshold so other use cases derive status
// the same way.
func (uc *UseCase) ExpiringWindow() time.Duration {
	return uc.cfg.ExpiringWindow
}

// Create registers a membership with a fresh digital code. The membership and its
// code are persisted together; a code collision retries the whole insert with a new
// code until the retry budget runs out.
func (uc *UseCase) Create(ctx context.Context, p domain.Principal, in CreateInput) (*domain.Membership, error) {
	if err := p.Require(domain.CapCreateMembership); err != nil {
		return nil, err
	}

	in.ClientName = strings.TrimSpace(in.ClientName)
	in.ContactInfo = strings.TrimSpace(in.ContactInfo)
	in.StoreID = strings.TrimSpace(in.StoreID)
	if p.StoreBound() {
		if in.StoreID == "" {
			in.StoreID = p.StoreID
		}
		if in.StoreID != p.StoreID {
			return nil, domain.ErrForbidden.With("store %s", in.StoreID)
		}
	}

	now := uc.now()
	problems := map[string][]string{}
	if in.ClientName == "" {
		problems["client_name"] = append(problems["client_name"], "This field is required")
	}
	if in.StoreID == "" {
		problems["store_id"] = append(problems["store_id"], "This field is required")
	}
	if len(problems) > 0 {
		return nil, domain.Validation("invalid membership", problems)
	}

	m := &domain.Membership{
		ID:             uuid.NewString(),
		ClientName:     in.ClientName,
		ContactInfo:    in.ContactInfo,
		StoreID:        in.StoreID,
		ActivationDate: now,
		ValidUntil:     now.Add(uc.cfg.Term),
	}
	if in.Vehicle != nil {
		v := *in.Vehicle
		if err := domain.ValidateVehicle(&v, now); err != nil {
			return nil, err
		}
		if v.PurchaseDate.IsZero() {
			v.PurchaseDate = now
		}
		m.Vehicles = []domain.Vehicle{v}
	}
	m.Status = domain.ComputeStatus(m, now, uc.cfg.ExpiringWindow)

	err := uc.issue(vipcode.KindDigital, uc.codes.Digital, func(code string) error {
		m.DigitalCode = code
		return uc.memberships.Create(ctx, m)
	})
	if err != nil {
		m.DigitalCode = ""
		return nil, err
	}

	uc.cacheCodes(ctx, m)
	metrics.RecordMembershipCreated(m.StoreID)
	uc.logger.Info("membership created",
		zap.String("membership_id", m.ID),
		zap.String("store_id", m.StoreID),
		zap.String("created_by", p.ID))
	return m, nil
}

// Get returns a membership by id or by code with its status derived at read time.
// Code lookups are open to every role holding the lookup capability; id lookups are
// limited to the caller's store for store-bound roles.
func (uc *UseCase) Get(ctx context.Context, p domain.Principal, ref string) (*domain.Membership, error) {
	ref = strings.TrimSpace(ref)
	if _, isCode := vipcode.KindOf(vipcode.Normalize(ref)); isCode {
		if err := p.Require(domain.CapLookupCode); err != nil {
			return nil, err
		}
		m, err := uc.Resolve(ctx, ref)
		if err != nil {
			return nil, err
		}
		uc.refresh(ctx, m)
		return m, nil
	}

	if err := p.Require(domain.CapViewMemberships); err != nil {
		return nil, err
	}
	m, err := uc.memberships.GetByID(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !p.CanAccessStore(m.StoreID) {
		return nil, domain.ErrForbidden.With("membership of store %s", m.StoreID)
	}
	uc.refresh(ctx, m)
	return m, nil
}

// Resolve maps a scanned code to its membership through the union code dictionary.
// The cache only short-cuts the lookup; a stale entry falls back to storage.
func (uc *UseCase) Resolve(ctx context.Context, code string) (*domain.Membership, error) {
	code = vipcode.Normalize(code)
	if _, ok := vipcode.KindOf(code); !ok {
		return nil, domain.ErrVIPCodeNotFound
	}

	if uc.cache != nil {
		id, err := uc.cache.Get(ctx, code)
		switch {
		case err == nil:
			m, getErr := uc.memberships.GetByID(ctx, id)
			if getErr == nil && m.HasCode(code) {
				return m, nil
			}
			if getErr != nil && !errors.Is(getErr, domain.ErrMembershipNotFound) {
				return nil, getErr
			}
			_ = uc.cache.Delete(ctx, code)
		case !errors.Is(err, repository.ErrCacheMiss):
			uc.logger.Warn("code cache lookup failed", zap.Error(err))
		}
	}

	m, err := uc.memberships.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if uc.cache != nil {
		if err := uc.cache.Set(ctx, code, m.ID); err != nil {
			uc.logger.Warn("code cache store failed", zap.Error(err))
		}
	}
	return m, nil
}

// Renew moves the end of the validity window. The new end only has to lie in the
// future, so a renewal may also shorten the window.
func (uc *UseCase) Renew(ctx context.Context, p domain.Principal, id string, newValidUntil time.Time) (*domain.Membership, error) {
	if err := p.Require(domain.CapManageMembership); err != nil {
		return nil, err
	}
	return uc.write(ctx, p, id, "renew", func(m *domain.Membership, now time.Time) error {
		if err := m.Renew(newValidUntil, now, uc.cfg.ExpiringWindow); err != nil {
			return err
		}
		return uc.memberships.Update(ctx, m)
	})
}

// Cancel sets the terminal cancelled flag. Codes keep resolving so terminals can
// report the card as not eligible instead of unknown.
func (uc *UseCase) Cancel(ctx context.Context, p domain.Principal, id string) (*domain.Membership, error) {
	if err := p.Require(domain.CapManageMembership); err != nil {
		return nil, err
	}
	return uc.write(ctx, p, id, "cancel", func(m *domain.Membership, now time.Time) error {
		if err := m.Cancel(now); err != nil {
			return err
		}
		return uc.memberships.Update(ctx, m)
	})
}

// IssuePhysicalCode prints a card code for the membership. A second call replaces a
// lost card: the previous physical code stops resolving.
func (uc *UseCase) IssuePhysicalCode(ctx context.Context, p domain.Principal, id string) (*domain.Membership, error) {
	if err := p.Require(domain.CapManageMembership); err != nil {
		return nil, err
	}
	var previous string
	m, err := uc.write(ctx, p, id, "physical_code", func(m *domain.Membership, now time.Time) error {
		if m.IsCancelled() {
			return domain.ErrMembershipNotEligible.With("membership %s is cancelled", m.ID)
		}
		previous = m.PhysicalCode
		return uc.issue(vipcode.KindPhysical, uc.codes.Physical, func(code string) error {
			return uc.memberships.IssuePhysicalCode(ctx, m, code)
		})
	})
	if err != nil {
		return nil, err
	}
	if uc.cache != nil && previous != "" {
		if err := uc.cache.Delete(ctx, previous); err != nil {
			uc.logger.Warn("code cache eviction failed", zap.Error(err))
		}
	}
	uc.cacheCodes(ctx, m)
	return m, nil
}

// AddVehicle appends a purchase record to the membership's vehicle history.
func (uc *UseCase) AddVehicle(ctx context.Context, p domain.Principal, id string, v domain.Vehicle) (*domain.Membership, error) {
	if err := p.Require(domain.CapCreateMembership); err != nil {
		return nil, err
	}
	if err := domain.ValidateVehicle(&v, uc.now()); err != nil {
		return nil, err
	}
	return uc.write(ctx, p, id, "vehicle", func(m *domain.Membership, now time.Time) error {
		if m.IsCancelled() {
			return domain.ErrMembershipNotEligible.With("membership %s is cancelled", m.ID)
		}
		vehicle := v
		if vehicle.PurchaseDate.IsZero() {
			vehicle.PurchaseDate = now
		}
		return uc.memberships.AddVehicle(ctx, m, &vehicle)
	})
}

// List returns memberships visible to the caller. Store-bound roles only ever see
// their own store.
func (uc *UseCase) List(ctx context.Context, p domain.Principal, filter repository.MembershipFilter) ([]domain.Membership, error) {
	if err := p.Require(domain.CapViewMemberships); err != nil {
		return nil, err
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, domain.Validation("invalid filter", map[string][]string{
			"status": {"Unknown membership status"},
		})
	}
	if p.StoreBound() {
		filter.StoreID = p.StoreID
	}
	now := uc.now()
	filter.At = now
	filter.ExpiringWindow = uc.cfg.ExpiringWindow

	items, err := uc.memberships.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Status = domain.ComputeStatus(&items[i], now, uc.cfg.ExpiringWindow)
	}
	return items, nil
}

// write runs a read-modify-write against the latest stored version. apply must persist
// through a version-checked repository call; losing a race re-reads and re-applies.
func (uc *UseCase) write(
	ctx context.Context,
	p domain.Principal,
	id, transition string,
	apply func(m *domain.Membership, now time.Time) error,
) (*domain.Membership, error) {
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		m, err := uc.memberships.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if !p.CanAccessStore(m.StoreID) {
			return nil, domain.ErrForbidden.With("membership of store %s", m.StoreID)
		}

		now := uc.now()
		err = apply(m, now)
		if errors.Is(err, domain.ErrConcurrentUpdate) {
			uc.logger.Debug("membership write lost a race, retrying",
				zap.String("membership_id", id),
				zap.String("transition", transition),
				zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, err
		}

		m.Status = domain.ComputeStatus(m, now, uc.cfg.ExpiringWindow)
		metrics.RecordTransition(transition)
		uc.logger.Info("membership updated",
			zap.String("membership_id", m.ID),
			zap.String("transition", transition),
			zap.String("status", string(m.Status)),
			zap.String("actor", p.ID))
		return m, nil
	}
	return nil, domain.ErrConcurrentUpdate.With("membership %s after %d attempts", id, maxWriteAttempts)
}

// issue draws codes until persist accepts one or the retry budget is spent.
func (uc *UseCase) issue(kind vipcode.Kind, generate func() (string, error), persist func(code string) error) error {
	for attempt := 1; attempt <= uc.cfg.CodeRetryBudget; attempt++ {
		code, err := generate()
		if err != nil {
			return domain.Internal("generate code", err)
		}
		err = persist(code)
		if errors.Is(err, domain.ErrCodeCollision) {
			metrics.RecordCodeCollision(string(kind))
			uc.logger.Warn("vip code collision", zap.String("kind", string(kind)), zap.Int("attempt", attempt))
			continue
		}
		return err
	}
	uc.logger.Error("vip code generation exhausted",
		zap.String("kind", string(kind)),
		zap.Int("budget", uc.cfg.CodeRetryBudget))
	return domain.ErrCodeGenerationExhausted.With("%s code after %d attempts", kind, uc.cfg.CodeRetryBudget)
}

// refresh derives the status and, when the stored display value is stale, queues a
// cache write. Failures never reach the caller.
func (uc *UseCase) refresh(ctx context.Context, m *domain.Membership) {
	if !m.Refresh(uc.now(), uc.cfg.ExpiringWindow) {
		return
	}
	var err error
	if uc.status != nil {
		err = uc.status.RecordStatus(ctx, m.ID, m.Status)
	} else {
		err = uc.memberships.UpdateStatus(ctx, m.ID, m.Status)
	}
	if err != nil {
		uc.logger.Warn("status cache write failed",
			zap.String("membership_id", m.ID),
			zap.String("status", string(m.Status)),
			zap.Error(err))
	}
}

func (uc *UseCase) cacheCodes(ctx context.Context, m *domain.Membership) {
	if uc.cache == nil {
		return
	}
	for _, code := range []string{m.DigitalCode, m.PhysicalCode} {
		if code == "" {
			continue
		}
		if err := uc.cache.Set(ctx, code, m.ID); err != nil {
			uc.logger.Warn("code cache store failed", zap.Error(err))
			return
		}
	}
}
