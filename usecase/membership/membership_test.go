package membership

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/clientevip/domain"
	"github.com/fastygo/clientevip/repository"
	"github.com/fastygo/clientevip/repository/memory"
)

var t0 = time.Date(2025, 5, 10, 14, 0, 0, 0, time.UTC)

var (
	admin    = domain.Principal{ID: "admin-1", Role: domain.RoleAdmin}
	lojistaA = domain.Principal{ID: "loj-a", Role: domain.RoleLojista, StoreID: "store-a"}
	lojistaB = domain.Principal{ID: "loj-b", Role: domain.RoleLojista, StoreID: "store-b"}
	vendedor = domain.Principal{ID: "ven-a", Role: domain.RoleVendedor, StoreID: "store-a"}
	parceiro = domain.Principal{ID: "par-1", Role: domain.RoleParceiro, PartnerID: "partner-1"}
)

// scriptedCodes hands out predetermined codes, then fails.
type scriptedCodes struct {
	mu       sync.Mutex
	digital  []string
	physical []string
}

func (s *scriptedCodes) Digital() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.digital) == 0 {
		return "", errors.New("script exhausted")
	}
	code := s.digital[0]
	s.digital = s.digital[1:]
	return code, nil
}

func (s *scriptedCodes) Physical() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.physical) == 0 {
		return "", errors.New("script exhausted")
	}
	code := s.physical[0]
	s.physical = s.physical[1:]
	return code, nil
}

type recordedStatus struct {
	id     string
	status domain.Status
}

type fakeStatusCache struct {
	mu     sync.Mutex
	writes []recordedStatus
}

func (f *fakeStatusCache) RecordStatus(ctx context.Context, id string, status domain.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, recordedStatus{id: id, status: status})
	return nil
}

type mapCodeCache struct {
	mu      sync.Mutex
	entries map[string]string
	deleted []string
}

func newMapCodeCache() *mapCodeCache {
	return &mapCodeCache{entries: map[string]string{}}
}

func (c *mapCodeCache) Get(ctx context.Context, code string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.entries[code]
	if !ok {
		return "", repository.ErrCacheMiss
	}
	return id, nil
}

func (c *mapCodeCache) Set(ctx context.Context, code, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[code] = id
	return nil
}

func (c *mapCodeCache) Delete(ctx context.Context, codes ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, code := range codes {
		delete(c.entries, code)
		c.deleted = append(c.deleted, code)
	}
	return nil
}

// racingRepo makes the next n version-checked writes lose.
type racingRepo struct {
	repository.MembershipRepository
	mu        sync.Mutex
	conflicts int
	attempts  int
}

func (r *racingRepo) Update(ctx context.Context, m *domain.Membership) error {
	r.mu.Lock()
	r.attempts++
	lose := r.conflicts > 0
	if lose {
		r.conflicts--
	}
	r.mu.Unlock()
	if lose {
		return domain.ErrConcurrentUpdate
	}
	return r.MembershipRepository.Update(ctx, m)
}

type fixture struct {
	store  *memory.Store
	uc     *UseCase
	now    time.Time
	codes  *scriptedCodes
	status *fakeStatusCache
	cache  *mapCodeCache
}

func newFixture(t *testing.T, opts ...func(*fixture)) *fixture {
	t.Helper()
	f := &fixture{
		store:  memory.NewStore(),
		now:    t0,
		status: &fakeStatusCache{},
		cache:  newMapCodeCache(),
	}
	for _, opt := range opts {
		opt(f)
	}
	var issuer Option
	if f.codes != nil {
		issuer = WithCodeIssuer(f.codes)
	}
	options := []Option{WithClock(func() time.Time { return f.now })}
	if issuer != nil {
		options = append(options, issuer)
	}
	f.uc = New(f.store.Memberships(), f.cache, f.status, Config{
		ExpiringWindow: 30 * 24 * time.Hour,
		Term:           365 * 24 * time.Hour,
	}, nil, options...)
	return f
}

func withCodes(digital, physical []string) func(*fixture) {
	return func(f *fixture) {
		f.codes = &scriptedCodes{digital: digital, physical: physical}
	}
}

func (f *fixture) create(t *testing.T, p domain.Principal, store string) *domain.Membership {
	t.Helper()
	m, err := f.uc.Create(context.Background(), p, CreateInput{
		ClientName:  "Maria Souza",
		ContactInfo: "maria@example.com",
		StoreID:     store,
	})
	require.NoError(t, err)
	return m
}

func TestCreateIssuesDigitalCode(t *testing.T) {
	f := newFixture(t)
	m := f.create(t, admin, "store-a")

	assert.NotEmpty(t, m.ID)
	assert.Regexp(t, `^VIP-[0-9A-Z]{28}$`, m.DigitalCode)
	assert.Empty(t, m.PhysicalCode)
	assert.Equal(t, t0, m.ActivationDate)
	assert.Equal(t, t0.Add(365*24*time.Hour), m.ValidUntil)
	assert.Equal(t, domain.StatusActive, m.Status)
	assert.Equal(t, 1, m.Version)
	assert.Equal(t, m.ID, f.cache.entries[m.DigitalCode])
}

func TestCreateScopesStoreBoundCallers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m := f.create(t, vendedor, "")
	assert.Equal(t, "store-a", m.StoreID)

	_, err := f.uc.Create(ctx, lojistaA, CreateInput{ClientName: "X", StoreID: "store-b"})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.uc.Create(ctx, parceiro, CreateInput{ClientName: "X", StoreID: "store-a"})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.uc.Create(ctx, domain.Principal{}, CreateInput{ClientName: "X", StoreID: "store-a"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.uc.Create(ctx, admin, CreateInput{ClientName: " "})
	var dErr *domain.Error
	require.ErrorAs(t, err, &dErr)
	assert.Equal(t, domain.KindValidation, dErr.Kind)
	assert.Contains(t, dErr.Fields, "client_name")
	assert.Contains(t, dErr.Fields, "store_id")
}

func TestCreateWithVehicle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m, err := f.uc.Create(ctx, lojistaA, CreateInput{
		ClientName: "Joao",
		Vehicle:    &domain.Vehicle{Brand: "VW", Model: "Nivus", Year: 2025, Plate: "XYZ9A88"},
	})
	require.NoError(t, err)
	require.Len(t, m.Vehicles, 1)
	assert.Equal(t, t0, m.Vehicles[0].PurchaseDate)

	_, err = f.uc.Create(ctx, lojistaA, CreateInput{
		ClientName: "Joao",
		Vehicle:    &domain.Vehicle{Brand: "VW", Year: 1800},
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCreateRetriesCollidingCodes(t *testing.T) {
	f := newFixture(t, withCodes([]string{"VIP-DUP", "VIP-DUP", "VIP-FRESH"}, nil))
	first := f.create(t, admin, "store-a")
	require.Equal(t, "VIP-DUP", first.DigitalCode)

	second := f.create(t, admin, "store-a")
	assert.Equal(t, "VIP-FRESH", second.DigitalCode)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestCreateExhaustsRetryBudget(t *testing.T) {
	codes := []string{"VIP-DUP"}
	for i := 0; i < defaultRetryBudget; i++ {
		codes = append(codes, "VIP-DUP")
	}
	f := newFixture(t, withCodes(codes, nil))
	f.create(t, admin, "store-a")

	_, err := f.uc.Create(context.Background(), admin, CreateInput{ClientName: "B", StoreID: "store-a"})
	assert.ErrorIs(t, err, domain.ErrCodeGenerationExhausted)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeInternal))

	all, err := f.store.Memberships().List(context.Background(), repository.MembershipFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1, "nothing persisted without a code")
}

func TestCreateReportsGeneratorFailure(t *testing.T) {
	f := newFixture(t, withCodes(nil, nil))

	_, err := f.uc.Create(context.Background(), admin, CreateInput{ClientName: "A", StoreID: "store-a"})
	var dErr *domain.Error
	require.ErrorAs(t, err, &dErr)
	assert.Equal(t, domain.KindInternal, dErr.Kind)
	assert.ErrorIs(t, err, domain.ErrInternal)

	all, err := f.store.Memberships().List(context.Background(), repository.MembershipFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCodesAreUniqueAcrossKinds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		m := f.create(t, admin, "store-a")
		m, err := f.uc.IssuePhysicalCode(ctx, admin, m.ID)
		require.NoError(t, err)
		for _, code := range []string{m.DigitalCode, m.PhysicalCode} {
			require.False(t, seen[code], "duplicate %s", code)
			seen[code] = true
		}
	}
}

func TestGetByCodeIsCrossStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.create(t, lojistaA, "")

	got, err := f.uc.Get(ctx, lojistaB, "  "+m.DigitalCode+" ")
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)

	got, err = f.uc.Get(ctx, parceiro, m.DigitalCode)
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)

	_, err = f.uc.Get(ctx, lojistaB, m.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden, "id lookups stay inside the store")

	_, err = f.uc.Get(ctx, parceiro, m.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.uc.Get(ctx, admin, "VIP-UNKNOWN")
	assert.ErrorIs(t, err, domain.ErrVIPCodeNotFound)
}

func TestGetQueuesStatusCacheWrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.create(t, admin, "store-a")

	_, err := f.uc.Get(ctx, admin, m.ID)
	require.NoError(t, err)
	assert.Empty(t, f.status.writes, "unchanged status is not rewritten")

	f.now = m.ValidUntil.Add(time.Hour)
	got, err := f.uc.Get(ctx, admin, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, got.Status)
	require.Len(t, f.status.writes, 1)
	assert.Equal(t, recordedStatus{id: m.ID, status: domain.StatusExpired}, f.status.writes[0])
}

func TestResolveRecoversFromStaleCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.create(t, admin, "store-a")
	other := f.create(t, admin, "store-a")

	f.cache.entries[m.DigitalCode] = other.ID

	got, err := f.uc.Resolve(ctx, m.DigitalCode)
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)
	assert.Contains(t, f.cache.deleted, m.DigitalCode)
	assert.Equal(t, m.ID, f.cache.entries[m.DigitalCode])
}

func TestRenewAndCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.create(t, lojistaA, "")

	f.now = t0.AddDate(0, 11, 15)
	renewed, err := f.uc.Renew(ctx, lojistaA, m.ID, t0.AddDate(2, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRenewed, renewed.Status)
	assert.Equal(t, t0.AddDate(2, 0, 0), renewed.ValidUntil)
	require.NotNil(t, renewed.RenewalDate)
	assert.Equal(t, f.now, *renewed.RenewalDate)

	_, err = f.uc.Renew(ctx, lojistaA, m.ID, f.now)
	assert.ErrorIs(t, err, domain.ErrInvalidRenewal)

	_, err = f.uc.Cancel(ctx, lojistaB, m.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.uc.Cancel(ctx, vendedor, m.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	cancelled, err := f.uc.Cancel(ctx, lojistaA, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)

	_, err = f.uc.Cancel(ctx, admin, m.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyCancelled)
	_, err = f.uc.Renew(ctx, admin, m.ID, t0.AddDate(3, 0, 0))
	assert.ErrorIs(t, err, domain.ErrInvalidRenewal)

	still, err := f.uc.Resolve(ctx, m.DigitalCode)
	require.NoError(t, err, "cancelled codes keep resolving")
	assert.True(t, still.IsCancelled())
}

func TestWriteRetriesLostRaces(t *testing.T) {
	store := memory.NewStore()
	racing := &racingRepo{MembershipRepository: store.Memberships()}
	uc := New(racing, nil, nil, Config{}, nil, WithClock(func() time.Time { return t0 }))
	ctx := context.Background()

	m, err := uc.Create(ctx, admin, CreateInput{ClientName: "A", StoreID: "store-a"})
	require.NoError(t, err)

	racing.conflicts = maxWriteAttempts - 1
	renewed, err := uc.Renew(ctx, admin, m.ID, t0.AddDate(2, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, 2, renewed.Version)
	assert.Equal(t, maxWriteAttempts, racing.attempts)

	racing.conflicts = maxWriteAttempts
	racing.attempts = 0
	_, err = uc.Cancel(ctx, admin, m.ID)
	assert.ErrorIs(t, err, domain.ErrConcurrentUpdate)
	assert.Equal(t, maxWriteAttempts, racing.attempts)

	stored, err := store.Memberships().GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsCancelled(), "losing writer never overwrites")
}

func TestConcurrentCancelsHaveOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.create(t, admin, "store-a")

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.uc.Cancel(ctx, admin, m.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrAlreadyCancelled), errors.Is(err, domain.ErrConcurrentUpdate):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
}

func TestIssuePhysicalCodeReplacesCard(t *testing.T) {
	f := newFixture(t, withCodes([]string{"VIP-A1"}, []string{"VIP-A1", "VPF-CARD1", "VPF-CARD2"}))
	ctx := context.Background()
	m := f.create(t, admin, "store-a")

	withCard, err := f.uc.IssuePhysicalCode(ctx, admin, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "VPF-CARD1", withCard.PhysicalCode, "collision with the digital code retried")

	replaced, err := f.uc.IssuePhysicalCode(ctx, admin, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "VPF-CARD2", replaced.PhysicalCode)

	_, err = f.uc.Resolve(ctx, "VPF-CARD1")
	assert.ErrorIs(t, err, domain.ErrVIPCodeNotFound)
	got, err := f.uc.Resolve(ctx, "vpf-card2")
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)
}

func TestIssuePhysicalCodeRejectsCancelled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.create(t, admin, "store-a")
	_, err := f.uc.Cancel(ctx, admin, m.ID)
	require.NoError(t, err)

	_, err = f.uc.IssuePhysicalCode(ctx, admin, m.ID)
	assert.ErrorIs(t, err, domain.ErrMembershipNotEligible)
}

func TestAddVehicle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.create(t, vendedor, "")

	updated, err := f.uc.AddVehicle(ctx, vendedor, m.ID, domain.Vehicle{Brand: "Jeep", Model: "Compass", Year: 2024, Plate: "JEE1P00"})
	require.NoError(t, err)
	require.Len(t, updated.Vehicles, 1)
	assert.NotEmpty(t, updated.Vehicles[0].ID)

	_, err = f.uc.AddVehicle(ctx, vendedor, m.ID, domain.Vehicle{Brand: "Jeep"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.uc.AddVehicle(ctx, lojistaB, m.ID, domain.Vehicle{Brand: "Jeep", Model: "Renegade", Year: 2024, Plate: "JEE1P01"})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestListScopesAndFiltersByStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.create(t, lojistaA, "")
	f.create(t, lojistaB, "")
	a2 := f.create(t, lojistaA, "")
	_, err := f.uc.Cancel(ctx, lojistaA, a2.ID)
	require.NoError(t, err)

	own, err := f.uc.List(ctx, lojistaA, repository.MembershipFilter{StoreID: "store-b"})
	require.NoError(t, err)
	assert.Len(t, own, 2, "store filter is forced to the caller's store")

	active, err := f.uc.List(ctx, admin, repository.MembershipFilter{Status: domain.StatusActive})
	require.NoError(t, err)
	assert.Len(t, active, 2)

	cancelled, err := f.uc.List(ctx, lojistaA, repository.MembershipFilter{Status: domain.StatusCancelled})
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	assert.Equal(t, a2.ID, cancelled[0].ID)

	f.now = a1.ValidUntil.Add(-24 * time.Hour)
	expiring, err := f.uc.List(ctx, admin, repository.MembershipFilter{Status: domain.StatusExpiring})
	require.NoError(t, err)
	assert.Len(t, expiring, 2)

	_, err = f.uc.List(ctx, admin, repository.MembershipFilter{Status: "lost"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.uc.List(ctx, parceiro, repository.MembershipFilter{})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}
