package repository

import (
	"context"
	"time"

	"github.com/fastygo/clientevip/domain"
)

// MembershipFilter scopes membership listings. Status is matched against the status
// derived at At with ExpiringWindow, never against the stored display cache.
type MembershipFilter struct {
	StoreID        string
	Status         domain.Status
	At             time.Time
	ExpiringWindow time.Duration
	Limit          int
	Offset         int
}

// MembershipRepository persists memberships and the union code dictionary.
//
// Create inserts the membership, its digital code and any initial vehicles atomically
// and reports a taken code as domain.ErrCodeCollision. Update, IssuePhysicalCode and
// AddVehicle compare m.Version against storage and fail with domain.ErrConcurrentUpdate
// when another writer got there first; on success m.Version is bumped.
type MembershipRepository interface {
	Create(ctx context.Context, m *domain.Membership) error
	GetByID(ctx context.Context, id string) (*domain.Membership, error)
	GetByCode(ctx context.Context, code string) (*domain.Membership, error)
	List(ctx context.Context, filter MembershipFilter) ([]domain.Membership, error)
	Update(ctx context.Context, m *domain.Membership) error
	IssuePhysicalCode(ctx context.Context, m *domain.Membership, code string) error
	AddVehicle(ctx context.Context, m *domain.Membership, v *domain.Vehicle) error
	UpdateStatus(ctx context.Context, id string, status domain.Status) error
}
