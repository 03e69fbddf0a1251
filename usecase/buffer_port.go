package usecase

import (
	"context"
	"time"

	"github.com/fastygo/clientevip/domain"
)

// StatusCache abstracts the write-behind path for the stored status display cache so
// use cases stay storage-agnostic. Writes may be deferred while storage is offline.
type StatusCache interface {
	RecordStatus(ctx context.Context, membershipID string, status domain.Status) error
}

// CodeIssuer produces candidate VIP codes. Uniqueness is decided by storage.
type CodeIssuer interface {
	Digital() (string, error)
	Physical() (string, error)
}

// Clock returns the current time.
type Clock func() time.Time
