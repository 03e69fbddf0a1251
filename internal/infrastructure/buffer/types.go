package buffer

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EntityMembershipStatus = "membership_status"

	OperationRefresh = "refresh"
)

// Item represents a write that should be replayed when primary storage is back.
type Item struct {
	ID           string          `json:"id"`
	MembershipID string          `json:"membership_id"`
	Entity       string          `json:"entity"`
	Operation    string          `json:"operation"`
	Data         json.RawMessage `json:"data"`
	Priority     int             `json:"priority"`
	Retries      int             `json:"retries"`
	Timestamp    time.Time       `json:"timestamp"`
	// RecordedAt is when the value was produced. Requeues keep it, so an older value
	// never replaces a newer one.
	RecordedAt time.Time `json:"recorded_at"`

	bucketKey []byte
}

// StatusPayload is the data of an EntityMembershipStatus item.
type StatusPayload struct {
	Status string `json:"status"`
}

func (i *Item) normalize() {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	if i.Priority <= 0 || i.Priority > 5 {
		i.Priority = 3
	}
	if i.Timestamp.IsZero() {
		i.Timestamp = time.Now()
	}
	if i.RecordedAt.IsZero() {
		i.RecordedAt = i.Timestamp
	}
}
