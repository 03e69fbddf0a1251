package domain

import (
	"time"
)

// Status is the derived lifecycle state of a membership.
type Status string

const (
	StatusActive    Status = "active"
	StatusExpiring  Status = "expiring"
	StatusExpired   Status = "expired"
	StatusRenewed   Status = "renewed"
	StatusCancelled Status = "cancelled"
)

// DefaultExpiringWindow is how long before ValidUntil a membership reports as expiring.
const DefaultExpiringWindow = 30 * 24 * time.Hour

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusExpiring, StatusExpired, StatusRenewed, StatusCancelled:
		return true
	}
	return false
}

// Eligible reports whether a membership in this status may redeem benefits.
func (s Status) Eligible() bool {
	return s != StatusCancelled && s != StatusExpired
}

// Vehicle is one purchase record in a membership's vehicle history.
type Vehicle struct {
	ID           string    `json:"id"`
	Brand        string    `json:"brand"`
	Model        string    `json:"model"`
	Year         int       `json:"year"`
	Plate        string    `json:"plate"`
	PurchaseDate time.Time `json:"purchase_date"`
	CreatedAt    time.Time `json:"created_at"`
}

// Membership is a client's VIP record. StoreID never changes after creation.
type Membership struct {
	ID             string     `json:"id"`
	ClientName     string     `json:"client_name"`
	ContactInfo    string     `json:"contact_info"`
	StoreID        string     `json:"store_id"`
	DigitalCode    string     `json:"digital_code"`
	PhysicalCode   string     `json:"physical_code,omitempty"`
	ActivationDate time.Time  `json:"activation_date"`
	ValidUntil     time.Time  `json:"valid_until"`
	Status         Status     `json:"status"`
	RenewalDate    *time.Time `json:"renewal_date,omitempty"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`
	Vehicles       []Vehicle  `json:"vehicles,omitempty"`
	Version        int        `json:"version"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// IsCancelled reports whether the terminal cancelled flag is set.
func (m *Membership) IsCancelled() bool {
	return m != nil && m.CancelledAt != nil
}

// ComputeStatus derives the authoritative status of m at now. It is pure: the
// stored Status field is never consulted.
func ComputeStatus(m *Membership, now time.Time, expiringWindow time.Duration) Status {
	switch {
	case m.IsCancelled():
		return StatusCancelled
	case m.RenewalDate != nil && !now.After(m.ValidUntil):
		return StatusRenewed
	case now.After(m.ValidUntil):
		return StatusExpired
	case m.ValidUntil.Sub(now) <= expiringWindow:
		return StatusExpiring
	default:
		return StatusActive
	}
}

// InWindow reports whether t falls inside the membership's validity window.
func (m *Membership) InWindow(t time.Time) bool {
	return !t.Before(m.ActivationDate) && !t.After(m.ValidUntil)
}

// Refresh recomputes the cached Status and reports whether it changed.
func (m *Membership) Refresh(now time.Time, expiringWindow time.Duration) bool {
	status := ComputeStatus(m, now, expiringWindow)
	if status == m.Status {
		return false
	}
	m.Status = status
	return true
}

// Renew replaces the validity window end. The membership must not be cancelled and
// the new end must lie in the future.
func (m *Membership) Renew(newValidUntil, now time.Time, expiringWindow time.Duration) error {
	if m.IsCancelled() {
		return ErrInvalidRenewal.With("membership %s is cancelled", m.ID)
	}
	if !newValidUntil.After(now) {
		return ErrInvalidRenewal.With("new validity end must be after %s", now.UTC().Format(time.RFC3339))
	}
	if newValidUntil.Before(m.ActivationDate) {
		return ErrInvalidRenewal.With("new validity end precedes activation date")
	}
	renewedAt := now
	m.RenewalDate = &renewedAt
	m.ValidUntil = newValidUntil
	m.Status = ComputeStatus(m, now, expiringWindow)
	return nil
}

// Cancel sets the terminal cancelled flag. Cancelling twice is reported, not ignored.
func (m *Membership) Cancel(now time.Time) error {
	if m.IsCancelled() {
		return ErrAlreadyCancelled.With("membership %s", m.ID)
	}
	cancelledAt := now
	m.CancelledAt = &cancelledAt
	m.Status = StatusCancelled
	return nil
}

// HasCode reports whether code is one of the membership's live codes.
func (m *Membership) HasCode(code string) bool {
	return code != "" && (m.DigitalCode == code || m.PhysicalCode == code)
}

// MinVehicleYear is the oldest model year accepted in the vehicle history.
const MinVehicleYear = 1950

// ValidateVehicle checks a purchase record before it joins the history.
func ValidateVehicle(v *Vehicle, now time.Time) error {
	if v == nil {
		return ErrInvalidPayload
	}
	problems := map[string][]string{}
	if v.Brand == "" {
		problems["brand"] = append(problems["brand"], "This field is required")
	}
	if v.Model == "" {
		problems["model"] = append(problems["model"], "This field is required")
	}
	if v.Plate == "" {
		problems["plate"] = append(problems["plate"], "This field is required")
	}
	if v.Year < MinVehicleYear || v.Year > now.Year()+1 {
		problems["year"] = append(problems["year"], "Year is out of range")
	}
	if !v.PurchaseDate.IsZero() && v.PurchaseDate.After(now) {
		problems["purchase_date"] = append(problems["purchase_date"], "Purchase date is in the future")
	}
	if len(problems) > 0 {
		return Validation("invalid vehicle", problems)
	}
	return nil
}
