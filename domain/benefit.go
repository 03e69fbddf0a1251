package domain

import (
	"strings"
	"time"
)

// Variant tells official (partner-backed) benefits from store (dealership) benefits.
type Variant string

const (
	VariantOfficial Variant = "oficial"
	VariantStore    Variant = "loja"
)

func (v Variant) Valid() bool {
	return v == VariantOfficial || v == VariantStore
}

// Benefit is a perk redeemable with a VIP card. Exactly one of PartnerID and StoreID
// is set, according to Variant.
type Benefit struct {
	ID          string    `json:"id"`
	Variant     Variant   `json:"variant"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	PartnerID   string    `json:"partner_id,omitempty"`
	StoreID     string    `json:"store_id,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewOfficialBenefit builds an active benefit owned by a mall-wide partner.
func NewOfficialBenefit(name, description, partnerID string) (*Benefit, error) {
	b := &Benefit{
		Variant:     VariantOfficial,
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
		PartnerID:   strings.TrimSpace(partnerID),
		Active:      true,
	}
	return b, b.Validate()
}

// NewStoreBenefit builds an active benefit owned by a single dealership.
func NewStoreBenefit(name, description, storeID string) (*Benefit, error) {
	b := &Benefit{
		Variant:     VariantStore,
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
		StoreID:     strings.TrimSpace(storeID),
		Active:      true,
	}
	return b, b.Validate()
}

// Validate enforces the two-variant shape.
func (b *Benefit) Validate() error {
	problems := map[string][]string{}
	if b.Name == "" {
		problems["name"] = append(problems["name"], "This field is required")
	}
	switch b.Variant {
	case VariantOfficial:
		if b.PartnerID == "" {
			problems["partner_id"] = append(problems["partner_id"], "This field is required")
		}
		if b.StoreID != "" {
			problems["store_id"] = append(problems["store_id"], "Official benefits have no store")
		}
	case VariantStore:
		if b.StoreID == "" {
			problems["store_id"] = append(problems["store_id"], "This field is required")
		}
		if b.PartnerID != "" {
			problems["partner_id"] = append(problems["partner_id"], "Store benefits have no partner")
		}
	default:
		problems["variant"] = append(problems["variant"], "Unknown benefit variant")
	}
	if len(problems) > 0 {
		return Validation("invalid benefit", problems)
	}
	return nil
}

// AvailableTo reports whether the benefit belongs to the eligible set of m, ignoring
// the active flag: every official benefit, and store benefits of m's own store.
func (b *Benefit) AvailableTo(m *Membership) bool {
	switch b.Variant {
	case VariantOfficial:
		return true
	case VariantStore:
		return m != nil && b.StoreID == m.StoreID
	}
	return false
}

// InScope is the redemption scope check: official benefits must be validated by
// their own partner, store benefits only against memberships of their store.
func (b *Benefit) InScope(m *Membership, partnerID string) bool {
	if !b.AvailableTo(m) {
		return false
	}
	if b.Variant == VariantOfficial {
		return partnerID != "" && b.PartnerID == partnerID
	}
	return true
}

// ValidatableByPartner reports whether a partner terminal may redeem the benefit for m.
// Partner terminals only validate their own official benefits.
func (b *Benefit) ValidatableByPartner(m *Membership, partnerID string) bool {
	return b.Variant == VariantOfficial && b.InScope(m, partnerID)
}
