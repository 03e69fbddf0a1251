package domain

import "time"

// Redemption records that a benefit was granted against a membership. Redemptions are
// immutable: there is no update or delete path.
type Redemption struct {
	ID           string    `json:"id"`
	MembershipID string    `json:"membership_id"`
	BenefitID    string    `json:"benefit_id"`
	PartnerID    string    `json:"partner_id,omitempty"`
	StoreID      string    `json:"store_id"`
	Variant      Variant   `json:"benefit_variant"`
	ValidatedBy  string    `json:"validated_by,omitempty"`
	RedeemedAt   time.Time `json:"redeemed_at"`
}
