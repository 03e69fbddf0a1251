package transport

import "time"

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type VehicleRequest struct {
	Brand        string    `json:"brand" validate:"required,max=80"`
	Model        string    `json:"model" validate:"required,max=80"`
	Year         int       `json:"year" validate:"required,gte=1950"`
	Plate        string    `json:"plate" validate:"required,max=16"`
	PurchaseDate time.Time `json:"purchase_date" validate:"required"`
}

type CreateMembershipRequest struct {
	ClientName  string          `json:"client_name" validate:"required,max=200"`
	ContactInfo string          `json:"contact_info" validate:"required,max=200"`
	StoreID     string          `json:"store_id" validate:"omitempty,max=64"`
	Vehicle     *VehicleRequest `json:"vehicle" validate:"omitempty"`
}

type RenewRequest struct {
	ValidUntil time.Time `json:"valid_until" validate:"required"`
}

type OfficialBenefitRequest struct {
	Name        string `json:"name" validate:"required,max=120"`
	Description string `json:"description" validate:"max=1000"`
	PartnerID   string `json:"partner_id" validate:"required,max=64"`
}

type StoreBenefitRequest struct {
	Name        string `json:"name" validate:"required,max=120"`
	Description string `json:"description" validate:"max=1000"`
	StoreID     string `json:"store_id" validate:"omitempty,max=64"`
}

type BenefitPatchRequest struct {
	Active *bool `json:"active" validate:"required"`
}

type RedemptionRequest struct {
	Code      string `json:"code" validate:"required,max=64"`
	BenefitID string `json:"benefit_id" validate:"required,max=64"`
}
