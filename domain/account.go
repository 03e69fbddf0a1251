package domain

import "time"

// Account represents an authenticated identity in the platform.
type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name,omitempty"`
	Role         Role      `json:"role"`
	StoreID      string    `json:"store_id,omitempty"`
	PartnerID    string    `json:"partner_id,omitempty"`
	Status       string    `json:"status"`
	PasswordHash string    `json:"-"`
	PasswordSalt string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (a *Account) IsActive() bool {
	return a != nil && a.Status == "active"
}

// Principal returns the caller context carried by tokens issued for this account.
func (a *Account) Principal() Principal {
	return Principal{
		ID:        a.ID,
		Role:      a.Role,
		StoreID:   a.StoreID,
		PartnerID: a.PartnerID,
	}
}
