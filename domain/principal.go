package domain

// Role is an account role. Menu and API access derive from a static capability set
// per role rather than from branching at call sites.
type Role string

const (
	RoleAdmin         Role = "admin"
	RoleAdminShopping Role = "admin_shopping"
	RoleLojista       Role = "lojista"
	RoleVendedor      Role = "vendedor"
	RoleParceiro      Role = "parceiro"
)

func (r Role) Valid() bool {
	_, ok := roleCapabilities[r]
	return ok
}

// Capability is a single permission bit.
type Capability int64

const (
	CapCreateMembership Capability = 1 << iota
	CapManageMembership
	CapViewMemberships
	CapLookupCode
	CapManageOfficialBenefits
	CapManageStoreBenefits
	CapViewBenefits
	CapValidateRedemption
	CapViewRedemptions
)

var roleCapabilities = map[Role]Capability{
	RoleAdmin: CapCreateMembership | CapManageMembership | CapViewMemberships | CapLookupCode |
		CapManageOfficialBenefits | CapManageStoreBenefits | CapViewBenefits | CapViewRedemptions,
	RoleAdminShopping: CapCreateMembership | CapManageMembership | CapViewMemberships | CapLookupCode |
		CapManageOfficialBenefits | CapManageStoreBenefits | CapViewBenefits | CapViewRedemptions,
	RoleLojista: CapCreateMembership | CapManageMembership | CapViewMemberships | CapLookupCode |
		CapManageStoreBenefits | CapViewBenefits | CapValidateRedemption | CapViewRedemptions,
	RoleVendedor: CapCreateMembership | CapViewMemberships | CapLookupCode | CapViewBenefits | CapViewRedemptions,
	RoleParceiro: CapLookupCode | CapViewBenefits | CapValidateRedemption | CapViewRedemptions,
}

// Capabilities returns the capability set of a role. Unknown roles get none.
func Capabilities(r Role) Capability {
	return roleCapabilities[r]
}

// Principal is the authenticated caller. It is passed explicitly into every use case.
type Principal struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	StoreID   string `json:"store_id,omitempty"`
	PartnerID string `json:"partner_id,omitempty"`
}

// Can reports whether the principal holds every capability in c.
func (p Principal) Can(c Capability) bool {
	return c != 0 && Capabilities(p.Role)&c == c
}

// Require returns ErrForbidden unless the principal holds c.
func (p Principal) Require(c Capability) error {
	if p.ID == "" {
		return ErrUnauthorized
	}
	if !p.Can(c) {
		return ErrForbidden.With("role %q", p.Role)
	}
	return nil
}

// StoreBound reports whether the principal only sees data of its own store.
func (p Principal) StoreBound() bool {
	return p.Role == RoleLojista || p.Role == RoleVendedor
}

// IsMallAdmin reports whether the principal administers the whole mall.
func (p Principal) IsMallAdmin() bool {
	return p.Role == RoleAdmin || p.Role == RoleAdminShopping
}

// CanAccessStore reports whether store-scoped data of storeID is visible to the principal.
func (p Principal) CanAccessStore(storeID string) bool {
	if p.IsMallAdmin() {
		return true
	}
	return p.StoreBound() && p.StoreID != "" && p.StoreID == storeID
}
