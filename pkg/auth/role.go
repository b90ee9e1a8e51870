package auth

type Role string

const (
	RoleBuyer     Role = "buyer"
	RoleShopOwner Role = "shop_owner"
)

func (r Role) Valid() bool {
	switch r {
	case RoleBuyer, RoleShopOwner:
		return true
	default:
		return false
	}
}

func ParseRole(s string) (Role, bool) {
	r := Role(s)
	return r, r.Valid()
}
