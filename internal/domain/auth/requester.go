package auth

import (
	"context"
	"strings"
)

// Role enumerates the actor kinds recognised by order authorization.
type Role string

const (
	RoleCustomer  Role = "CUSTOMER"
	RoleStaff     Role = "STAFF"
	RoleShopOwner Role = "SHOP_OWNER"
	RoleAdmin     Role = "ADMIN"
)

// ParseRole maps a claim value to a Role. Unknown values report false.
func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RoleCustomer, RoleStaff, RoleShopOwner, RoleAdmin:
		return r, true
	default:
		return "", false
	}
}

// Privileged reports whether the role has shop-wide authority over orders.
func (r Role) Privileged() bool {
	return r == RoleAdmin || r == RoleShopOwner
}

// Requester is the authenticated actor performing an order operation.
type Requester struct {
	ID       int64
	Role     Role
	BranchID *int64
}

// InBranch reports whether the requester is scoped to the given branch.
// A nil branch on either side never matches.
func (r *Requester) InBranch(branchID *int64) bool {
	if r == nil || r.BranchID == nil || branchID == nil {
		return false
	}
	return *r.BranchID == *branchID
}

type requesterKey struct{}

// WithRequester returns a copy of ctx carrying the requester.
func WithRequester(ctx context.Context, r *Requester) context.Context {
	return context.WithValue(ctx, requesterKey{}, r)
}

// RequesterFromContext extracts the requester stored by WithRequester.
func RequesterFromContext(ctx context.Context) (*Requester, bool) {
	r, ok := ctx.Value(requesterKey{}).(*Requester)
	return r, ok && r != nil
}
