package order

import (
	"github.com/xenking/order-lifecycle/internal/domain/auth"
)

// Action is an operation gated by Authorize.
type Action int

const (
	ActionView Action = iota + 1
	ActionUpdate
	ActionCancel
	ActionSetStatus
)

func (a Action) String() string {
	switch a {
	case ActionView:
		return "view"
	case ActionUpdate:
		return "update"
	case ActionCancel:
		return "cancel"
	case ActionSetStatus:
		return "set status"
	default:
		return "unknown"
	}
}

// Authorize decides whether the requester may perform the action on the order.
// It has no side effects: a nil result allows the action, otherwise the error
// wraps ErrForbidden for ownership or role violations and ErrBadRequest for
// structurally invalid input or writes to closed orders.
//
// Cancellation of an already cancelled order is allowed for anyone who can see
// the order; the caller turns it into a no-op.
func Authorize(r *auth.Requester, o *Order, action Action) error {
	if r == nil || r.ID <= 0 {
		return badRequest("requester is required")
	}
	if o == nil {
		return badRequest("order is required")
	}

	switch action {
	case ActionView:
		if !canView(r, o) {
			return forbidden("not allowed to view order %s", o.Number)
		}
		return nil
	case ActionUpdate:
		if !canView(r, o) {
			return forbidden("not allowed to update order %s", o.Number)
		}
		if (o.Status == StatusCancelled || o.Status == StatusDelivered) && !r.Role.Privileged() {
			return badRequest("order %s is %s and can no longer be edited", o.Number, o.Status)
		}
		return nil
	case ActionSetStatus:
		switch {
		case r.Role.Privileged():
			return nil
		case r.Role == auth.RoleStaff && r.InBranch(o.BranchID):
			return nil
		default:
			return forbidden("not allowed to change status of order %s", o.Number)
		}
	case ActionCancel:
		if !canView(r, o) {
			return forbidden("not allowed to cancel order %s", o.Number)
		}
		return nil
	default:
		return badRequest("unknown action %d", int(action))
	}
}

func canView(r *auth.Requester, o *Order) bool {
	switch {
	case r.Role.Privileged():
		return true
	case r.Role == auth.RoleStaff && r.InBranch(o.BranchID):
		return true
	default:
		return r.ID == o.UserID
	}
}
