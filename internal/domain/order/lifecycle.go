package order

import (
	"slices"

	"github.com/xenking/order-lifecycle/internal/domain/auth"
)

// transitions is the forward-only status graph. Statuses without an entry
// accept no outgoing transition.
var transitions = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered, StatusCancelled},
	StatusDelivered:  {StatusReturned},
}

// Statuses from which an order may be cancelled, per role.
var (
	privilegedCancellable = []Status{StatusPending, StatusConfirmed, StatusProcessing, StatusShipped}
	staffCancellable      = []Status{StatusPending, StatusConfirmed, StatusProcessing}
	customerCancellable   = []Status{StatusPending}
)

// Terminal reports whether no further work happens on an order in this status.
func (s Status) Terminal() bool {
	switch s {
	case StatusDelivered, StatusCancelled, StatusReturned:
		return true
	default:
		return false
	}
}

// CanTransition checks that an order may move from one status to another.
// Leaving DELIVERED is only possible through a return, which needs a
// privileged role.
func CanTransition(role auth.Role, from, to Status) error {
	if !slices.Contains(transitions[from], to) {
		return &TransitionError{From: from, To: to}
	}
	if from == StatusDelivered && !role.Privileged() {
		return &TransitionError{From: from, To: to}
	}
	if to == StatusCancelled && !Cancellable(role, from) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

// Cancellable reports whether the role may cancel an order in the given status.
func Cancellable(role auth.Role, current Status) bool {
	switch {
	case role.Privileged():
		return slices.Contains(privilegedCancellable, current)
	case role == auth.RoleStaff:
		return slices.Contains(staffCancellable, current)
	case role == auth.RoleCustomer:
		return slices.Contains(customerCancellable, current)
	default:
		return false
	}
}
