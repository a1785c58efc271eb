package order

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xenking/order-lifecycle/internal/domain/auth"
)

func TestAuthorize(t *testing.T) {
	branch1, branch2 := int64(1), int64(2)
	var (
		owner      = &auth.Requester{ID: 7, Role: auth.RoleCustomer}
		stranger   = &auth.Requester{ID: 8, Role: auth.RoleCustomer}
		staffLocal = &auth.Requester{ID: 3, Role: auth.RoleStaff, BranchID: &branch1}
		staffOther = &auth.Requester{ID: 4, Role: auth.RoleStaff, BranchID: &branch2}
		staffNone  = &auth.Requester{ID: 5, Role: auth.RoleStaff}
		shopOwner  = &auth.Requester{ID: 2, Role: auth.RoleShopOwner}
		adminUser  = &auth.Requester{ID: 1, Role: auth.RoleAdmin}
	)

	tests := []struct {
		name      string
		requester *auth.Requester
		status    Status
		action    Action
		kind      error // nil means allowed
	}{
		{"nil requester", nil, StatusPending, ActionView, ErrBadRequest},
		{"zero requester id", &auth.Requester{Role: auth.RoleAdmin}, StatusPending, ActionView, ErrBadRequest},
		{"unknown action", adminUser, StatusPending, Action(42), ErrBadRequest},

		{"owner views", owner, StatusPending, ActionView, nil},
		{"stranger views", stranger, StatusPending, ActionView, ErrForbidden},
		{"local staff views", staffLocal, StatusPending, ActionView, nil},
		{"other branch staff views", staffOther, StatusPending, ActionView, ErrForbidden},
		{"staff without branch views", staffNone, StatusPending, ActionView, ErrForbidden},
		{"shop owner views", shopOwner, StatusPending, ActionView, nil},
		{"admin views", adminUser, StatusDelivered, ActionView, nil},

		{"owner updates pending", owner, StatusPending, ActionUpdate, nil},
		{"stranger updates", stranger, StatusPending, ActionUpdate, ErrForbidden},
		{"owner updates cancelled", owner, StatusCancelled, ActionUpdate, ErrBadRequest},
		{"owner updates delivered", owner, StatusDelivered, ActionUpdate, ErrBadRequest},
		{"local staff updates delivered", staffLocal, StatusDelivered, ActionUpdate, ErrBadRequest},
		{"admin updates cancelled", adminUser, StatusCancelled, ActionUpdate, nil},

		{"owner sets status", owner, StatusPending, ActionSetStatus, ErrForbidden},
		{"stranger sets status", stranger, StatusPending, ActionSetStatus, ErrForbidden},
		{"local staff sets status", staffLocal, StatusPending, ActionSetStatus, nil},
		{"other branch staff sets status", staffOther, StatusPending, ActionSetStatus, ErrForbidden},
		{"shop owner sets status", shopOwner, StatusShipped, ActionSetStatus, nil},

		{"owner cancels", owner, StatusPending, ActionCancel, nil},
		{"owner cancels cancelled", owner, StatusCancelled, ActionCancel, nil},
		{"stranger cancels", stranger, StatusPending, ActionCancel, ErrForbidden},
		{"other branch staff cancels", staffOther, StatusPending, ActionCancel, ErrForbidden},
		{"admin cancels shipped", adminUser, StatusShipped, ActionCancel, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &Order{ID: 42, Number: "ORD-1", UserID: 7, BranchID: &branch1, Status: tt.status}
			err := Authorize(tt.requester, o, tt.action)
			if tt.kind == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.kind)
		})
	}
}

func TestAuthorize_NilOrder(t *testing.T) {
	err := Authorize(&auth.Requester{ID: 1, Role: auth.RoleAdmin}, nil, ActionView)
	require.ErrorIs(t, err, ErrBadRequest)
}
