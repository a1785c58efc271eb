package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/order-lifecycle/internal/domain/auth"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		role auth.Role
		from Status
		to   Status
		ok   bool
	}{
		{auth.RoleStaff, StatusPending, StatusConfirmed, true},
		{auth.RoleStaff, StatusConfirmed, StatusProcessing, true},
		{auth.RoleStaff, StatusProcessing, StatusShipped, true},
		{auth.RoleStaff, StatusShipped, StatusDelivered, true},
		{auth.RoleStaff, StatusPending, StatusShipped, false},
		{auth.RoleStaff, StatusConfirmed, StatusPending, false},
		{auth.RoleStaff, StatusShipped, StatusCancelled, false},
		{auth.RoleStaff, StatusDelivered, StatusReturned, false},
		{auth.RoleAdmin, StatusShipped, StatusCancelled, true},
		{auth.RoleAdmin, StatusDelivered, StatusReturned, true},
		{auth.RoleShopOwner, StatusDelivered, StatusReturned, true},
		{auth.RoleAdmin, StatusDelivered, StatusCancelled, false},
		{auth.RoleAdmin, StatusCancelled, StatusPending, false},
		{auth.RoleAdmin, StatusCancelled, StatusConfirmed, false},
		{auth.RoleAdmin, StatusReturned, StatusDelivered, false},
		{auth.RoleCustomer, StatusPending, StatusCancelled, true},
		{auth.RoleCustomer, StatusConfirmed, StatusCancelled, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			err := CanTransition(tt.role, tt.from, tt.to)
			if tt.ok {
				require.NoError(t, err)
				return
			}
			var trErr *TransitionError
			require.ErrorAs(t, err, &trErr)
			assert.Equal(t, tt.from, trErr.From)
			assert.Equal(t, tt.to, trErr.To)
		})
	}
}

func TestCancellable(t *testing.T) {
	all := []Status{
		StatusPending, StatusConfirmed, StatusProcessing, StatusShipped,
		StatusDelivered, StatusCancelled, StatusReturned,
	}
	allowed := map[auth.Role][]Status{
		auth.RoleCustomer:  {StatusPending},
		auth.RoleStaff:     {StatusPending, StatusConfirmed, StatusProcessing},
		auth.RoleShopOwner: {StatusPending, StatusConfirmed, StatusProcessing, StatusShipped},
		auth.RoleAdmin:     {StatusPending, StatusConfirmed, StatusProcessing, StatusShipped},
	}
	for role, statuses := range allowed {
		for _, st := range all {
			assert.Equal(t, contains(statuses, st), Cancellable(role, st), "%s cancelling %s", role, st)
		}
	}
	assert.False(t, Cancellable(auth.Role("GUEST"), StatusPending))
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusDelivered.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.True(t, StatusReturned.Terminal())
	assert.False(t, StatusShipped.Terminal())
}

func TestParseStatus(t *testing.T) {
	st, ok := ParseStatus(" shipped ")
	require.True(t, ok)
	assert.Equal(t, StatusShipped, st)

	_, ok = ParseStatus("LOST")
	assert.False(t, ok)
}

func contains(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
