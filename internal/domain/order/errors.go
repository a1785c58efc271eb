package order

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"
)

// Error kinds. Every error returned by the Service for a rejected request
// wraps exactly one of these; the transport maps them to status codes.
var (
	ErrBadRequest = errors.New("bad request")
	ErrNotFound   = errors.New("order not found")
	ErrForbidden  = errors.New("forbidden")
)

// MissingReferenceError indicates that the order references an entity that
// does not exist.
type MissingReferenceError struct {
	Entity string
	IDs    []int64
}

func (e *MissingReferenceError) Error() string {
	ids := make([]string, len(e.IDs))
	for i, id := range e.IDs {
		ids[i] = fmt.Sprint(id)
	}
	return fmt.Sprintf("%s %s not found", e.Entity, strings.Join(ids, ", "))
}

// TransitionError indicates a status change the lifecycle does not allow.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot change status from %s to %s", e.From, e.To)
}

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBadRequest, fmt.Sprintf(format, args...))
}

func forbidden(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

// asBadRequest tags a detailed error with the bad request kind while keeping
// it reachable through errors.As.
func asBadRequest(err error) error {
	return fmt.Errorf("%w: %w", ErrBadRequest, err)
}
