package auth

import "github.com/go-faster/errors"

// ErrUserNotFound is returned when a user lookup has no match.
var ErrUserNotFound = errors.New("user not found")

// User is the contact view of an account.
type User struct {
	ID       int64
	Email    string
	FullName string
	Role     Role
	BranchID *int64
	Locale   string
}
