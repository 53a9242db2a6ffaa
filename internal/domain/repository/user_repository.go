package repository

import (
	"errors"

	"github.com/labmetrixis/identity/internal/domain/entity"
)

var (
	// ErrNotFound is returned when no user matches the lookup.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicateEmail is returned by Create when the email unique
	// invariant would be violated.
	ErrDuplicateEmail = errors.New("email already registered")
)

// UserRepository defines the persistence contract for user records.
// Every operation touches exactly one row; the per-row write is the
// atomicity boundary.
type UserRepository interface {
	Create(u *entity.User) error
	GetByID(id string) (*entity.User, error)
	GetByEmail(email string) (*entity.User, error)
	Update(u *entity.User) error
}
