package identity

import (
	"context"

	"github.com/google/uuid"
)

type PersonRepository interface {
	// Create inserts p, assigning ID and CreatedAt. Returns ErrEmailTaken
	// when the email is already registered.
	Create(ctx context.Context, p *Person) error
	GetByID(ctx context.Context, id uuid.UUID) (*Person, error)
	GetByEmail(ctx context.Context, email string) (*Person, error)
	// SetActive flips the logged-in flag and reports whether the row
	// changed. A false result means the flag already had that value.
	SetActive(ctx context.Context, id uuid.UUID, active bool) (bool, error)
	SearchPatients(ctx context.Context, f PatientFilter, limit, offset int) ([]*Person, int, error)
}

type UserTypeRepository interface {
	GetByName(ctx context.Context, name string) (*UserType, error)
	GetBySnomedCode(ctx context.Context, code string) (*UserType, error)
}
