package user

import "context"

// Directory resolves user IDs to delivery identities.
// Defined in the domain layer, implemented in the infrastructure layer.
type Directory interface {
	ByID(ctx context.Context, id int64) (*User, error)
}
