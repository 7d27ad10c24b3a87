package users

import "context"

// Repo is the data-access interface to the user directory. User management
// itself lives outside this service.
type Repo interface {
	Get(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Upsert(ctx context.Context, user *User) error
}
