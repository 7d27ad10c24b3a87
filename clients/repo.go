package clients

import "context"

// ListFilter narrows List results. Nil fields do not filter.
type ListFilter struct {
	IsActive     *bool
	IsFirstParty *bool
}

func (f ListFilter) Matches(c *Client) bool {
	if f.IsActive != nil && c.IsActive != *f.IsActive {
		return false
	}
	if f.IsFirstParty != nil && c.IsFirstParty != *f.IsFirstParty {
		return false
	}
	return true
}

// Repo is the data-access interface for clients. Implementations return the stored
// record including SecretHash regardless of IsActive, and ErrNotFound for unknown ids.
type Repo interface {
	Get(ctx context.Context, clientID string) (*Client, error)
	Create(ctx context.Context, client *Client) error
	Update(ctx context.Context, client *Client) error
	Delete(ctx context.Context, clientID string) error
	// List returns the clients matching filter, newest first.
	List(ctx context.Context, filter ListFilter) ([]*Client, error)
}
