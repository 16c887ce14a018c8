package client

import "context"

// Repository defines the operations for persisting and retrieving Client entities.
type Repository interface {
	Create(ctx context.Context, c *Client) error
	GetByID(ctx context.Context, id string) (*Client, error)
	Update(ctx context.Context, c *Client) error
	Delete(ctx context.Context, id string) error
}
