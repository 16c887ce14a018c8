package client

import (
	"database/sql"
	"errors"
	"time"
)

var ErrNotFound = errors.New("client not found")

// Client is a sales contact tracked by a salesperson.
type Client struct {
	ID             string
	UserID         string // Owning salesperson
	Name           string
	NextFollowUpAt sql.NullTime // At most one follow-up date at a time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
