package user

import (
	"database/sql"
	"errors"
	"time"
)

var ErrNotFound = errors.New("user not found")

// User represents a salesperson in the system.
type User struct {
	ID             string
	Name           string
	TelegramChatID sql.NullInt64 // Set once the user has linked the bot
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
