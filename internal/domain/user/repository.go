package user

import "context"

// Repository defines the operations for persisting and retrieving User entities.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByTelegramChatID(ctx context.Context, chatID int64) (*User, error)
}
