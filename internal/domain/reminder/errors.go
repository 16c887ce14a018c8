package reminder

import "errors"

var (
	ErrInvalidInput  = errors.New("invalid reminder input")
	ErrNotFound      = errors.New("reminder not found")
	ErrPendingExists = errors.New("client already has a pending reminder")
	ErrNotPending    = errors.New("reminder is no longer pending")
)
