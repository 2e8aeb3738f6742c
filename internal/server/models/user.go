package models

import "time"

// User is an account that can authenticate and own uploaded files.
// ID is the identity carried in the access token's "id" claim.
type User struct {
	ID           string
	Email        string
	Name         string
	Role         string
	PasswordHash []byte
	CreatedAt    time.Time
}
