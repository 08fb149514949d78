// Package entity defines the domain entities for the auth feature.
package entity

import "time"

// User represents a registered account.
// Email is unique across all users; Password only ever holds a bcrypt hash.
type User struct {
	// ID is an opaque identifier (UUID) referenced by books and ratings.
	ID string `gorm:"primaryKey;size:36"`

	// Email is the login identity.
	Email string `gorm:"uniqueIndex;size:255;not null"`

	// Password is the bcrypt hash of the user's password.
	Password string `gorm:"size:255;not null"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
