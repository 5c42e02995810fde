package models

import "time"

// User is the local identity bound 1:1 to an externally issued user id.
type User struct {
	ID             string
	ExternalUserID string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
