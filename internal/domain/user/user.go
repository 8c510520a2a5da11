package user

import "time"

// User is the account record. DeletedAt doubles as the account-deletion request:
// unset means active, in the future means pending, in the past means expired.
type User struct {
	ID        string
	Email     string
	DeletedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Profile holds the user-facing account details.
type Profile struct {
	UserID    string
	FullName  string
	Company   string
	CreatedAt time.Time
	UpdatedAt time.Time
}
