package auth

import "time"

// Session is a stored login session. A fresh session is created on every
// successful sign-in and deleted on logout; deleting the record revokes any
// outstanding tokens that reference it.
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Implements storage.Model.
func (s Session) PK() string {
	return s.ID
}

// Expired reports whether the session is past its expiry.
func (s Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
