package domain

import "time"

// Role is the authorization role carried by a session
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Session is the client's record of being authenticated
type Session struct {
	Token     string
	Role      Role
	ExpiresAt time.Time
}

// Expired reports whether the session has passed its expiry at now
func (s Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
