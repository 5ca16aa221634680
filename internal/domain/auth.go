package domain

import "time"

// Identity is the verified caller attached to a request. It is never mutated
// after the auth middleware resolves it.
type Identity struct {
	SubjectID string
	Role      Role
	Status    UserStatus
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// IssuedToken is what login hands back to the client.
type IssuedToken struct {
	Value    string
	Identity Identity
}
