package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Role is the closed set of roles a caller can hold.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleChef  Role = "chef"
	RoleUser  Role = "user"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleChef, RoleUser:
		return true
	default:
		return false
	}
}

// ParseRole accepts a stored or claimed role name.
func ParseRole(value string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", value)
	}
	return role, nil
}

// RoleSet is an immutable set of acceptable roles attached to a route.
type RoleSet struct {
	members map[Role]struct{}
}

// NewRoleSet builds a set from known roles. Unknown roles are a wiring bug
// and rejected at startup.
func NewRoleSet(roles ...Role) (RoleSet, error) {
	members := make(map[Role]struct{}, len(roles))
	for _, role := range roles {
		if !role.Valid() {
			return RoleSet{}, fmt.Errorf("unknown role %q", role)
		}
		members[role] = struct{}{}
	}
	return RoleSet{members: members}, nil
}

// MustRoleSet is NewRoleSet for route tables.
func MustRoleSet(roles ...Role) RoleSet {
	set, err := NewRoleSet(roles...)
	if err != nil {
		panic(err)
	}
	return set
}

// Allows reports whether role is a member.
func (s RoleSet) Allows(role Role) bool {
	_, ok := s.members[role]
	return ok
}

// Len returns the number of roles in the set.
func (s RoleSet) Len() int {
	return len(s.members)
}

func (s RoleSet) String() string {
	names := make([]string, 0, len(s.members))
	for role := range s.members {
		names = append(names, string(role))
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}
