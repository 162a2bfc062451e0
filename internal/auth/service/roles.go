package service

import (
	"errors"
	"slices"
)

var (
	ErrRoleNotAllowed        = errors.New("role_not_allowed")
	ErrDefaultRoleNotAllowed = errors.New("default_role_not_allowed")
)

// RolesService resolves requested role sets against the deployment's role
// universe. It is pure configuration, no storage behind it.
type RolesService struct {
	// Universe is every role the deployment knows about.
	Universe []string
	// DefaultRole is the role assumed when a request names none.
	DefaultRole string
	// DefaultAllowed is the allowed set granted when a request names none.
	DefaultAllowed []string
	// AnonymousRole is the single role granted to anonymous identities.
	AnonymousRole string
}

// Resolve validates a requested role selection and fills in defaults.
// Every requested role must be inside the universe, and the resolved default
// must be a member of the resolved allowed set.
func (s *RolesService) Resolve(defaultRole string, allowedRoles []string) (string, []string, error) {
	if defaultRole == "" {
		defaultRole = s.DefaultRole
	}
	if len(allowedRoles) == 0 {
		allowedRoles = slices.Clone(s.DefaultAllowed)
	}

	for _, r := range allowedRoles {
		if !slices.Contains(s.Universe, r) {
			return "", nil, ErrRoleNotAllowed
		}
	}
	if !slices.Contains(s.Universe, defaultRole) {
		return "", nil, ErrRoleNotAllowed
	}
	if !slices.Contains(allowedRoles, defaultRole) {
		return "", nil, ErrDefaultRoleNotAllowed
	}

	return defaultRole, slices.Clone(allowedRoles), nil
}

// Anonymous returns the role set for anonymous identities.
func (s *RolesService) Anonymous() (string, []string) {
	return s.AnonymousRole, []string{s.AnonymousRole}
}
