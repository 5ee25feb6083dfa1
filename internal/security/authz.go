package security

import (
	"fmt"

	"github.com/armelgeek/better-query/internal/orm/hooks"
)

// OwnershipStrategy decides who may act on an owned record
type OwnershipStrategy string

const (
	// Strict allows only the owner
	Strict OwnershipStrategy = "strict"
	// Flexible allows the owner and users carrying an admin scope or role
	Flexible OwnershipStrategy = "flexible"
)

// DefaultAdminScopes are the scopes treated as admin when none are configured
var DefaultAdminScopes = []string{"admin"}

// HasRequiredScopes reports whether every required scope is present. It is
// vacuously true when nothing is required.
func HasRequiredScopes(userScopes, required []string) bool {
	if len(required) == 0 {
		return true
	}
	have := make(map[string]bool, len(userScopes))
	for _, s := range userScopes {
		have[s] = true
	}
	for _, s := range required {
		if !have[s] {
			return false
		}
	}
	return true
}

// IsAdmin reports whether the user or the request scopes carry one of the
// admin scopes. Roles count as scopes.
func IsAdmin(user *hooks.User, scopes, adminScopes []string) bool {
	if len(adminScopes) == 0 {
		adminScopes = DefaultAdminScopes
	}
	admin := make(map[string]bool, len(adminScopes))
	for _, s := range adminScopes {
		admin[s] = true
	}
	for _, s := range scopes {
		if admin[s] {
			return true
		}
	}
	if user == nil {
		return false
	}
	for _, list := range [][]string{user.Scopes, user.Roles} {
		for _, s := range list {
			if admin[s] {
				return true
			}
		}
	}
	return false
}

// CheckOwnership reports whether user may act on record, whose owner id is
// stored in field
func CheckOwnership(strategy OwnershipStrategy, record map[string]interface{}, field string, user *hooks.User, adminScopes []string) bool {
	if user == nil {
		return false
	}
	if owner, ok := record[field]; ok && owner != nil && user.ID != "" && fmt.Sprint(owner) == user.ID {
		return true
	}
	return strategy == Flexible && IsAdmin(user, nil, adminScopes)
}
