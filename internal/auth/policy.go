// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EventDesk Contributors

package auth

import (
	"slices"
	"strings"
)

// SignupPolicy decides which roles a new user may pick for themselves.
// Anything else, including SUPER_ADMIN, is granted through ChangeUserRole.
type SignupPolicy struct {
	SelfAssignable []Role
}

// DefaultSignupPolicy lets users sign up as participants or organizers.
var DefaultSignupPolicy = SignupPolicy{
	SelfAssignable: []Role{RoleParticipant, RoleOrganizer},
}

// Resolve returns the role a signup request gets. The second result is false
// when a requested role was refused and PARTICIPANT was substituted.
func (p SignupPolicy) Resolve(requested string) (Role, bool) {
	if strings.TrimSpace(requested) == "" {
		return RoleParticipant, true
	}
	role, ok := ParseRole(requested)
	if !ok || !slices.Contains(p.SelfAssignable, role) {
		return RoleParticipant, false
	}
	return role, true
}
