// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	"github.com/taibuivan/bizmap/internal/platform/constants"
)

// # User Roles

// UserRole represents the account type the backend assigns to a user.
type UserRole string

const (
	// Default role for people looking for businesses
	RoleCustomer UserRole = "customer"

	// Can register and manage their own business listings
	RoleBusinessOwner UserRole = "business_owner"

	// Unrestricted access to the admin panel
	RoleAdmin UserRole = "admin"
)

// Valid reports whether r is one of the known roles.
func (r UserRole) Valid() bool {
	switch r {
	case RoleCustomer, RoleBusinessOwner, RoleAdmin:
		return true
	}
	return false
}

// LandingRoute is the page a fully authenticated user of this role lands on.
func (r UserRole) LandingRoute() string {
	switch r {
	case RoleBusinessOwner:
		return constants.RouteBusinessDashboard
	case RoleAdmin:
		return constants.RouteAdminDashboard
	default:
		return constants.RouteDashboard
	}
}

// # Permissions

const (
	PermCreateBusiness   = "create_business"
	PermManageBusinesses = "manage_businesses"
	PermViewAdminPanel   = "view_admin_panel"
)

const permissionModel = `
[request_definition]
r = sub, act

[policy_definition]
p = sub, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.act == p.act
`

// rolePolicies is the complete grant table. Anything not listed is denied.
var rolePolicies = [][]string{
	{string(RoleBusinessOwner), PermCreateBusiness},
	{string(RoleBusinessOwner), PermManageBusinesses},
	{string(RoleAdmin), PermManageBusinesses},
	{string(RoleAdmin), PermViewAdminPanel},
}

// Permissions maps roles to the fixed permission set using a casbin enforcer.
type Permissions struct {
	enforcer *casbin.Enforcer
}

// NewPermissions builds the enforcer from the built-in model and grant table.
func NewPermissions() (*Permissions, error) {
	m, err := model.NewModelFromString(permissionModel)
	if err != nil {
		return nil, fmt.Errorf("sec: failed to parse permission model: %w", err)
	}

	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("sec: failed to create enforcer: %w", err)
	}

	for _, rule := range rolePolicies {
		if _, err := enforcer.AddPolicy(rule[0], rule[1]); err != nil {
			return nil, fmt.Errorf("sec: failed to add policy %v: %w", rule, err)
		}
	}

	return &Permissions{enforcer: enforcer}, nil
}

// Allowed reports whether role holds perm. Enforcement errors deny.
func (p *Permissions) Allowed(role UserRole, perm string) bool {
	if !role.Valid() || perm == "" {
		return false
	}
	ok, err := p.enforcer.Enforce(string(role), perm)
	return err == nil && ok
}
