package services

import (
	"github.com/sahilchouksey/school-backoffice/model"
)

// AuthContext identifies the staff member behind a call. Every core
// operation takes one explicitly instead of reading session state.
type AuthContext struct {
	UserID   uint
	Role     string
	SchoolID *uint
	IP       string
}

// SystemContext is used by background jobs
func SystemContext() AuthContext {
	return AuthContext{Role: model.RoleSuperAdmin}
}

// IsAdmin reports whether the caller administers the back office
func (a AuthContext) IsAdmin() bool {
	return a.Role == model.RoleAdmin || a.Role == model.RoleSuperAdmin
}

// RequireAdmin gates program and curriculum changes
func (a AuthContext) RequireAdmin() error {
	if !a.IsAdmin() {
		return ErrForbidden
	}
	return nil
}

// RequireFinanceAdmin gates ledger writes
func (a AuthContext) RequireFinanceAdmin() error {
	if a.IsAdmin() || a.Role == model.RoleFinance {
		return nil
	}
	return ErrForbidden
}

// RequireStaff gates read access to financial records
func (a AuthContext) RequireStaff() error {
	switch a.Role {
	case model.RoleSuperAdmin, model.RoleAdmin, model.RoleFinance, model.RoleRegistrar:
		return nil
	}
	return ErrForbidden
}
