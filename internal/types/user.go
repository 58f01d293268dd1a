package types

import (
	"fmt"
	"strings"
	"time"
)

// Role is the single authorization role a user holds.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleEmployee Role = "employee"
	RoleCitizen  Role = "citizen"
)

// Roles lists every role in display order.
var Roles = []Role{RoleAdmin, RoleEmployee, RoleCitizen}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleEmployee, RoleCitizen:
		return true
	}
	return false
}

// ParseRole converts a free-form string into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Address is always sent and received as a whole by the backend.
type Address struct {
	City     string `json:"city" example:"Athens"`
	Street   string `json:"street" example:"Ermou"`
	Number   string `json:"number" example:"12"`
	Postcode string `json:"postcode" example:"10563"`
}

// User is the central entity of the portal.
type User struct {
	ID          string    `json:"id" example:"665f1c2e9b1d4a0012a3b4c5"` // Server assigned, immutable.
	Username    string    `json:"username" example:"anna"`
	Email       string    `json:"email" example:"anna@example.com"`
	Firstname   string    `json:"firstname" example:"Anna"`
	Lastname    string    `json:"lastname" example:"Papadopoulou"`
	PhoneNumber string    `json:"phoneNumber" example:"6912345678"`
	SSN         string    `json:"ssn" example:"123456789"`
	Address     Address   `json:"address"`
	Role        Role      `json:"role" example:"citizen"`
	Active      bool      `json:"active"` // Enforced by the server, only reflected here.
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// UserPatch is a partial User keyed by ID. Nil fields are left untouched
// when applied; Address is replaced wholesale when present.
type UserPatch struct {
	ID          string
	Username    *string
	Email       *string
	Firstname   *string
	Lastname    *string
	PhoneNumber *string
	SSN         *string
	Address     *Address
	Role        *Role
	Active      *bool
	CreatedAt   *time.Time
	UpdatedAt   *time.Time
}

// PatchFromUser builds a patch that carries every field of u.
func PatchFromUser(u User) UserPatch {
	addr := u.Address
	role := u.Role
	active := u.Active
	createdAt := u.CreatedAt
	updatedAt := u.UpdatedAt
	return UserPatch{
		ID:          u.ID,
		Username:    &u.Username,
		Email:       &u.Email,
		Firstname:   &u.Firstname,
		Lastname:    &u.Lastname,
		PhoneNumber: &u.PhoneNumber,
		SSN:         &u.SSN,
		Address:     &addr,
		Role:        &role,
		Active:      &active,
		CreatedAt:   &createdAt,
		UpdatedAt:   &updatedAt,
	}
}

// Apply shallow-merges p into a copy of u. The ID of an existing user is
// never rewritten.
func (u User) Apply(p UserPatch) User {
	if u.ID == "" {
		u.ID = p.ID
	}
	if p.Username != nil {
		u.Username = *p.Username
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.Firstname != nil {
		u.Firstname = *p.Firstname
	}
	if p.Lastname != nil {
		u.Lastname = *p.Lastname
	}
	if p.PhoneNumber != nil {
		u.PhoneNumber = *p.PhoneNumber
	}
	if p.SSN != nil {
		u.SSN = *p.SSN
	}
	if p.Address != nil {
		u.Address = *p.Address
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
	if p.Active != nil {
		u.Active = *p.Active
	}
	if p.CreatedAt != nil {
		u.CreatedAt = *p.CreatedAt
	}
	if p.UpdatedAt != nil {
		u.UpdatedAt = *p.UpdatedAt
	}
	return u
}

// UpdateUserParams is the PATCH body for /users/me and /users/:id.
// Pointers distinguish "not provided" from an empty value.
type UpdateUserParams struct {
	Username    *string        `json:"username,omitempty" validate:"omitempty,min=2,max=20"`
	Email       *string        `json:"email,omitempty" validate:"omitempty,email"`
	Firstname   *string        `json:"firstname,omitempty" validate:"omitempty,min=2,max=50"`
	Lastname    *string        `json:"lastname,omitempty" validate:"omitempty,min=2,max=50"`
	PhoneNumber *string        `json:"phoneNumber,omitempty" validate:"omitempty,digits,len=10"`
	Address     *AddressParams `json:"address,omitempty"`
	SSN         *string        `json:"ssn,omitempty" validate:"omitempty,digits,len=9"`
}

// AddressParams is the partial address accepted by profile updates.
type AddressParams struct {
	City     *string `json:"city,omitempty" validate:"omitempty,min=2,max=50"`
	Street   *string `json:"street,omitempty" validate:"omitempty,max=50"`
	Number   *string `json:"number,omitempty" validate:"omitempty,max=10"`
	Postcode *string `json:"postcode,omitempty" validate:"omitempty,digits,len=5"`
}

// Normalize trims every provided string field in place.
func (p *UpdateUserParams) Normalize() {
	for _, s := range []*string{p.Username, p.Email, p.Firstname, p.Lastname, p.PhoneNumber, p.SSN} {
		trimPtr(s)
	}
	if p.Address != nil {
		trimPtr(p.Address.City)
		trimPtr(p.Address.Street)
		trimPtr(p.Address.Number)
		trimPtr(p.Address.Postcode)
	}
}

// Empty reports whether the update carries no field at all.
func (p UpdateUserParams) Empty() bool {
	return p.Username == nil && p.Email == nil && p.Firstname == nil && p.Lastname == nil &&
		p.PhoneNumber == nil && p.SSN == nil && p.Address == nil
}

func trimPtr(s *string) {
	if s != nil {
		*s = strings.TrimSpace(*s)
	}
}

// ToggleActiveData is the payload of PATCH /users/:id/active.
type ToggleActiveData struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Active   bool   `json:"active"`
}

// ChangeRoleData is the payload of PATCH /users/:id/role.
type ChangeRoleData struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// DeletedUserData is the payload of DELETE /users/:id.
type DeletedUserData struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// ChangeRoleRequest is the body of PATCH /users/:id/role.
type ChangeRoleRequest struct {
	Role Role `json:"role" validate:"required,oneof=admin employee citizen"`
}
