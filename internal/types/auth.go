package types

import "strings"

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	UsernameOrEmail string `json:"usernameOrEmail" validate:"required,username_or_email" example:"anna@example.com"`
	Password        string `json:"password" validate:"required,password" example:"Str0ng!pass"`
}

// Normalize trims the credentials.
func (r *LoginRequest) Normalize() {
	r.UsernameOrEmail = strings.TrimSpace(r.UsernameOrEmail)
	r.Password = strings.TrimSpace(r.Password)
}

// AddressInput is the full address required on registration.
type AddressInput struct {
	City     string `json:"city" validate:"required,min=2,max=50"`
	Street   string `json:"street" validate:"required,max=50"`
	Number   string `json:"number" validate:"required,max=10"`
	Postcode string `json:"postcode" validate:"required,digits,len=5"`
}

// RegisterRequest is the body of POST /register.
type RegisterRequest struct {
	Username    string       `json:"username" validate:"required,min=2,max=20"`
	Email       string       `json:"email" validate:"required,email"`
	Password    string       `json:"password" validate:"required,password"`
	Firstname   string       `json:"firstname" validate:"required,min=2,max=50"`
	Lastname    string       `json:"lastname" validate:"required,min=2,max=50"`
	PhoneNumber string       `json:"phoneNumber" validate:"required,digits,len=10"`
	Address     AddressInput `json:"address"`
	SSN         string       `json:"ssn" validate:"required,digits,len=9"`
}

// Normalize trims every string field in place.
func (r *RegisterRequest) Normalize() {
	for _, s := range []*string{
		&r.Username, &r.Email, &r.Password, &r.Firstname, &r.Lastname, &r.PhoneNumber, &r.SSN,
		&r.Address.City, &r.Address.Street, &r.Address.Number, &r.Address.Postcode,
	} {
		*s = strings.TrimSpace(*s)
	}
}

// CreateUserRequest is the admin-only body of POST /users.
type CreateUserRequest struct {
	RegisterRequest
	Role Role `json:"role" validate:"required,oneof=admin employee citizen"`
}

// ChangePasswordRequest is the body of PATCH /users/me/password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required,min=8"`
	NewPassword     string `json:"newPassword" validate:"required,password"`
}

// Normalize trims both passwords.
func (r *ChangePasswordRequest) Normalize() {
	r.CurrentPassword = strings.TrimSpace(r.CurrentPassword)
	r.NewPassword = strings.TrimSpace(r.NewPassword)
}

// StatusResponse is the {status, message} envelope used by login and password changes.
type StatusResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
}

// RegisterResponse is returned by POST /register; Data carries the new user id.
type RegisterResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    string `json:"data"`
}

// Envelope is the generic {status, message, data} success shape.
type Envelope[T any] struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}
