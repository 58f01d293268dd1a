package api

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/FACorreiaa/citizen-portal/internal/types"
)

const passwordSpecials = "!@#$%^&*"

// Validator checks form input before anything reaches the network.
type Validator struct {
	v *validator.Validate
}

// NewValidator returns a Validator with the portal's custom rules registered.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})

	mustRegister(v, "password", func(fl validator.FieldLevel) bool {
		return validPassword(fl.Field().String())
	})
	mustRegister(v, "digits", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s != "" && strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' }) < 0
	})
	mustRegister(v, "username_or_email", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if strings.Contains(s, "@") {
			return v.Var(s, "email") == nil
		}
		n := len([]rune(s))
		return n >= 2 && n <= 20
	})

	return &Validator{v: v}
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register validation %q: %v", tag, err))
	}
}

func validPassword(s string) bool {
	if len([]rune(s)) < 8 {
		return false
	}
	var letter, digit, special bool
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(passwordSpecials, r):
			special = true
		}
	}
	return letter && digit && special
}

// Validate returns a *types.ValidationError listing every failed field, or
// nil when the input is valid.
func (v *Validator) Validate(i any) error {
	err := v.v.Struct(i)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	fields := make([]types.FieldError, 0, len(ve))
	for _, fe := range ve {
		fields = append(fields, types.FieldError{Field: fieldPath(fe), Message: fieldMessage(fe)})
	}
	return &types.ValidationError{Fields: fields}
}

// fieldPath turns "RegisterRequest.address.postcode" into "address.postcode".
// Go names left in the namespace belong to the root or embedded structs.
func fieldPath(fe validator.FieldError) string {
	parts := strings.Split(fe.Namespace(), ".")
	out := parts[:0]
	for _, p := range parts {
		if p != "" && unicode.IsUpper([]rune(p)[0]) {
			continue
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return fe.Field()
	}
	return strings.Join(out, ".")
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return "Invalid email address"
	case "password":
		return "Password must be at least 8 characters long and contain at least one letter, one number and one special character (" + passwordSpecials + ")"
	case "username_or_email":
		return "Enter a valid email or a username of 2 to 20 characters"
	case "digits":
		return field + " must contain only digits"
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation (%s)", field, fe.Tag())
	}
}
