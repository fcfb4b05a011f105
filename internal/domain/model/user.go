//revive:disable-next-line:var-naming // legacy package name used across the project
package model

import (
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nyaruka/phonenumbers"
	domainauth "github.com/target/tokengate/internal/domain/auth"
	apperrors "github.com/target/tokengate/internal/errors"
)

const (
	minNameLen     = 2
	maxNameLen     = 50
	minPasswordLen = 6
	// bcrypt only hashes the first 72 bytes of its input.
	maxPasswordBytes = 72
	maxPhoneLen      = 20
)

// User is the persisted credential record for one account.
type User struct {
	ID            int64           `db:"id"`
	FirstName     string          `db:"first_name"`
	LastName      string          `db:"last_name"`
	Email         string          `db:"email"`
	Phone         *string         `db:"phone"`
	PasswordHash  string          `db:"password_hash"`
	Role          domainauth.Role `db:"role"`
	Active        bool            `db:"active"`
	Deleted       bool            `db:"deleted"`
	EmailVerified bool            `db:"email_verified"`
	LoginAttempts int             `db:"login_attempts"`
	LastLogin     *time.Time      `db:"last_login"`
	LastLogout    *time.Time      `db:"last_logout"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

// CanAuthenticate reports whether the account may log in or use tokens.
func (u *User) CanAuthenticate() bool {
	return u != nil && u.Active && !u.Deleted
}

// FullName joins first and last name.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// View returns the client-facing representation of the user.
func (u *User) View() UserView {
	return UserView{
		ID:            u.ID,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		FullName:      u.FullName(),
		Email:         u.Email,
		Phone:         u.Phone,
		Active:        u.Active,
		Role:          u.Role,
		EmailVerified: u.EmailVerified,
		LastLogin:     u.LastLogin,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

// UserView is the user representation returned by the API. It never carries the password hash.
type UserView struct {
	ID            int64           `json:"id"`
	FirstName     string          `json:"firstName"`
	LastName      string          `json:"lastName"`
	FullName      string          `json:"fullName"`
	Email         string          `json:"email"`
	Phone         *string         `json:"phone,omitempty"`
	Active        bool            `json:"active"`
	Role          domainauth.Role `json:"role"`
	EmailVerified bool            `json:"emailVerified"`
	LastLogin     *time.Time      `json:"lastLogin,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// CreateUserParams is the store input for a new account. PasswordHash must already be hashed.
type CreateUserParams struct {
	FirstName    string
	LastName     string
	Email        string
	Phone        *string
	PasswordHash string
	Role         domainauth.Role
	Active       bool
}

// RegisterRequest is the self-service sign-up payload.
type RegisterRequest struct {
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	Email     string  `json:"email"`
	Password  string  `json:"password"`
	Phone     *string `json:"phone,omitempty"`
}

// Normalize trims surrounding whitespace. Email case is preserved; lookups are exact.
func (r *RegisterRequest) Normalize() {
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Email = strings.TrimSpace(r.Email)
	if r.Phone != nil {
		p := strings.TrimSpace(*r.Phone)
		if p == "" {
			r.Phone = nil
		} else {
			r.Phone = &p
		}
	}
}

// Validate checks field presence and lengths.
func (r *RegisterRequest) Validate() error {
	err := validation.ValidateStruct(r,
		validation.Field(&r.FirstName,
			validation.Required.Error("first name is required"),
			validation.RuneLength(minNameLen, maxNameLen).Error("first name must be between 2 and 50 characters"),
		),
		validation.Field(&r.LastName,
			validation.Required.Error("last name is required"),
			validation.RuneLength(minNameLen, maxNameLen).Error("last name must be between 2 and 50 characters"),
		),
		validation.Field(&r.Email,
			validation.Required.Error("email is required"),
			is.Email.Error("email must be valid"),
		),
		validation.Field(&r.Password,
			validation.Required.Error("password is required"),
			validation.Length(minPasswordLen, maxPasswordBytes).Error("password must be between 6 and 72 bytes"),
		),
		validation.Field(&r.Phone,
			validation.RuneLength(0, maxPhoneLen).Error("phone must not exceed 20 characters"),
		),
	)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid registration request")
	}
	return nil
}

// NormalizePhone rewrites Phone into E.164 form. Numbers without an international prefix are
// parsed in defaultRegion.
func (r *RegisterRequest) NormalizePhone(defaultRegion string) error {
	if r.Phone == nil {
		return nil
	}
	num, err := phonenumbers.Parse(*r.Phone, defaultRegion)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return apperrors.Wrap(
			validation.Errors{"phone": errors.New("phone must be a valid phone number")},
			apperrors.ErrCodeValidation,
			"invalid registration request",
		)
	}
	formatted := phonenumbers.Format(num, phonenumbers.E164)
	r.Phone = &formatted
	return nil
}

// LoginRequest is the email/password login payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks field presence.
func (r *LoginRequest) Validate() error {
	r.Email = strings.TrimSpace(r.Email)
	err := validation.ValidateStruct(r,
		validation.Field(&r.Email,
			validation.Required.Error("email is required"),
			is.Email.Error("email must be valid"),
		),
		validation.Field(&r.Password, validation.Required.Error("password is required")),
	)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid login request")
	}
	return nil
}

// FieldErrors extracts per-field messages from a validation error.
// It returns nil when err carries no field detail.
func FieldErrors(err error) map[string]string {
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for field, ferr := range verrs {
		if ferr != nil {
			out[field] = ferr.Error()
		}
	}
	return out
}
