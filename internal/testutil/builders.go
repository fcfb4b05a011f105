package testutil

import (
	domainauth "github.com/target/tokengate/internal/domain/auth"
	"github.com/target/tokengate/internal/domain/model"
)

// UserParamsBuilder builds CreateUserParams with sensible defaults.
type UserParamsBuilder struct {
	params model.CreateUserParams
}

// NewUserParams starts a builder for an active USER with the given email.
func NewUserParams(email string) *UserParamsBuilder {
	return &UserParamsBuilder{
		params: model.CreateUserParams{
			FirstName:    "Test",
			LastName:     "User",
			Email:        email,
			PasswordHash: "$2a$04$placeholderplaceholderplaceholderplaceholderplacehol",
			Role:         domainauth.RoleUser,
			Active:       true,
		},
	}
}

// WithName sets first and last name.
func (b *UserParamsBuilder) WithName(first, last string) *UserParamsBuilder {
	b.params.FirstName = first
	b.params.LastName = last
	return b
}

// WithPhone sets the phone number.
func (b *UserParamsBuilder) WithPhone(phone string) *UserParamsBuilder {
	b.params.Phone = &phone
	return b
}

// WithPasswordHash sets the stored hash.
func (b *UserParamsBuilder) WithPasswordHash(hash string) *UserParamsBuilder {
	b.params.PasswordHash = hash
	return b
}

// WithRole sets the role.
func (b *UserParamsBuilder) WithRole(role domainauth.Role) *UserParamsBuilder {
	b.params.Role = role
	return b
}

// Inactive marks the user as inactive.
func (b *UserParamsBuilder) Inactive() *UserParamsBuilder {
	b.params.Active = false
	return b
}

// Build returns the params.
func (b *UserParamsBuilder) Build() model.CreateUserParams {
	return b.params
}
