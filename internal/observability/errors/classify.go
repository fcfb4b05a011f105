// Package errors classifies errors into short labels for metric tags and log fields.
package errors

import (
	"context"
	goerrors "errors"
	"reflect"
	"strings"

	domainauth "github.com/target/tokengate/internal/domain/auth"
	apperrors "github.com/target/tokengate/internal/errors"
)

var known = []struct {
	err   error
	label string
}{
	{domainauth.ErrInvalidCredentials, "invalid_credentials"},
	{domainauth.ErrTokenRevoked, "token_revoked"},
	{domainauth.ErrInvalidToken, "invalid_token"},
	{domainauth.ErrDuplicateEmail, "duplicate_email"},
	{domainauth.ErrUserNotFound, "user_not_found"},
	{domainauth.ErrNotAuthenticated, "not_authenticated"},
	{context.DeadlineExceeded, "timeout"},
	{context.Canceled, "canceled"},
}

// Classify returns a stable label for err. Domain sentinels and AppError codes map to
// their own names; anything else falls back to the innermost concrete type name.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range known {
		if goerrors.Is(err, k.err) {
			return k.label
		}
	}
	if code := apperrors.GetCode(err); code != "" {
		return string(code)
	}

	for {
		unwrapped := goerrors.Unwrap(err)
		if unwrapped == nil {
			break
		}
		err = unwrapped
	}

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}
	name := strings.ToLower(strings.ReplaceAll(t.String(), ".", "_"))
	if name == "" {
		return "unknown"
	}
	return name
}
