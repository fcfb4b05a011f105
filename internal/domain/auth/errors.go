package auth

import "errors"

// Sentinel errors shared by the auth service, its stores and the HTTP layer.
var (
	// ErrDuplicateEmail is returned when registering an email that already exists.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrInvalidCredentials covers both unknown emails and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrInvalidToken covers malformed, badly signed, mismatched or expired tokens.
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrTokenRevoked marks a well-formed token issued before the user's last logout.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrUserNotFound is returned by user stores when no record matches.
	ErrUserNotFound = errors.New("user not found")
	// ErrNotAuthenticated is returned when an operation needs an identity and none is present.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// GateOutcome is the terminal state reached by the authentication gate for one request.
type GateOutcome string

const (
	OutcomeNoToken       GateOutcome = "no_token"
	OutcomeTokenParsed   GateOutcome = "token_parsed"
	OutcomeInvalid       GateOutcome = "token_invalid"
	OutcomeRevoked       GateOutcome = "token_revoked"
	OutcomeAuthenticated GateOutcome = "authenticated"
)
