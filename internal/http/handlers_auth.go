package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	domainauth "github.com/target/tokengate/internal/domain/auth"
	"github.com/target/tokengate/internal/domain/model"
	apperrors "github.com/target/tokengate/internal/errors"
	"github.com/target/tokengate/internal/service"
)

// AuthServiceInterface defines the interface for auth service operations.
type AuthServiceInterface interface {
	Register(ctx context.Context, req model.RegisterRequest) (*service.AuthResult, error)
	Login(ctx context.Context, req model.LoginRequest) (*service.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*service.AuthResult, error)
	Logout(ctx context.Context, email string) error
	Revoke(ctx context.Context, email string) error
	CurrentUser(ctx context.Context, identity *domainauth.Identity) (model.UserView, error)
}

// AuthHandlers provides HTTP handlers for authentication operations.
type AuthHandlers struct {
	Svc          AuthServiceInterface
	Logger       *slog.Logger
	MaxBodyBytes int64
}

type messageResponse struct {
	Message string `json:"message"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Register handles self-service sign-up.
// POST /auth/register.
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if !DecodeJSONLimit(w, r, &req, h.MaxBodyBytes) {
		return
	}

	res, err := h.Svc.Register(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, res)
}

// Login exchanges email and password for a token pair.
// POST /auth/login.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if !DecodeJSONLimit(w, r, &req, h.MaxBodyBytes) {
		return
	}

	res, err := h.Svc.Login(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

// Refresh mints a new access token.
// POST /auth/refresh?refreshToken=<token>, or a JSON body {"refreshToken": "..."}.
func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("refreshToken"))
	if token == "" {
		var ok bool
		if token, ok = h.refreshTokenFromBody(w, r); !ok {
			return
		}
	}

	res, err := h.Svc.Refresh(r.Context(), token)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

// refreshTokenFromBody reads an optional JSON body. An empty body yields an empty token.
func (h *AuthHandlers) refreshTokenFromBody(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Body == nil || r.Body == http.NoBody {
		return "", true
	}
	limit := h.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	dec.DisallowUnknownFields()

	var req refreshRequest
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return "", true
		}
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_json", Err: err})
		return "", false
	}
	return strings.TrimSpace(req.RefreshToken), true
}

// Me returns the authenticated user.
// GET /auth/me.
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeNotAuthenticated(w)
		return
	}

	view, err := h.Svc.CurrentUser(r.Context(), identity)
	if err != nil {
		h.writeCallerError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, view)
}

// Logout revokes every token issued to the caller so far.
// POST /auth/logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeNotAuthenticated(w)
		return
	}

	if err := h.Svc.Logout(r.Context(), identity.Email); err != nil {
		h.writeCallerError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, messageResponse{Message: "logged out"})
}

// Revoke revokes every token issued to another user. Admin only.
// POST /auth/users/{email}/revoke.
func (h *AuthHandlers) Revoke(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.PathValue("email"))
	if email == "" {
		WriteValidationError(w, "email is required", map[string]string{"email": "email is required"})
		return
	}

	if err := h.Svc.Revoke(r.Context(), email); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if identity, ok := IdentityFromContext(r.Context()); ok {
		h.logger().InfoContext(r.Context(), "tokens revoked by admin",
			slog.Int64("admin_id", identity.UserID),
			slog.String("request_id", RequestIDFromContext(r.Context())))
	}
	WriteJSON(w, http.StatusOK, messageResponse{Message: "tokens revoked"})
}

// writeCallerError is writeServiceError for routes acting on the token's own subject.
// A subject that disappeared after the gate ran is reported as an invalid token.
func (h *AuthHandlers) writeCallerError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, domainauth.ErrUserNotFound) {
		WriteError(w, ErrorParams{Code: http.StatusUnauthorized, ErrCode: "invalid_token", Err: domainauth.ErrInvalidToken})
		return
	}
	h.writeServiceError(w, r, err)
}

// writeServiceError maps service errors onto API error codes. Internal details never reach clients.
func (h *AuthHandlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domainauth.ErrDuplicateEmail):
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "duplicate_email", Err: domainauth.ErrDuplicateEmail})
	case apperrors.IsValidation(err):
		WriteValidationError(w, validationMessage(err), validationFields(err))
	case errors.Is(err, domainauth.ErrInvalidCredentials):
		WriteError(w, ErrorParams{Code: http.StatusUnauthorized, ErrCode: "invalid_credentials", Err: domainauth.ErrInvalidCredentials})
	case errors.Is(err, domainauth.ErrInvalidToken), errors.Is(err, domainauth.ErrTokenRevoked):
		WriteError(w, ErrorParams{Code: http.StatusUnauthorized, ErrCode: "invalid_token", Err: domainauth.ErrInvalidToken})
	case errors.Is(err, domainauth.ErrNotAuthenticated):
		writeNotAuthenticated(w)
	case errors.Is(err, domainauth.ErrUserNotFound):
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "user_not_found", Err: domainauth.ErrUserNotFound})
	default:
		h.logger().ErrorContext(r.Context(), "auth request failed",
			slog.String("path", r.URL.Path),
			slog.String("request_id", RequestIDFromContext(r.Context())),
			slog.Any("error", err))
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "internal_error", Err: errors.New("internal error")})
	}
}

func validationMessage(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return "validation failed"
}

func validationFields(err error) map[string]string {
	if fields := model.FieldErrors(err); len(fields) > 0 {
		return fields
	}
	if field := apperrors.GetField(err); field != "" {
		return map[string]string{field: validationMessage(err)}
	}
	return nil
}
