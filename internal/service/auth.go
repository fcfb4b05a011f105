package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	domainauth "github.com/target/tokengate/internal/domain/auth"
	"github.com/target/tokengate/internal/domain/model"
	"github.com/target/tokengate/internal/observability/metrics"
	"github.com/target/tokengate/internal/ports"
)

// TokenPolicy holds token lifetimes and refresh behaviour.
type TokenPolicy struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// RefreshHonorsLogout rejects refresh tokens issued at or before the user's last logout.
	RefreshHonorsLogout bool
}

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Users       ports.UserStore
	Hasher      ports.PasswordHasher
	Codec       ports.TokenCodec
	Watermark   *RevocationWatermark
	Clock       ports.TimeProvider
	Metrics     ports.MetricsSink
	Logger      *slog.Logger
	Policy      TokenPolicy
	PhoneRegion string
}

// AuthService orchestrates registration, login, refresh and logout over the user store,
// password hasher and token codec.
type AuthService struct {
	users       ports.UserStore
	hasher      ports.PasswordHasher
	codec       ports.TokenCodec
	watermark   *RevocationWatermark
	clock       ports.TimeProvider
	metrics     ports.MetricsSink
	logger      *slog.Logger
	policy      TokenPolicy
	phoneRegion string

	dummyOnce sync.Once
	dummyHash string
}

// AuthResult is returned by every flow that hands out tokens.
type AuthResult struct {
	domainauth.TokenPair
	User model.UserView `json:"user"`
}

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) *AuthService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	wm := opts.Watermark
	if wm == nil {
		wm = NewRevocationWatermark(opts.Users, opts.Clock, logger)
	}
	return &AuthService{
		users:       opts.Users,
		hasher:      opts.Hasher,
		codec:       opts.Codec,
		watermark:   wm,
		clock:       opts.Clock,
		metrics:     opts.Metrics,
		logger:      logger.With("component", "auth_service"),
		policy:      opts.Policy,
		phoneRegion: opts.PhoneRegion,
	}
}

// Register creates a USER account and signs it in.
func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest) (res *AuthResult, err error) {
	defer func() { metrics.EmitOperation(s.metrics, metrics.OpRegister, err) }()

	user, err := s.createUser(ctx, req, domainauth.RoleUser)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID)
	return s.issuePair(user)
}

// CreateUser provisions an account with an explicit role without issuing tokens.
func (s *AuthService) CreateUser(ctx context.Context, req model.RegisterRequest, role domainauth.Role) (*model.User, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("invalid role %q", role)
	}
	return s.createUser(ctx, req, role)
}

func (s *AuthService) createUser(ctx context.Context, req model.RegisterRequest, role domainauth.Role) (*model.User, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := req.NormalizePhone(s.phoneRegion); err != nil {
		return nil, err
	}

	switch _, err := s.users.GetByEmail(ctx, req.Email); {
	case err == nil:
		return nil, domainauth.ErrDuplicateEmail
	case !errors.Is(err, domainauth.ErrUserNotFound):
		return nil, fmt.Errorf("check existing user: %w", err)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(ctx, model.CreateUserParams{
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
		Phone:        req.Phone,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
	})
	if err != nil {
		if errors.Is(err, domainauth.ErrDuplicateEmail) {
			return nil, domainauth.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Login checks email and password and issues a fresh token pair.
// Unknown emails, wrong passwords and disabled accounts all yield ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, req model.LoginRequest) (res *AuthResult, err error) {
	defer func() { metrics.EmitOperation(s.metrics, metrics.OpLogin, err) }()

	if err = req.Validate(); err != nil {
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, domainauth.ErrUserNotFound) {
			// Equalize timing with the wrong-password path.
			s.hasher.Verify(req.Password, s.placeholderHash())
			return nil, domainauth.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	if !s.hasher.Verify(req.Password, user.PasswordHash) {
		if recErr := s.users.RecordFailedLogin(ctx, user.ID); recErr != nil {
			s.logger.WarnContext(ctx, "failed to record failed login", "user_id", user.ID, "err", recErr)
		}
		return nil, domainauth.ErrInvalidCredentials
	}
	if !user.CanAuthenticate() {
		return nil, domainauth.ErrInvalidCredentials
	}

	now := s.clock.Now()
	if err = s.users.RecordLogin(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("record login: %w", err)
	}
	user.LastLogin = &now
	user.LoginAttempts = 0

	return s.issuePair(user)
}

// Refresh mints a new access token from a refresh token. The refresh token is returned unchanged.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (res *AuthResult, err error) {
	defer func() { metrics.EmitOperation(s.metrics, metrics.OpRefresh, err) }()

	if refreshToken == "" {
		return nil, domainauth.ErrInvalidToken
	}
	claims, err := s.codec.Parse(refreshToken)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, domainauth.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: %w", domainauth.ErrInvalidToken, err)
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !user.CanAuthenticate() || !s.codec.IsValid(refreshToken, user.Email) {
		return nil, domainauth.ErrInvalidToken
	}
	if s.policy.RefreshHonorsLogout && !s.watermark.IssuedAfter(user, claims.IssuedAt) {
		return nil, domainauth.ErrTokenRevoked
	}

	access, err := s.issueAccess(user)
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		TokenPair: domainauth.TokenPair{
			AccessToken:  access,
			RefreshToken: refreshToken,
			TokenType:    domainauth.TokenTypeBearer,
			ExpiresIn:    int64(s.policy.AccessTTL / time.Second),
		},
		User: user.View(),
	}, nil
}

// Logout revokes every token issued to email so far. Calling it again only advances the watermark.
func (s *AuthService) Logout(ctx context.Context, email string) (err error) {
	defer func() { metrics.EmitOperation(s.metrics, metrics.OpLogout, err) }()

	if email == "" {
		return domainauth.ErrNotAuthenticated
	}
	return s.watermark.MarkLoggedOut(ctx, email)
}

// Revoke is Logout performed by an operator on another user's behalf.
func (s *AuthService) Revoke(ctx context.Context, email string) (err error) {
	defer func() { metrics.EmitOperation(s.metrics, metrics.OpRevoke, err) }()

	if err = s.watermark.MarkLoggedOut(ctx, email); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "user tokens revoked")
	return nil
}

// CurrentUser re-reads the authenticated user.
func (s *AuthService) CurrentUser(ctx context.Context, identity *domainauth.Identity) (model.UserView, error) {
	if identity == nil {
		return model.UserView{}, domainauth.ErrNotAuthenticated
	}
	user, err := s.users.GetByEmail(ctx, identity.Email)
	if err != nil {
		return model.UserView{}, err
	}
	return user.View(), nil
}

// SetRole changes a user's role.
func (s *AuthService) SetRole(ctx context.Context, email string, role domainauth.Role) error {
	if !role.Valid() {
		return fmt.Errorf("invalid role %q", role)
	}
	return s.users.SetRole(ctx, email, role)
}

// SetActive enables or disables an account. Disabled accounts fail authentication immediately.
func (s *AuthService) SetActive(ctx context.Context, email string, active bool) error {
	return s.users.SetActive(ctx, email, active)
}

// DeleteUser soft-deletes an account.
func (s *AuthService) DeleteUser(ctx context.Context, email string) error {
	return s.users.Delete(ctx, email)
}

func (s *AuthService) issuePair(user *model.User) (*AuthResult, error) {
	access, err := s.issueAccess(user)
	if err != nil {
		return nil, err
	}
	refresh, err := s.codec.Issue(user.Email, s.policy.RefreshTTL, nil)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	return &AuthResult{
		TokenPair: domainauth.TokenPair{
			AccessToken:  access,
			RefreshToken: refresh,
			TokenType:    domainauth.TokenTypeBearer,
			ExpiresIn:    int64(s.policy.AccessTTL / time.Second),
		},
		User: user.View(),
	}, nil
}

func (s *AuthService) issueAccess(user *model.User) (string, error) {
	token, err := s.codec.Issue(user.Email, s.policy.AccessTTL, map[string]any{"role": string(user.Role)})
	if err != nil {
		return "", fmt.Errorf("issue access token: %w", err)
	}
	return token, nil
}

// placeholderHash is verified against when the email is unknown so both paths cost one bcrypt compare.
func (s *AuthService) placeholderHash() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash("placeholder-password")
		if err != nil {
			s.logger.Warn("failed to build placeholder hash", "err", err)
			return
		}
		s.dummyHash = h
	})
	return s.dummyHash
}
