package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/target/tokengate/internal/data/pgxutil"
	domainauth "github.com/target/tokengate/internal/domain/auth"
	"github.com/target/tokengate/internal/domain/model"
	apperrors "github.com/target/tokengate/internal/errors"
	"github.com/target/tokengate/internal/ports"
)

var _ ports.UserStore = (*UserRepo)(nil)

// UserRepo implements ports.UserStore using PostgreSQL.
type UserRepo struct {
	DB *sql.DB
}

// NewUserRepo creates a new UserRepo instance.
func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{DB: db}
}

const userColumns = `id, first_name, last_name, email, phone, password_hash, role, active, deleted,
	email_verified, login_attempts, last_login, last_logout, created_at, updated_at`

// Create inserts a new user.
func (r *UserRepo) Create(ctx context.Context, params model.CreateUserParams) (*model.User, error) {
	var u model.User
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		query := `
			INSERT INTO users (first_name, last_name, email, phone, password_hash, role, active)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING ` + userColumns

		rows, err := conn.Query(ctx, query,
			params.FirstName, params.LastName, params.Email, params.Phone,
			params.PasswordHash, string(params.Role), params.Active,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		u, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.User])
		return err
	})
	if err != nil {
		return nil, r.mapWriteErr(err)
	}
	return &u, nil
}

// GetByEmail retrieves a user by exact email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// GetByID retrieves a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *UserRepo) getOne(ctx context.Context, query string, arg any) (*model.User, error) {
	var u model.User
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, arg)
		if err != nil {
			return err
		}
		defer rows.Close()
		u, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.User])
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domainauth.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", apperrors.MapDBError(err))
	}
	return &u, nil
}

// RecordLogin stamps a successful login and clears the failure counter.
func (r *UserRepo) RecordLogin(ctx context.Context, id int64, at time.Time) error {
	return r.exec(ctx, "record login",
		`UPDATE users SET last_login = $2, login_attempts = 0, updated_at = now() WHERE id = $1`,
		id, at)
}

// RecordFailedLogin increments the failure counter.
func (r *UserRepo) RecordFailedLogin(ctx context.Context, id int64) error {
	return r.exec(ctx, "record failed login",
		`UPDATE users SET login_attempts = login_attempts + 1, updated_at = now() WHERE id = $1`,
		id)
}

// MarkLoggedOut advances last_logout to at, keeping the later value if one is already stored.
func (r *UserRepo) MarkLoggedOut(ctx context.Context, email string, at time.Time) error {
	return r.exec(ctx, "mark logged out",
		`UPDATE users SET last_logout = GREATEST(COALESCE(last_logout, $2), $2), updated_at = now()
		 WHERE email = $1`,
		email, at)
}

// SetRole replaces the user's role.
func (r *UserRepo) SetRole(ctx context.Context, email string, role domainauth.Role) error {
	return r.exec(ctx, "set role",
		`UPDATE users SET role = $2, updated_at = now() WHERE email = $1`,
		email, string(role))
}

// SetActive toggles the active flag.
func (r *UserRepo) SetActive(ctx context.Context, email string, active bool) error {
	return r.exec(ctx, "set active",
		`UPDATE users SET active = $2, updated_at = now() WHERE email = $1`,
		email, active)
}

// Delete soft-deletes the user.
func (r *UserRepo) Delete(ctx context.Context, email string) error {
	return r.exec(ctx, "delete user",
		`UPDATE users SET deleted = TRUE, active = FALSE, updated_at = now() WHERE email = $1`,
		email)
}

func (r *UserRepo) exec(ctx context.Context, op, query string, args ...any) error {
	var affected int64
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		tag, err := conn.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, r.mapWriteErr(err))
	}
	if affected == 0 {
		return domainauth.ErrUserNotFound
	}
	return nil
}

func (r *UserRepo) mapWriteErr(err error) error {
	mapped := apperrors.MapDBError(err)
	if apperrors.IsConflict(mapped) && apperrors.GetField(mapped) == "email" {
		return fmt.Errorf("%w: %w", domainauth.ErrDuplicateEmail, mapped)
	}
	return mapped
}
