package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/target/tokengate/internal/bootstrap"
	domainauth "github.com/target/tokengate/internal/domain/auth"
	"github.com/target/tokengate/internal/domain/model"
)

const (
	defaultMigrationTimeout = 5 * time.Minute
	defaultCommandTimeout   = 30 * time.Second
)

var errEmailRequired = errors.New("--email is required")

type migrateOptions struct {
	Timeout time.Duration
}

type createUserOptions struct {
	Email         string
	FirstName     string
	LastName      string
	Phone         string
	Password      string
	PasswordStdin bool
	Role          domainauth.Role
}

type setRoleOptions struct {
	Email string
	Role  domainauth.Role
}

type setActiveOptions struct {
	Email  string
	Active bool
}

func openAuth(cmdCtx *commandContext) (*bootstrap.AuthComponents, func(), error) {
	infra, err := bootstrap.OpenInfrastructure(cmdCtx.Ctx, &cmdCtx.Config, cmdCtx.Logger)
	if err != nil {
		return nil, nil, err
	}
	release := func() {
		if cerr := infra.Close(); cerr != nil {
			cmdCtx.Logger.Warn("close infrastructure failed", "error", cerr)
		}
	}
	auth, err := bootstrap.BuildAuth(bootstrap.AuthDeps{
		Config:      &cmdCtx.Config,
		DB:          infra.DB,
		RedisClient: infra.Redis,
		Logger:      cmdCtx.Logger,
	})
	if err != nil {
		release()
		return nil, nil, err
	}
	return auth, release, nil
}

// withAuth runs fn against a freshly wired auth core under a signal-aware timeout.
func withAuth(cmdCtx *commandContext, fn func(ctx context.Context, auth *bootstrap.AuthComponents) error) error {
	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultCommandTimeout)
	defer cancel()

	auth, release, err := cmdCtx.openAuth(cmdCtx)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx, auth)
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(ctx, bootstrap.DatabaseConfig{
		DBConfig: cmdCtx.Config.Postgres,
		Logger:   cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	cmdCtx.Logger.Info("running database migrations")

	if migrateErr := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); migrateErr != nil {
		return fmt.Errorf("run migrations: %w", migrateErr)
	}

	cmdCtx.Logger.Info("migrations completed successfully")
	return nil
}

func runCreateUser(cmdCtx *commandContext, args []string) error {
	opts, err := parseCreateUserFlags(args)
	if err != nil {
		return err
	}
	if opts.PasswordStdin {
		if opts.Password, err = readPassword(cmdCtx.Stdin); err != nil {
			return err
		}
	}

	req := model.RegisterRequest{
		FirstName: opts.FirstName,
		LastName:  opts.LastName,
		Email:     opts.Email,
		Password:  opts.Password,
	}
	if opts.Phone != "" {
		req.Phone = &opts.Phone
	}

	return withAuth(cmdCtx, func(ctx context.Context, auth *bootstrap.AuthComponents) error {
		user, createErr := auth.Service.CreateUser(ctx, req, opts.Role)
		if createErr != nil {
			if fields := model.FieldErrors(createErr); len(fields) > 0 {
				return fmt.Errorf("create user: %w (%s)", createErr, formatFields(fields))
			}
			return fmt.Errorf("create user: %w", createErr)
		}
		return writef(cmdCtx.Stdout, "created user %d <%s> role=%s\n", user.ID, user.Email, user.Role)
	})
}

func runRevoke(cmdCtx *commandContext, args []string) error {
	email, err := parseEmailFlag("revoke", args)
	if err != nil {
		return err
	}
	return withAuth(cmdCtx, func(ctx context.Context, auth *bootstrap.AuthComponents) error {
		if revokeErr := auth.Service.Revoke(ctx, email); revokeErr != nil {
			return fmt.Errorf("revoke %s: %w", email, revokeErr)
		}
		return writef(cmdCtx.Stdout, "revoked all tokens issued to <%s>\n", email)
	})
}

func runSetRole(cmdCtx *commandContext, args []string) error {
	opts, err := parseSetRoleFlags(args)
	if err != nil {
		return err
	}
	return withAuth(cmdCtx, func(ctx context.Context, auth *bootstrap.AuthComponents) error {
		if setErr := auth.Service.SetRole(ctx, opts.Email, opts.Role); setErr != nil {
			return fmt.Errorf("set role: %w", setErr)
		}
		return writef(cmdCtx.Stdout, "<%s> role=%s\n", opts.Email, opts.Role)
	})
}

func runSetActive(cmdCtx *commandContext, args []string) error {
	opts, err := parseSetActiveFlags(args)
	if err != nil {
		return err
	}
	return withAuth(cmdCtx, func(ctx context.Context, auth *bootstrap.AuthComponents) error {
		if setErr := auth.Service.SetActive(ctx, opts.Email, opts.Active); setErr != nil {
			return fmt.Errorf("set active: %w", setErr)
		}
		return writef(cmdCtx.Stdout, "<%s> active=%t\n", opts.Email, opts.Active)
	})
}

func runDeleteUser(cmdCtx *commandContext, args []string) error {
	email, err := parseEmailFlag("delete-user", args)
	if err != nil {
		return err
	}
	return withAuth(cmdCtx, func(ctx context.Context, auth *bootstrap.AuthComponents) error {
		if delErr := auth.Service.DeleteUser(ctx, email); delErr != nil {
			return fmt.Errorf("delete user: %w", delErr)
		}
		return writef(cmdCtx.Stdout, "deleted <%s>\n", email)
	})
}

func parseMigrateFlags(args []string) (migrateOptions, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := migrateOptions{Timeout: defaultMigrationTimeout}
	fs.DurationVar(&opts.Timeout, "timeout", defaultMigrationTimeout, "Maximum time to wait for migrations")

	if err := fs.Parse(args); err != nil {
		return migrateOptions{}, err
	}
	if opts.Timeout <= 0 {
		return migrateOptions{}, errors.New("--timeout must be positive")
	}
	return opts, nil
}

func parseCreateUserFlags(args []string) (createUserOptions, error) {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		opts createUserOptions
		role string
	)
	fs.StringVar(&opts.Email, "email", "", "Account email (required)")
	fs.StringVar(&opts.FirstName, "first-name", "", "First name (required)")
	fs.StringVar(&opts.LastName, "last-name", "", "Last name (required)")
	fs.StringVar(&opts.Phone, "phone", "", "Optional phone number")
	fs.StringVar(&opts.Password, "password", "", "Password (prefer --password-stdin)")
	fs.BoolVar(&opts.PasswordStdin, "password-stdin", false, "Read the password from the first line of stdin")
	fs.StringVar(&role, "role", string(domainauth.RoleUser), "Role: ADMIN, USER or MODERATOR")

	if err := fs.Parse(args); err != nil {
		return createUserOptions{}, err
	}

	opts.Email = strings.TrimSpace(opts.Email)
	if opts.Email == "" {
		return createUserOptions{}, errEmailRequired
	}
	if opts.Password != "" && opts.PasswordStdin {
		return createUserOptions{}, errors.New("--password and --password-stdin are mutually exclusive")
	}
	if opts.Password == "" && !opts.PasswordStdin {
		return createUserOptions{}, errors.New("a password is required (--password or --password-stdin)")
	}
	parsed, err := domainauth.ParseRole(role)
	if err != nil {
		return createUserOptions{}, err
	}
	opts.Role = parsed
	return opts, nil
}

func parseEmailFlag(name string, args []string) (string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var email string
	fs.StringVar(&email, "email", "", "Account email (required)")
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if email = strings.TrimSpace(email); email == "" {
		return "", errEmailRequired
	}
	return email, nil
}

func parseSetRoleFlags(args []string) (setRoleOptions, error) {
	fs := flag.NewFlagSet("set-role", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts setRoleOptions
	var role string
	fs.StringVar(&opts.Email, "email", "", "Account email (required)")
	fs.StringVar(&role, "role", "", "Role: ADMIN, USER or MODERATOR (required)")
	if err := fs.Parse(args); err != nil {
		return setRoleOptions{}, err
	}
	if opts.Email = strings.TrimSpace(opts.Email); opts.Email == "" {
		return setRoleOptions{}, errEmailRequired
	}
	parsed, err := domainauth.ParseRole(role)
	if err != nil {
		return setRoleOptions{}, err
	}
	opts.Role = parsed
	return opts, nil
}

func parseSetActiveFlags(args []string) (setActiveOptions, error) {
	fs := flag.NewFlagSet("set-active", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := setActiveOptions{Active: true}
	fs.StringVar(&opts.Email, "email", "", "Account email (required)")
	fs.BoolVar(&opts.Active, "active", true, "Whether the account may authenticate")
	if err := fs.Parse(args); err != nil {
		return setActiveOptions{}, err
	}
	if opts.Email = strings.TrimSpace(opts.Email); opts.Email == "" {
		return setActiveOptions{}, errEmailRequired
	}
	return opts, nil
}

func readPassword(r io.Reader) (string, error) {
	if r == nil {
		return "", errors.New("stdin is not available")
	}
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("empty password on stdin")
	}
	return password, nil
}

func formatFields(fields map[string]string) string {
	parts := make([]string, 0, len(fields))
	for field, msg := range fields {
		parts = append(parts, field+": "+msg)
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}
