package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/target/tokengate/config"
	"github.com/target/tokengate/internal/bootstrap"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	Stdout io.Writer
	Stdin  io.Reader
	// openAuth builds the auth core; the returned func releases its connections.
	openAuth func(cmdCtx *commandContext) (*bootstrap.AuthComponents, func(), error)
}

func main() {
	logger := bootstrap.InitLogger(false)

	if len(os.Args) < 2 {
		if err := printUsage(os.Stdout); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(os.Stdout); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}

	cmdCtx := &commandContext{
		Ctx:      context.Background(),
		Logger:   logger,
		Config:   cfg,
		Stdout:   os.Stdout,
		Stdin:    os.Stdin,
		openAuth: openAuth,
	}
	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Run database migrations",
			run:         runMigrations,
		},
		"create-user": {
			name:        "create-user",
			description: "Create an account with an explicit role",
			run:         runCreateUser,
		},
		"revoke": {
			name:        "revoke",
			description: "Revoke every token issued to a user so far",
			run:         runRevoke,
		},
		"set-role": {
			name:        "set-role",
			description: "Change a user's role (ADMIN, USER, MODERATOR)",
			run:         runSetRole,
		},
		"set-active": {
			name:        "set-active",
			description: "Enable or disable an account",
			run:         runSetActive,
		},
		"delete-user": {
			name:        "delete-user",
			description: "Soft-delete an account; the email stays reserved",
			run:         runDeleteUser,
		},
	}
}

func printUsage(w io.Writer) error {
	if err := writef(w, "Usage: tokengate-admin <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(w, "Available commands:\n"); err != nil {
		return err
	}
	cmds := commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := writef(w, "  %-14s %s\n", name, cmds[name].description); err != nil {
			return err
		}
	}
	return nil
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}
