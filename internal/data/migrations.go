package data

import (
	"context"
	"database/sql"

	"github.com/target/tokengate/internal/migrate"
)

// RunMigrations brings the schema up to date and returns the versions it applied.
func RunMigrations(ctx context.Context, db *sql.DB) ([]string, error) {
	return migrate.Run(ctx, db)
}
