package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/DavidHuie/gomigrate"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// RunMigrations applies the embedded migrations that gomigrate has not
// recorded yet. Files follow gomigrate's <id>_<name>_{up,down}.sql naming.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir, err := stageMigrations()
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	migrator, err := gomigrate.NewMigratorWithLogger(db, gomigrate.Postgres{}, dir, zap.NewStdLog(zap.L().Named("migrate")))
	if err != nil {
		return fmt.Errorf("set up migrator: %w", err)
	}
	if err := migrator.Migrate(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// stageMigrations copies the embedded files into a temporary directory,
// since gomigrate reads migrations from a path on disk.
func stageMigrations() (string, error) {
	dir, err := os.MkdirTemp("", "ingest-migrations-*")
	if err != nil {
		return "", fmt.Errorf("create migrations dir: %w", err)
	}

	names, err := fs.Glob(migrationFS, "migrations/*.sql")
	if err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("list migrations: %w", err)
	}
	for _, name := range names {
		data, err := migrationFS.ReadFile(name)
		if err != nil {
			os.RemoveAll(dir)
			return "", fmt.Errorf("read migration %s: %w", name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, filepath.Base(name)), data, 0o600); err != nil {
			os.RemoveAll(dir)
			return "", fmt.Errorf("write migration %s: %w", name, err)
		}
	}
	return dir, nil
}
