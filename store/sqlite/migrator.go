package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/simon020286/go-datahub/logger"
)

const migrationDir = "migrations"

//go:embed migrations/*.sql
var embedMigrations embed.FS

// MigrationConfig controls a schema migration run
type MigrationConfig struct {
	URI           string
	TargetVersion uint // 0 migrates to the latest version
	Timeout       time.Duration
	Verbose       bool
	Logger        logger.Logger
}

// Migrate brings the schema of the database at config.URI to the target version
func Migrate(ctx context.Context, config MigrationConfig) error {
	log := config.Logger
	if log == nil {
		log = logger.NewNoopLogger()
	}

	goose.SetLogger(goose.NopLogger())
	goose.SetVerbose(config.Verbose)

	if err := goose.SetDialect("sqlite"); err != nil {
		return fmt.Errorf("failed to set sqlite dialect: %w", err)
	}

	db, err := openForMigration(config.URI)
	if err != nil {
		return err
	}
	defer db.Close()

	policy := backoff.NewExponentialBackOff()
	if config.Timeout > 0 {
		policy.MaxElapsedTime = config.Timeout
	}
	err = backoff.Retry(func() error {
		return db.PingContext(ctx)
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return fmt.Errorf("failed to initialize sqlite connection: %w", err)
	}

	goose.SetBaseFS(embedMigrations)

	currentVersion, err := goose.GetDBVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get sqlite db version: %w", err)
	}
	log.Info("sqlite current version", zap.Int64("version", currentVersion))

	if config.TargetVersion == 0 {
		if err := goose.UpContext(ctx, db, migrationDir); err != nil {
			return fmt.Errorf("failed to run sqlite migrations: %w", err)
		}
		log.Info("sqlite migration done")
		return nil
	}

	target := int64(config.TargetVersion)
	switch {
	case target < currentVersion:
		if err := goose.DownToContext(ctx, db, migrationDir, target); err != nil {
			return fmt.Errorf("failed to run sqlite migrations down to %v: %w", target, err)
		}
	case target > currentVersion:
		if err := goose.UpToContext(ctx, db, migrationDir, target); err != nil {
			return fmt.Errorf("failed to run sqlite migrations up to %v: %w", target, err)
		}
	default:
		log.Info("sqlite nothing to do")
		return nil
	}

	log.Info("sqlite migration done", zap.Int64("version", target))
	return nil
}

// CurrentVersion returns the schema version of the database at uri
func CurrentVersion(uri string) (int64, error) {
	if err := goose.SetDialect("sqlite"); err != nil {
		return 0, fmt.Errorf("failed to set sqlite dialect: %w", err)
	}
	db, err := openForMigration(uri)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	goose.SetBaseFS(embedMigrations)
	return goose.GetDBVersion(db)
}

func openForMigration(uri string) (*sql.DB, error) {
	dsn, err := PrepareDSN(uri)
	if err != nil {
		return nil, err
	}
	db, err := goose.OpenDBWithDriver("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite connection: %w", err)
	}
	return db, nil
}
