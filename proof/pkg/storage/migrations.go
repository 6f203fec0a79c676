package storage

import (
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var proofMigrations embed.FS

const migrationsDir = "migrations"

// MigrationManager applies the embedded tx_proof migrations
type MigrationManager struct {
	logger *logrus.Logger
	pool   *pgxpool.Pool
}

func NewMigrationManager(logger *logrus.Logger, pool *pgxpool.Pool) *MigrationManager {
	return &MigrationManager{
		logger: logger.WithField("pkg", "storage.MigrationManager").Logger,
		pool:   pool,
	}
}

func (m *MigrationManager) Migrate() error {
	m.logger.Info("Starting tx proof database migration...")
	goose.SetLogger(m.logger)
	goose.SetBaseFS(proofMigrations)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	db := stdlib.OpenDBFromPool(m.pool)
	defer func() {
		_ = db.Close()
	}()
	if err := goose.Up(db, migrationsDir, goose.WithAllowMissing()); err != nil {
		return fmt.Errorf("failed to run tx proof migrations: %w", err)
	}
	m.logger.Info("Tx proof database migration completed successfully")
	return nil
}

// WithMigrations migrates the schema and then builds the store on the pool.
func WithMigrations(logger *logrus.Logger, pool *pgxpool.Pool) (*PostgresProofStore, error) {
	err := NewMigrationManager(logger, pool).Migrate()
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return NewRepo(pool), nil
}
