package storage

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"market-pulse/src/logger"
	"market-pulse/src/models"

	_ "github.com/lib/pq"
)

var unsafeSchemaChars = regexp.MustCompile(`[^a-z0-9_]`)

// -----------------------------------------------------------------------------

type PostgresCache struct {
	sqlCache
	Config *models.MConfig
	Schema string
}

// -----------------------------------------------------------------------------

// NewPostgresCache stores every table under a schema named after the service
func NewPostgresCache(cfg *models.MConfig, log *logger.Logger) *PostgresCache {
	schema := SchemaName(cfg.Name)
	return &PostgresCache{
		sqlCache: sqlCache{Logger: log, dialect: postgresDialect(schema)},
		Config:   cfg,
		Schema:   schema,
	}
}

// SchemaName turns a service name into a safe postgres identifier
func SchemaName(name string) string {
	s := unsafeSchemaChars.ReplaceAllString(strings.ToLower(name), "_")
	if s == "" {
		return "market_pulse"
	}
	return s
}

// -----------------------------------------------------------------------------

func (d *PostgresCache) Initialize(ctx context.Context) error {
	db, err := sql.Open("postgres", d.Config.Storage.DBConnectionString)
	if err != nil {
		return fmt.Errorf("failed to open postgres: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping postgres: %w", err)
	}
	d.DB = db

	if _, err := db.ExecContext(ctx, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS "%s"`, d.Schema)); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", d.Schema, err)
	}

	if err := d.createTables(ctx); err != nil {
		return err
	}

	d.Logger.Info("PostgresCache initialized successfully (Schema: %s)", d.Schema)
	return nil
}
