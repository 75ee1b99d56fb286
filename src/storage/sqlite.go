package storage

import (
	"context"
	"database/sql"
	"fmt"

	"market-pulse/src/logger"
	"market-pulse/src/models"

	_ "modernc.org/sqlite"
)

// -----------------------------------------------------------------------------

type SQLiteCache struct {
	sqlCache
	Config *models.MConfig
}

// -----------------------------------------------------------------------------

func NewSQLiteCache(cfg *models.MConfig, log *logger.Logger) *SQLiteCache {
	return &SQLiteCache{
		sqlCache: sqlCache{Logger: log, dialect: sqliteDialect},
		Config:   cfg,
	}
}

// -----------------------------------------------------------------------------

func (d *SQLiteCache) Initialize(ctx context.Context) error {
	db, err := sql.Open("sqlite", d.Config.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open sqlite %s: %w", d.Config.Storage.DBPath, err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping sqlite: %w", err)
	}

	// one writer at a time avoids SQLITE_BUSY under concurrent cadences
	db.SetMaxOpenConns(1)
	d.DB = db

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		d.Logger.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA synchronous = NORMAL;"); err != nil {
		d.Logger.Warning("Failed to set synchronous mode: %v", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		d.Logger.Warning("Failed to set busy timeout: %v", err)
	}

	if err := d.createTables(ctx); err != nil {
		return err
	}

	d.Logger.Info("SQLite cache ready at %s", d.Config.Storage.DBPath)
	return nil
}
