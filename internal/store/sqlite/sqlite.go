package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/grabarr/grabarr/internal/store/constants"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Database is our SQLite-backed store. Reads and writes go through separate
// connections; the write side is serialized behind a single connection plus a
// mutex so WAL writers never contend.
type Database struct {
	readDb  *sql.DB
	writeDb *sql.DB
	writeMu sync.Mutex
	dbPath  string
}

// Initialize opens (or creates) the SQLite database at dbPath and migrates it
// to the latest schema.
func Initialize(dbPath string) (*Database, error) {
	if dbPath == "" {
		dbPath = filepath.Join(constants.DbBasePath, constants.DbFileName)
	}
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("Initialize: error creating data directory: %w", err)
		}
	}

	writeDb, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("Initialize: error opening DB: %w", err)
	}
	writeDb.SetMaxOpenConns(1)

	if _, err := writeDb.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("Initialize: error enabling WAL: %w", err)
	}
	if _, err := writeDb.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		return nil, fmt.Errorf("Initialize: error enabling foreign keys: %w", err)
	}

	readDb, err := sql.Open("sqlite", dbPath+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("Initialize: error opening DB read side: %w", err)
	}

	database := &Database{
		dbPath:  dbPath,
		readDb:  readDb,
		writeDb: writeDb,
	}

	if err := database.Migrate(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return nil, fmt.Errorf("Initialize: error migrating tables: %w", err)
	}

	return database, nil
}

// Migrate brings the schema up to the embedded latest version.
func (d *Database) Migrate() error {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("Migrate: error reading migration files: %w", err)
	}

	driver, err := migratesqlite.WithInstance(d.writeDb, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("Migrate: error creating driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("Migrate: error creating migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("Migrate: error applying migrations: %w", err)
	}
	return nil
}

func (d *Database) NewTransaction() (*sql.Tx, error) {
	return d.writeDb.BeginTx(context.Background(), &sql.TxOptions{})
}

func (d *Database) Close() error {
	rErr := d.readDb.Close()
	wErr := d.writeDb.Close()
	if wErr != nil {
		return wErr
	}
	return rErr
}
