package db

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/usprobe/internal/monitoring"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type DB struct {
	*sql.DB
}

// OpenDB opens the database without touching the schema. The pragmas go in
// the DSN so every pooled connection gets them.
func OpenDB(path string) (*DB, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite", path+sep+"_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return &DB{db}, nil
}

// NewDB opens the database and applies every pending migration.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	migrations, err := Migrations()
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := db.MigrateUp(migrations); err != nil {
		db.Close()
		return nil, err
	}
	version, _, err := db.MigrateVersion(migrations)
	if err != nil {
		db.Close()
		return nil, err
	}
	monitoring.Logf("opened preset database %s at schema version %d", path, version)
	return db, nil
}

// Migrations returns the embedded migration files.
func Migrations() (fs.FS, error) {
	return fs.Sub(migrationsFS, "migrations")
}
