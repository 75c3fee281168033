package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/DavidCapener182/incommand-sub013/config"
)

var ErrConflict = errors.New("conflict")

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// DB wraps *sql.DB with the configured driver so stores can rebind
// placeholders for postgres without caring which backend is active.
type DB struct {
	*sql.DB
	driver string
}

func NewDB(cfg *config.AppConfig, logger *zap.Logger) (*DB, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	switch driver {
	case "postgres":
		db, err := sql.Open("pgx", cfg.DBURL)
		if err != nil {
			return nil, err
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, err
		}
		return &DB{DB: db, driver: driver}, nil
	case "sqlite", "":
		path := strings.TrimSpace(cfg.DBPath)
		if path == "" {
			return nil, errors.New("db_path required for sqlite driver")
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, err
			}
		}
		db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
		if err != nil {
			return nil, err
		}
		// A single writer connection keeps sqlite's lock contention out of
		// the retry path.
		db.SetMaxOpenConns(1)
		return &DB{DB: db, driver: "sqlite"}, nil
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.DBDriver)
	}
}

func (d *DB) Driver() string {
	if d == nil {
		return ""
	}
	return d.driver
}

// Rebind converts ?-style placeholders to $N when running against postgres.
func (d *DB) Rebind(query string) string {
	if d == nil || d.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func ApplyMigrations(ctx context.Context, db *DB, logger *zap.Logger) error {
	dialect := "sqlite3"
	dir := "migrations/sqlite"
	if db.Driver() == "postgres" {
		dialect = "postgres"
		dir = "migrations/postgres"
	}
	sub, err := fs.Sub(migrationsFS, dir)
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.Dialect(dialect), db.DB, sub)
	if err != nil {
		return err
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return err
	}
	if logger != nil {
		for _, res := range results {
			logger.Info("migration applied", zap.String("source", res.Source.Path))
		}
	}
	return nil
}
