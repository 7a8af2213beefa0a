package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var migrationName = regexp.MustCompile(`^(\d+)_[a-z0-9_]+\.(up|down)\.sql$`)

// Migration is one numbered schema change with its up and down scripts.
type Migration struct {
	Version string
	Name    string
	UpPath  string
	Down    string
}

// LoadMigrations reads migrationsDir and pairs up/down files by version.
// Versions are returned in ascending order.
func LoadMigrations(migrationsDir string) ([]Migration, error) {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	byVersion := map[string]*Migration{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := migrationName.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		version, direction := match[1], match[2]
		item := byVersion[version]
		if item == nil {
			item = &Migration{Version: version}
			byVersion[version] = item
		}
		path := filepath.Join(migrationsDir, entry.Name())
		switch direction {
		case "up":
			if item.UpPath != "" {
				return nil, fmt.Errorf("duplicate up migration for version %s", version)
			}
			item.UpPath = path
			item.Name = entry.Name()
		case "down":
			if item.Down != "" {
				return nil, fmt.Errorf("duplicate down migration for version %s", version)
			}
			item.Down = path
		}
	}

	out := make([]Migration, 0, len(byVersion))
	for version, item := range byVersion {
		if item.UpPath == "" || item.Down == "" {
			return nil, fmt.Errorf("migration %s must include both up and down files", version)
		}
		out = append(out, *item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// ApplyMigrations runs every pending up migration in its own transaction and
// returns the names it applied.
func ApplyMigrations(ctx context.Context, db *sql.DB, migrationsDir string) ([]string, error) {
	migrations, err := LoadMigrations(migrationsDir)
	if err != nil {
		return nil, err
	}
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return nil, err
	}

	applied := make([]string, 0)
	for _, migration := range migrations {
		done, err := isMigrated(ctx, db, migration.Name)
		if err != nil {
			return applied, err
		}
		if done {
			continue
		}

		contents, err := os.ReadFile(migration.UpPath)
		if err != nil {
			return applied, fmt.Errorf("read migration %s: %w", migration.Name, err)
		}
		err = inTx(ctx, db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, string(contents)); err != nil {
				return fmt.Errorf("execute migration %s: %w", migration.Name, err)
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version) VALUES($1)`, migration.Name); err != nil {
				return fmt.Errorf("record migration %s: %w", migration.Name, err)
			}
			return nil
		})
		if err != nil {
			return applied, err
		}
		applied = append(applied, migration.Name)
	}
	return applied, nil
}

// RollbackLatest reverts the most recently applied migration, if any, and
// returns its name.
func RollbackLatest(ctx context.Context, db *sql.DB, migrationsDir string) (string, error) {
	migrations, err := LoadMigrations(migrationsDir)
	if err != nil {
		return "", err
	}
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return "", err
	}

	for i := len(migrations) - 1; i >= 0; i-- {
		migration := migrations[i]
		done, err := isMigrated(ctx, db, migration.Name)
		if err != nil {
			return "", err
		}
		if !done {
			continue
		}
		contents, err := os.ReadFile(migration.Down)
		if err != nil {
			return "", fmt.Errorf("read down migration %s: %w", migration.Name, err)
		}
		err = inTx(ctx, db, func(tx *sql.Tx) error {
			if script := strings.TrimSpace(string(contents)); script != "" {
				if _, err := tx.ExecContext(ctx, script); err != nil {
					return fmt.Errorf("execute down migration %s: %w", migration.Name, err)
				}
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version=$1`, migration.Name); err != nil {
				return fmt.Errorf("forget migration %s: %w", migration.Name, err)
			}
			return nil
		})
		if err != nil {
			return "", err
		}
		return migration.Name, nil
	}
	return "", nil
}

func inTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func ensureMigrationsTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	return nil
}

func isMigrated(ctx context.Context, db *sql.DB, version string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=$1)`, version).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check migration %s: %w", version, err)
	}
	return exists, nil
}
