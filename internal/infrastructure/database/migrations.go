package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"time"
)

// migrationFile matches YYYYMMDD_HHMMSS_name.up.sql and .down.sql.
var migrationFile = regexp.MustCompile(`^(\d{8}_\d{6})_([a-z0-9_]+)\.(up|down)\.sql$`)

// Migration is one versioned schema change.
type Migration struct {
	Version string // YYYYMMDD_HHMMSS
	Name    string
	Up      string
	Down    string // empty for one-way migrations
}

// AppliedMigration is a row of schema_migrations.
type AppliedMigration struct {
	Version   string
	AppliedAt time.Time
}

// MigrationStatus splits a migration source into what the database has
// and what it still lacks.
type MigrationStatus struct {
	Applied []AppliedMigration
	Pending []Migration
}

// LoadMigrations reads the migration files at the root of src, ordered by
// version. Files not named like a migration are ignored. A nil src has no
// migrations.
func LoadMigrations(src fs.FS) ([]Migration, error) {
	if src == nil {
		return nil, nil
	}
	names, err := fs.Glob(src, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("listing migrations: %w", err)
	}

	byVersion := make(map[string]*Migration)
	for _, name := range names {
		m := migrationFile.FindStringSubmatch(path.Base(name))
		if m == nil {
			continue
		}
		body, err := fs.ReadFile(src, name)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		version, desc, direction := m[1], m[2], m[3]

		mig := byVersion[version]
		if mig == nil {
			mig = &Migration{Version: version, Name: desc}
			byVersion[version] = mig
		}
		if direction == "up" {
			mig.Up = string(body)
		} else {
			mig.Down = string(body)
		}
	}

	out := make([]Migration, 0, len(byVersion))
	for _, mig := range byVersion {
		if mig.Up == "" {
			return nil, fmt.Errorf("migration %s_%s has no up file", mig.Version, mig.Name)
		}
		out = append(out, *mig)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Migrate applies the pending migrations of src in version order, each in
// its own transaction. It stops at the first failure.
func (db *DB) Migrate(ctx context.Context, src fs.FS) error {
	status, err := db.MigrationStatus(ctx, src)
	if err != nil {
		return err
	}
	for _, m := range status.Pending {
		err := db.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.Up); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
				m.Version, time.Now().UTC().Format(time.RFC3339))
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %s_%s: %w", m.Version, m.Name, err)
		}
	}
	return nil
}

// Rollback reverts the newest applied migration and returns it. ok is
// false when nothing is applied.
func (db *DB) Rollback(ctx context.Context, src fs.FS) (m Migration, ok bool, err error) {
	status, err := db.MigrationStatus(ctx, src)
	if err != nil {
		return Migration{}, false, err
	}
	if len(status.Applied) == 0 {
		return Migration{}, false, nil
	}
	latest := status.Applied[len(status.Applied)-1].Version

	all, err := LoadMigrations(src)
	if err != nil {
		return Migration{}, false, err
	}
	i := sort.Search(len(all), func(i int) bool { return all[i].Version >= latest })
	if i == len(all) || all[i].Version != latest {
		return Migration{}, false, fmt.Errorf("applied migration %s is missing from the source", latest)
	}
	m = all[i]
	if m.Down == "" {
		return Migration{}, false, fmt.Errorf("migration %s_%s is one-way", m.Version, m.Name)
	}

	err = db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, m.Down); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = ?", m.Version)
		return err
	})
	if err != nil {
		return Migration{}, false, fmt.Errorf("rolling back %s_%s: %w", m.Version, m.Name, err)
	}
	return m, true, nil
}

// MigrationStatus compares src against schema_migrations, creating the
// bookkeeping table on first use.
func (db *DB) MigrationStatus(ctx context.Context, src fs.FS) (MigrationStatus, error) {
	var status MigrationStatus
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return status, fmt.Errorf("creating schema_migrations: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return status, fmt.Errorf("reading schema_migrations: %w", err)
	}
	defer rows.Close()

	have := make(map[string]bool)
	for rows.Next() {
		var a AppliedMigration
		var at string
		if err := rows.Scan(&a.Version, &at); err != nil {
			return status, fmt.Errorf("reading schema_migrations: %w", err)
		}
		a.AppliedAt, _ = time.Parse(time.RFC3339, at) //nolint:errcheck // written by Migrate
		status.Applied = append(status.Applied, a)
		have[a.Version] = true
	}
	if err := rows.Err(); err != nil {
		return status, fmt.Errorf("reading schema_migrations: %w", err)
	}

	all, err := LoadMigrations(src)
	if err != nil {
		return status, err
	}
	for _, m := range all {
		if !have[m.Version] {
			status.Pending = append(status.Pending, m)
		}
	}
	return status, nil
}

func (db *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback() //nolint:errcheck // returning the original error
		return err
	}
	return tx.Commit()
}
