// Package migrations holds the versioned schema for every supported driver
// and applies it inside transactions.
package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"weather-api/pkg/database"
	"weather-api/pkg/logging"
)

//go:embed sql
var files embed.FS

var fileRegex = regexp.MustCompile(`^(\d+)_(.+)\.(up|down)\.sql$`)

// Migration represents a single schema migration
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// Load returns the migrations for a driver sorted by version
func Load(driver string) ([]Migration, error) {
	dir := path.Join("sql", driver)
	entries, err := fs.ReadDir(files, dir)
	if err != nil {
		return nil, fmt.Errorf("no migrations for driver %q: %w", driver, err)
	}

	byVersion := make(map[int]*Migration)
	for _, entry := range entries {
		matches := fileRegex.FindStringSubmatch(entry.Name())
		if matches == nil {
			continue
		}

		version, err := strconv.Atoi(matches[1])
		if err != nil {
			return nil, fmt.Errorf("invalid version number in file %s: %w", entry.Name(), err)
		}

		content, err := fs.ReadFile(files, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", entry.Name(), err)
		}

		m := byVersion[version]
		if m == nil {
			m = &Migration{Version: version, Name: strings.ReplaceAll(matches[2], "_", " ")}
			byVersion[version] = m
		}
		if matches[3] == "up" {
			m.Up = string(content)
		} else {
			m.Down = string(content)
		}
	}

	migrations := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		migrations = append(migrations, *m)
	}
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// Migrator applies migrations to a database
type Migrator struct {
	db     *database.DB
	logger *logging.StructuredLogger
}

// NewMigrator creates a new migrator instance
func NewMigrator(db *database.DB, logger *logging.StructuredLogger) *Migrator {
	return &Migrator{db: db, logger: logger}
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, "create_migration_table", `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}
	return nil
}

// Version returns the highest applied migration, 0 when none
func (m *Migrator) Version(ctx context.Context) (int, error) {
	if err := m.ensureTable(ctx); err != nil {
		return 0, err
	}
	var version int
	err := m.db.GetContext(ctx, "migration_version", &version,
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`)
	if err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	return version, nil
}

// Up applies every pending migration and returns how many ran
func (m *Migrator) Up(ctx context.Context) (int, error) {
	migrations, err := Load(m.db.Driver())
	if err != nil {
		return 0, err
	}
	current, err := m.Version(ctx)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, mig := range migrations {
		if mig.Version <= current {
			continue
		}
		if err := m.apply(ctx, mig, true); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}

// Down reverts migrations above target and returns how many ran
func (m *Migrator) Down(ctx context.Context, target int) (int, error) {
	migrations, err := Load(m.db.Driver())
	if err != nil {
		return 0, err
	}
	current, err := m.Version(ctx)
	if err != nil {
		return 0, err
	}
	if target >= current {
		return 0, nil
	}

	reverted := 0
	for i := len(migrations) - 1; i >= 0; i-- {
		mig := migrations[i]
		if mig.Version <= target || mig.Version > current {
			continue
		}
		if err := m.apply(ctx, mig, false); err != nil {
			return reverted, err
		}
		reverted++
	}
	return reverted, nil
}

func (m *Migrator) apply(ctx context.Context, mig Migration, up bool) error {
	script, direction := mig.Up, "up"
	if !up {
		script, direction = mig.Down, "down"
	}
	if strings.TrimSpace(script) == "" {
		return fmt.Errorf("migration %d has no %s SQL", mig.Version, direction)
	}

	err := m.db.WithTx(ctx, func(tx *database.Tx) error {
		if _, err := tx.ExecContext(ctx, "migration_"+direction, script); err != nil {
			return fmt.Errorf("failed to execute migration SQL: %w", err)
		}
		if up {
			_, err := tx.ExecContext(ctx, "migration_set_version",
				`INSERT INTO schema_migrations (version) VALUES (?)`, mig.Version)
			return err
		}
		_, err := tx.ExecContext(ctx, "migration_set_version",
			`DELETE FROM schema_migrations WHERE version = ?`, mig.Version)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to apply migration %d (%s): %w", mig.Version, direction, err)
	}

	m.logger.Info(ctx, "[MIGRATION_APPLIED] Migration applied", logging.Fields{
		"version":   mig.Version,
		"name":      mig.Name,
		"direction": direction,
	})
	return nil
}
