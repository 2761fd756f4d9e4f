package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"

	"olt-collector/internal/domain"
)

const migrationsTable = "schema_migrations"

//go:embed migrations/*.sql
var migrationsFS embed.FS

// optional extensions; the schema works without them
var extensions = []string{"timescaledb", "postgis"}

// extensionStatements run on every start once their extension is present
var extensionStatements = map[string][]string{
	"timescaledb": {
		`SELECT create_hypertable('ont_power', 'time', if_not_exists => TRUE, migrate_data => TRUE)`,
	},
	"postgis": {
		`ALTER TABLE ont ADD COLUMN IF NOT EXISTS geom geometry(Point, 4326)`,
		`CREATE INDEX IF NOT EXISTS ont_geom_idx ON ont USING GIST (geom)`,
	},
}

// Migrate applies the embedded schema migrations that were not applied yet,
// then the extension specific statements for the extensions available.
func (db *PostgresDB) Migrate(ctx context.Context, log domain.Logger) error {
	conn, err := db.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("migrations: acquire connection: %w", err)
	}
	defer conn.Release()

	available := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		if _, err := conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS "+ext); err != nil {
			log.WithError(err).WithField("extension", ext).Warn("Extensão indisponível, seguindo sem ela")
			continue
		}
		available[ext] = true
	}

	if _, err := conn.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		version     TEXT PRIMARY KEY,
		applied_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, migrationsTable)); err != nil {
		return fmt.Errorf("migrations: create tracking table: %w", err)
	}

	applied, err := appliedVersions(ctx, conn.Conn())
	if err != nil {
		return err
	}

	filenames, err := migrationFiles()
	if err != nil {
		return err
	}

	for _, name := range filenames {
		version := extractVersion(name)
		if _, ok := applied[version]; ok {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("migrations: read %s: %w", name, err)
		}

		if err := applyMigration(ctx, conn.Conn(), version, splitSQLStatements(string(content))); err != nil {
			return fmt.Errorf("migrations: %s: %w", name, err)
		}

		log.WithField("migration", name).Info("Migração aplicada")
	}

	for _, ext := range extensions {
		if !available[ext] {
			continue
		}
		for _, stmt := range extensionStatements[ext] {
			if _, err := conn.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("migrations: %s setup: %w", ext, err)
			}
		}
	}

	return nil
}

func appliedVersions(ctx context.Context, conn *pgx.Conn) (map[string]struct{}, error) {
	rows, err := conn.Query(ctx, fmt.Sprintf(`SELECT version FROM %s`, migrationsTable))
	if err != nil {
		return nil, fmt.Errorf("migrations: list applied versions: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]struct{})
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("migrations: scan applied version: %w", err)
		}
		applied[version] = struct{}{}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("migrations: iterate applied versions: %w", err)
	}

	return applied, nil
}

// applyMigration runs one file and records its version in the same transaction
func applyMigration(ctx context.Context, conn *pgx.Conn, version string, statements []string) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for idx, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("statement %d failed: %w", idx+1, err)
		}
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (version) VALUES ($1)`, migrationsTable), version); err != nil {
		return fmt.Errorf("record version: %w", err)
	}

	return tx.Commit(ctx)
}

// migrationFiles lists the embedded .up.sql files in apply order
func migrationFiles() ([]string, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("migrations: read embedded migrations: %w", err)
	}

	filenames := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".up.sql") {
			continue
		}
		filenames = append(filenames, entry.Name())
	}

	sort.Strings(filenames)
	return filenames, nil
}

func extractVersion(filename string) string {
	version, _, _ := strings.Cut(filename, "_")
	return version
}

// splitSQLStatements splits a migration on statement terminating semicolons.
// Comment lines are dropped; the migrations carry no function bodies.
func splitSQLStatements(content string) []string {
	var (
		statements []string
		current    strings.Builder
	)

	flush := func() {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}

		if strings.HasSuffix(trimmed, ";") {
			current.WriteString(strings.TrimSuffix(trimmed, ";"))
			flush()
			continue
		}

		current.WriteString(line)
		current.WriteByte('\n')
	}
	flush()

	return statements
}
