// Package migrate applies the embedded *.up.sql files against PostgreSQL.
// It uses the same schema_migrations table format as golang-migrate (bigint
// version + dirty flag) so the two tools are interchangeable.
package migrate

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// DB is the subset of *pgxpool.Pool used to apply migrations.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// File is one migration.
type File struct {
	Name    string
	Version int64
}

// Files lists the up migrations in fsys, ordered by version.
func Files(fsys fs.FS) ([]File, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var files []File
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".up.sql") {
			continue
		}
		ver, err := versionFromFile(e.Name())
		if err != nil {
			return nil, fmt.Errorf("parse version from %s: %w", e.Name(), err)
		}
		files = append(files, File{Name: e.Name(), Version: ver})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Version < files[j].Version })
	return files, nil
}

// Up applies every migration not yet recorded as clean and returns how many
// were applied.
func Up(ctx context.Context, db DB, fsys fs.FS, logger *zap.Logger) (int, error) {
	if _, err := db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version bigint NOT NULL,
			dirty   boolean NOT NULL,
			PRIMARY KEY (version)
		)`); err != nil {
		return 0, fmt.Errorf("create schema_migrations: %w", err)
	}

	files, err := Files(fsys)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, f := range files {
		var exists bool
		if err := db.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1 AND dirty = false)`,
			f.Version,
		).Scan(&exists); err != nil {
			return applied, fmt.Errorf("check %s: %w", f.Name, err)
		}
		if exists {
			logger.Debug("migrate: skip", zap.String("file", f.Name))
			continue
		}

		sql, err := fs.ReadFile(fsys, f.Name)
		if err != nil {
			return applied, fmt.Errorf("read %s: %w", f.Name, err)
		}

		// dirty=true before applying so a crash is visible
		if _, err := db.Exec(ctx,
			`INSERT INTO schema_migrations (version, dirty) VALUES ($1, true)
			 ON CONFLICT (version) DO UPDATE SET dirty = true`, f.Version,
		); err != nil {
			return applied, fmt.Errorf("mark dirty %s: %w", f.Name, err)
		}
		if _, err := db.Exec(ctx, string(sql)); err != nil {
			return applied, fmt.Errorf("apply %s: %w", f.Name, err)
		}
		if _, err := db.Exec(ctx,
			`UPDATE schema_migrations SET dirty = false WHERE version = $1`, f.Version,
		); err != nil {
			return applied, fmt.Errorf("mark clean %s: %w", f.Name, err)
		}

		logger.Info("migrate: applied", zap.String("file", f.Name))
		applied++
	}
	return applied, nil
}

// versionFromFile extracts the leading integer from a migration filename:
// "001_user_accounts.up.sql" → 1.
func versionFromFile(filename string) (int64, error) {
	prefix, _, ok := strings.Cut(filename, "_")
	if !ok {
		return 0, fmt.Errorf("unexpected filename format")
	}
	return strconv.ParseInt(prefix, 10, 64)
}
