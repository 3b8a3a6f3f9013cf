// Package cache implements the SQLite-backed request cache: one database
// per logical queue (upload, download, upload-delete, download-delete),
// each holding one table per synced directory, tracking which resources
// still need a transfer or deletion across restarts.
package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // pure Go driver, registers as "sqlite"

	"github.com/unioslo/tacl/internal/tacerr"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Kind names one of the four logical caches.
type Kind string

const (
	UploadQueue         Kind = "upload-queue"
	DownloadQueue       Kind = "download-queue"
	UploadDeleteQueue   Kind = "upload-delete-queue"
	DownloadDeleteQueue Kind = "download-delete-queue"
)

// fileNames maps each Kind to its on-disk database file.
var fileNames = map[Kind]string{
	UploadQueue:         "upload-request-cache.db",
	DownloadQueue:       "download-request-cache.db",
	UploadDeleteQueue:   "update-delete-cache.db",
	DownloadDeleteQueue: "download-delete-cache.db",
}

// Row is one resource tracked for transfer or deletion: the path relative
// to the sync root, and an optional integrity reference (the ETag or mtime
// string the work list was computed from, stored alongside the path).
type Row struct {
	ResourcePath       string
	IntegrityReference string
}

// Cache wraps a single SQLite database holding one table per directory key.
type Cache struct {
	kind   Kind
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if absent) the database for kind under dir, applying
// schema migrations and WAL pragmas.
func Open(ctx context.Context, dir string, kind Kind, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}

	name, ok := fileNames[kind]
	if !ok {
		return nil, fmt.Errorf("cache: unknown kind %q", kind)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, &tacerr.CacheError{Key: string(kind), Err: fmt.Errorf("%w: %w", tacerr.ErrCacheConnection, err)}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=foreign_keys(ON)",
		filepath.Join(dir, name))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &tacerr.CacheError{Key: string(kind), Err: fmt.Errorf("%w: %w", tacerr.ErrCacheConnection, err)}
	}

	// One client per tenant is assumed; a single connection avoids
	// SQLITE_BUSY races between migration and later writers.
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, &tacerr.CacheError{Key: string(kind), Err: fmt.Errorf("%w: %w", tacerr.ErrCacheConnection, err)}
	}

	return &Cache{kind: kind, db: db, logger: logger}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("cache: sub filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, sub)
	if err != nil {
		return fmt.Errorf("cache: migration provider: %w", err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("cache: running migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// tableName derives the SQL table identifier for a directory key from the
// full normalized path, not its basename, so two roots sharing a basename
// never collide. The basename is kept separately as display_name for
// human-facing listings.
func tableName(key string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(key)))
	return "t_" + fmt.Sprintf("%x", sum)
}

// Create ensures the work table for key exists, registering it in the
// directories index table if new.
func (c *Cache) Create(ctx context.Context, key string) error {
	table := tableName(key)

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
		resource_path TEXT NOT NULL UNIQUE,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		integrity_reference TEXT
	)`, table)

	if _, err := c.db.ExecContext(ctx, ddl); err != nil {
		return &tacerr.CacheError{Key: key, Err: fmt.Errorf("%w: %w", tacerr.ErrCacheCreation, err)}
	}

	_, err := c.db.ExecContext(ctx,
		`INSERT INTO directories (table_name, path, display_name) VALUES (?, ?, ?)
		 ON CONFLICT(table_name) DO NOTHING`,
		table, key, filepath.Base(key),
	)
	if err != nil {
		return &tacerr.CacheError{Key: key, Err: fmt.Errorf("%w: %w", tacerr.ErrCacheCreation, err)}
	}

	return nil
}

// Exists reports whether key's work table is present — its presence at
// startup means a prior run left unfinished work.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	var n int

	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`,
		tableName(key),
	).Scan(&n)
	if err != nil {
		return false, &tacerr.CacheError{Key: key, Err: fmt.Errorf("%w: %w", tacerr.ErrCacheExistence, err)}
	}

	return n > 0, nil
}

// AddMany bulk-inserts rows for key inside a single transaction. A
// duplicate resource_path is a hard error: the caller must destroy the
// cache and restart from scratch.
func (c *Cache) AddMany(ctx context.Context, key string, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	table := tableName(key)

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return &tacerr.CacheError{Key: key, Err: fmt.Errorf("%w: %w", tacerr.ErrCacheConnection, err)}
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		fmt.Sprintf(`INSERT INTO %q (resource_path, integrity_reference) VALUES (?, ?)`, table))
	if err != nil {
		return &tacerr.CacheError{Key: key, Err: fmt.Errorf("%w: %w", tacerr.ErrCacheCreation, err)}
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row.ResourcePath, nullable(row.IntegrityReference)); err != nil {
			if isUniqueViolation(err) {
				return &tacerr.CacheError{
					Key: key,
					Err: fmt.Errorf("%w: duplicate resource %q, delete cache and try again", tacerr.ErrCacheDuplicateItem, row.ResourcePath),
				}
			}

			return &tacerr.CacheError{Key: key, Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &tacerr.CacheError{Key: key, Err: fmt.Errorf("%w: %w", tacerr.ErrCacheConnection, err)}
	}

	return nil
}

// Remove deletes the row for resourcePath from key's table.
func (c *Cache) Remove(ctx context.Context, key, resourcePath string) error {
	table := tableName(key)

	_, err := c.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %q WHERE resource_path = ?`, table), resourcePath)
	if err != nil {
		return &tacerr.CacheError{Key: key, Err: err}
	}

	return nil
}

// Read returns every row currently tracked for key.
func (c *Cache) Read(ctx context.Context, key string) ([]Row, error) {
	table := tableName(key)

	rows, err := c.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT resource_path, COALESCE(integrity_reference, '') FROM %q ORDER BY resource_path`, table))
	if err != nil {
		if isNoSuchTable(err) {
			return nil, nil
		}

		return nil, &tacerr.CacheError{Key: key, Err: err}
	}
	defer rows.Close()

	var out []Row

	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ResourcePath, &r.IntegrityReference); err != nil {
			return nil, &tacerr.CacheError{Key: key, Err: err}
		}

		out = append(out, r)
	}

	return out, rows.Err()
}

// Destroy drops key's work table and its directories index entry. This
// must happen once a sync completes without exception, so a later run
// doesn't mistake stale cache rows for unfinished work.
func (c *Cache) Destroy(ctx context.Context, key string) error {
	table := tableName(key)

	if _, err := c.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %q`, table)); err != nil {
		return &tacerr.CacheError{Key: key, Err: fmt.Errorf("%w: %w", tacerr.ErrCacheDestroy, err)}
	}

	if _, err := c.db.ExecContext(ctx, `DELETE FROM directories WHERE table_name = ?`, table); err != nil {
		return &tacerr.CacheError{Key: key, Err: fmt.Errorf("%w: %w", tacerr.ErrCacheDestroy, err)}
	}

	return nil
}

// Overview entry for one tracked directory, summarizing its work table.
type Overview struct {
	Path        string
	DisplayName string
	MinCreated  sql.NullTime
	MaxCreated  sql.NullTime
}

// OverviewAll lists every directory known to this cache, along with the
// min/max created_at of its rows.
func (c *Cache) OverviewAll(ctx context.Context) ([]Overview, error) {
	dirRows, err := c.db.QueryContext(ctx, `SELECT table_name, path, display_name FROM directories`)
	if err != nil {
		return nil, &tacerr.CacheError{Key: string(c.kind), Err: err}
	}
	defer dirRows.Close()

	type dirEntry struct {
		table, path, display string
	}

	var entries []dirEntry

	for dirRows.Next() {
		var e dirEntry
		if err := dirRows.Scan(&e.table, &e.path, &e.display); err != nil {
			return nil, &tacerr.CacheError{Key: string(c.kind), Err: err}
		}

		entries = append(entries, e)
	}

	if err := dirRows.Err(); err != nil {
		return nil, &tacerr.CacheError{Key: string(c.kind), Err: err}
	}

	out := make([]Overview, 0, len(entries))

	for _, e := range entries {
		ov := Overview{Path: e.path, DisplayName: e.display}

		err := c.db.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT MIN(created_at), MAX(created_at) FROM %q`, e.table),
		).Scan(&ov.MinCreated, &ov.MaxCreated)
		if err != nil && !isNoSuchTable(err) {
			return nil, &tacerr.CacheError{Key: e.path, Err: err}
		}

		out = append(out, ov)
	}

	return out, nil
}

// DestroyAll drops every tracked directory's work table in this cache.
func (c *Cache) DestroyAll(ctx context.Context) error {
	overview, err := c.OverviewAll(ctx)
	if err != nil {
		return err
	}

	for _, ov := range overview {
		if err := c.Destroy(ctx, ov.Path); err != nil {
			return err
		}
	}

	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isNoSuchTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}
