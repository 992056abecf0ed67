package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/libsql-client-go/libsql" // Turso driver
	"github.com/wadjakorntonsri/tinylink/pkg/core/domain"
	"github.com/wadjakorntonsri/tinylink/pkg/ports"
	msqlite "modernc.org/sqlite" // Local SQLite driver
	sqlite3 "modernc.org/sqlite/lib"
)

type SQLiteRepository struct {
	db *sql.DB
}

// IsRemoteURL reports whether dbURL points at a libsql (Turso) server.
func IsRemoteURL(dbURL string) bool {
	return strings.HasPrefix(dbURL, "libsql://") || strings.HasPrefix(dbURL, "wss://") ||
		strings.HasPrefix(dbURL, "https://")
}

func NewSQLiteRepository(dbURL string) (*SQLiteRepository, error) {
	driverName := "sqlite"
	if IsRemoteURL(dbURL) {
		driverName = "libsql"
	}

	db, err := sql.Open(driverName, dbURL)
	if err != nil {
		return nil, err
	}

	if driverName == "sqlite" {
		// One connection: in-memory databases stay alive and writers never
		// race each other for the file lock.
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)
		for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode = WAL"} {
			if _, err := db.Exec(pragma); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("%s: %w", pragma, err)
			}
		}
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteRepository{db: db}, nil
}

func migrate(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS links (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT NOT NULL UNIQUE,
		long_url TEXT NOT NULL,
		clicks INTEGER NOT NULL DEFAULT 0 CHECK (clicks >= 0),
		last_clicked_at DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_links_created_at ON links(created_at);
	`
	_, err := db.Exec(query)
	return err
}

func (r *SQLiteRepository) InsertIfAbsent(ctx context.Context, link *domain.Link) error {
	query := `INSERT INTO links (code, long_url, clicks, created_at)
			  VALUES (?, ?, 0, ?)
			  ON CONFLICT(code) DO NOTHING
			  RETURNING id`

	err := r.db.QueryRowContext(ctx, query, link.Code, link.LongURL, link.CreatedAt).Scan(&link.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrConflict
	}
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return err
	}
	link.Clicks = 0
	link.LastClickedAt = nil
	return nil
}

const selectLink = `SELECT id, code, long_url, clicks, last_clicked_at, created_at FROM links`

type scanner interface {
	Scan(dest ...any) error
}

func scanLink(row scanner) (*domain.Link, error) {
	var link domain.Link
	var lastClicked sql.NullTime
	if err := row.Scan(&link.ID, &link.Code, &link.LongURL, &link.Clicks, &lastClicked, &link.CreatedAt); err != nil {
		return nil, err
	}
	if lastClicked.Valid {
		t := lastClicked.Time
		link.LastClickedAt = &t
	}
	return &link, nil
}

func (r *SQLiteRepository) FindByCode(ctx context.Context, code string) (*domain.Link, error) {
	link, err := scanLink(r.db.QueryRowContext(ctx, selectLink+` WHERE code = ?`, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return link, err
}

func (r *SQLiteRepository) FindByID(ctx context.Context, id int64) (*domain.Link, error) {
	link, err := scanLink(r.db.QueryRowContext(ctx, selectLink+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return link, err
}

func (r *SQLiteRepository) IncrementClicks(ctx context.Context, code string, at time.Time) (int64, error) {
	query := `UPDATE links SET clicks = clicks + 1, last_clicked_at = ? WHERE code = ?`
	res, err := r.db.ExecContext(ctx, query, at, code)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *SQLiteRepository) UpdateCode(ctx context.Context, oldCode, newCode string) (*domain.Link, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE links SET code = ? WHERE code = ?`, newCode, oldCode)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrConflict
		}
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, domain.ErrNotFound
	}

	link, err := scanLink(tx.QueryRowContext(ctx, selectLink+` WHERE code = ?`, newCode))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return link, nil
}

func (r *SQLiteRepository) DeleteByID(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM links WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *SQLiteRepository) CountAll(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM links`).Scan(&count)
	return count, err
}

func (r *SQLiteRepository) SumClicks(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(clicks), 0) FROM links`).Scan(&total)
	return total, err
}

func (r *SQLiteRepository) List(ctx context.Context, limit, offset int) ([]domain.Link, error) {
	return r.query(ctx, selectLink+` ORDER BY id DESC LIMIT ? OFFSET ?`, limit, offset)
}

func (r *SQLiteRepository) Dump(ctx context.Context) ([]domain.Link, error) {
	return r.query(ctx, selectLink+` ORDER BY id ASC`)
}

func (r *SQLiteRepository) query(ctx context.Context, query string, args ...any) ([]domain.Link, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	links := []domain.Link{}
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, *link)
	}
	return links, rows.Err()
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// isUniqueViolation recognizes modernc's extended result codes and falls back
// to the message for the libsql driver, which only returns strings.
func isUniqueViolation(err error) bool {
	var se *msqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

// Ensure interface compliance
var _ ports.LinkStore = (*SQLiteRepository)(nil)
