package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/louisbranch/passkeyd/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/actor"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/alias"
	"github.com/louisbranch/passkeyd/internal/services/passkeyd/storage/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store implements actor.Storage and alias.Store over SQLite.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

// Open opens the SQLite file at path and applies bundled migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if _, err := sqlitemigrate.ApplyMigrations(ctx, sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// DB returns the raw database handle.
func (s *Store) DB() *sql.DB {
	if s == nil {
		return nil
	}
	return s.sqlDB
}

// Close releases the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// LoadFields implements actor.Storage.
func (s *Store) LoadFields(ctx context.Context, kind, id string, fields []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(fields))
	if len(fields) == 0 {
		return out, nil
	}
	args := make([]any, 0, len(fields)+2)
	args = append(args, kind, id)
	for _, field := range fields {
		args = append(args, field)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(fields)), ",")
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT field, value FROM actor_fields WHERE kind = ? AND actor_id = ? AND field IN (`+placeholders+`)`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("load actor fields: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			field string
			value []byte
		)
		if err := rows.Scan(&field, &value); err != nil {
			return nil, fmt.Errorf("scan actor field: %w", err)
		}
		out[field] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate actor fields: %w", err)
	}
	return out, nil
}

// PutField implements actor.Storage.
func (s *Store) PutField(ctx context.Context, kind, id, field string, value []byte) error {
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO actor_fields (kind, actor_id, field, value, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (kind, actor_id, field) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		kind, id, field, value, toMillis(s.now()))
	if err != nil {
		return fmt.Errorf("put actor field %s: %w", field, err)
	}
	return nil
}

// DeleteField implements actor.Storage.
func (s *Store) DeleteField(ctx context.Context, kind, id, field string) error {
	if _, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM actor_fields WHERE kind = ? AND actor_id = ? AND field = ?`, kind, id, field); err != nil {
		return fmt.Errorf("delete actor field %s: %w", field, err)
	}
	return nil
}

// DeleteFields implements actor.Storage.
func (s *Store) DeleteFields(ctx context.Context, kind, id string) error {
	if _, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM actor_fields WHERE kind = ? AND actor_id = ?`, kind, id); err != nil {
		return fmt.Errorf("delete actor fields: %w", err)
	}
	return nil
}

// LoadAlarm implements actor.Storage.
func (s *Store) LoadAlarm(ctx context.Context, kind, id string) (actor.Alarm, bool, error) {
	var (
		at         int64
		generation int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT fire_at, generation FROM actor_alarms WHERE kind = ? AND actor_id = ?`, kind, id).
		Scan(&at, &generation)
	if errors.Is(err, sql.ErrNoRows) {
		return actor.Alarm{}, false, nil
	}
	if err != nil {
		return actor.Alarm{}, false, fmt.Errorf("load actor alarm: %w", err)
	}
	return actor.Alarm{Kind: kind, ID: id, At: fromMillis(at), Generation: uint64(generation)}, true, nil
}

// PutAlarm implements actor.Storage.
func (s *Store) PutAlarm(ctx context.Context, alarm actor.Alarm) error {
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO actor_alarms (kind, actor_id, fire_at, generation)
VALUES (?, ?, ?, ?)
ON CONFLICT (kind, actor_id) DO UPDATE SET fire_at = excluded.fire_at, generation = excluded.generation`,
		alarm.Kind, alarm.ID, toMillis(alarm.At), int64(alarm.Generation))
	if err != nil {
		return fmt.Errorf("put actor alarm: %w", err)
	}
	return nil
}

// DeleteAlarm implements actor.Storage.
func (s *Store) DeleteAlarm(ctx context.Context, kind, id string) error {
	if _, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM actor_alarms WHERE kind = ? AND actor_id = ?`, kind, id); err != nil {
		return fmt.Errorf("delete actor alarm: %w", err)
	}
	return nil
}

// ListAlarms implements actor.Storage.
func (s *Store) ListAlarms(ctx context.Context, kind string) ([]actor.Alarm, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT actor_id, fire_at, generation FROM actor_alarms WHERE kind = ? ORDER BY fire_at, actor_id`, kind)
	if err != nil {
		return nil, fmt.Errorf("list actor alarms: %w", err)
	}
	defer rows.Close()
	var alarms []actor.Alarm
	for rows.Next() {
		var (
			id         string
			at         int64
			generation int64
		)
		if err := rows.Scan(&id, &at, &generation); err != nil {
			return nil, fmt.Errorf("scan actor alarm: %w", err)
		}
		alarms = append(alarms, actor.Alarm{Kind: kind, ID: id, At: fromMillis(at), Generation: uint64(generation)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate actor alarms: %w", err)
	}
	return alarms, nil
}

// InsertAliases implements alias.Store. The batch runs in one transaction.
func (s *Store) InsertAliases(ctx context.Context, rows []alias.Row) (err error) {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin alias insert: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	createdAt := toMillis(s.now())
	for _, row := range rows {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO aliases (app, alias_hash, user_id, created_at) VALUES (?, ?, ?, ?)`,
			row.App, row.Hash, row.UserID, createdAt); err != nil {
			if isUniqueViolation(err) {
				return alias.ErrTaken()
			}
			return fmt.Errorf("insert alias: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit alias insert: %w", err)
	}
	return nil
}

// LookupAlias implements alias.Store.
func (s *Store) LookupAlias(ctx context.Context, app, hash string) (string, bool, error) {
	var userID string
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT user_id FROM aliases WHERE app = ? AND alias_hash = ?`, app, hash).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup alias: %w", err)
	}
	return userID, true, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3lib.SQLITE_CONSTRAINT, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}

var (
	_ actor.Storage = (*Store)(nil)
	_ alias.Store   = (*Store)(nil)
)
