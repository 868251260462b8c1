// Package keystore persists license keys in a relational database. It owns
// the keys table, its uniqueness constraint and the conditional writes that
// keep first-use metadata write-once under concurrent redemption.
package keystore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/keygate/keygate/internal/lifecycle"
	"github.com/keygate/keygate/internal/model"
)

// DefaultTable holds the key records unless Config.Table names another.
const DefaultTable = "keys"

// Config selects the database backing the store.
type Config struct {
	Driver  string // sqlite (default), postgres, mysql, mssql, oracle
	DSN     string
	DataDir string // sqlite only, used when DSN is empty
	Table   string // defaults to DefaultTable
	Pool    model.PoolConfig
}

// Store is the durable table of key records.
type Store struct {
	db      *sqlx.DB
	dialect *dialect
	name    string // bare table name
	table   string // quoted for the dialect
}

// Open connects to the configured database and ensures the schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	d, err := lookupDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}
	table := cfg.Table
	if table == "" {
		table = DefaultTable
	}
	if err := ValidateTableName(table); err != nil {
		return nil, err
	}

	dsn := cfg.DSN
	if d.name == "sqlite" && dsn == "" {
		if cfg.DataDir != "" {
			if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
		dsn = SQLiteDSN(cfg.DataDir)
	}
	if dsn == "" {
		return nil, fmt.Errorf("%s: dsn is required", d.name)
	}
	dsn = SanitizeDSN(d.name, dsn)

	db, err := sqlx.ConnectContext(ctx, d.driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s key store: %w", d.name, err)
	}

	if d.name == "sqlite" {
		db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes
	} else {
		if cfg.Pool.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.Pool.MaxOpenConns)
		}
		if cfg.Pool.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.Pool.MaxIdleConns)
		}
		if cfg.Pool.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(cfg.Pool.ConnMaxLifetime)
		}
		if cfg.Pool.ConnMaxIdleTime > 0 {
			db.SetConnMaxIdleTime(cfg.Pool.ConnMaxIdleTime)
		}
	}

	s := &Store{db: db, dialect: d, name: table, table: d.quote(table)}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate key store: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Driver returns the dialect name of the store.
func (s *Store) Driver() string {
	return s.dialect.name
}

// q rebinds ? placeholders for the driver.
func (s *Store) q(query string) string {
	return s.db.Rebind(query)
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

// GetKey looks up a key by its key string.
func (s *Store) GetKey(ctx context.Context, keyString string) (*model.Key, error) {
	var k model.Key
	query := s.q(fmt.Sprintf("SELECT %s FROM %s WHERE key_string = ?", s.dialect.columns(), s.table))
	if err := s.db.GetContext(ctx, &k, query, keyString); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get key: %w", err)
	}
	return &k, nil
}

// ListKeys returns keys newest first.
func (s *Store) ListKeys(ctx context.Context, limit, offset int) ([]model.Key, error) {
	page, args := s.dialect.paginate(limit, offset)
	query := s.q(fmt.Sprintf("SELECT %s FROM %s ORDER BY created_at DESC, id DESC %s",
		s.dialect.columns(), s.table, page))

	keys := []model.Key{}
	if err := s.db.SelectContext(ctx, &keys, query, args...); err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return keys, nil
}

// CountKeys returns the number of stored keys.
func (s *Store) CountKeys(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, fmt.Sprintf("SELECT COUNT(*) FROM %s", s.table)); err != nil {
		return 0, fmt.Errorf("count keys: %w", err)
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Writes
// ---------------------------------------------------------------------------

// CreateKey inserts a new active key with no redemption metadata.
// A key string collision returns ErrDuplicateKey.
func (s *Store) CreateKey(ctx context.Context, k *model.Key) error {
	k.IsActive = true
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now()
	}
	k.CreatedAt = k.CreatedAt.UTC()
	if k.ExpiresAt != nil {
		exp := k.ExpiresAt.UTC()
		k.ExpiresAt = &exp
	}

	query := s.q(fmt.Sprintf(
		"INSERT INTO %s (id, key_string, is_active, created_at, expires_at) VALUES (?, ?, %s, ?, ?)",
		s.table, s.dialect.trueLit))

	if _, err := s.db.ExecContext(ctx, query, k.ID, k.KeyString, k.CreatedAt, k.ExpiresAt); err != nil {
		if isDuplicate(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("insert key: %w", err)
	}
	return nil
}

// ApplyRedemption writes the mutation of a granted redemption as a single
// conditional UPDATE. First-use columns are written only while redeemed_at is
// NULL and the hardware id only while redeemed_hwid is NULL; the key must
// still be active. If any condition no longer holds, ErrConflict is returned
// and nothing is written.
func (s *Store) ApplyRedemption(ctx context.Context, keyString string, m lifecycle.Mutation) error {
	var (
		sets  []string
		conds = []string{"key_string = ?", "is_active = " + s.dialect.trueLit}
		args  []interface{}
	)
	if m.RecordFirstUse {
		sets = append(sets, "redeemed_at = ?", "redeemed_by = ?", "redeemed_ip = ?")
		args = append(args, m.RedeemedAt.UTC(), m.RedeemedBy, m.RedeemedIP)
		conds = append(conds, "redeemed_at IS NULL")
	}
	if m.BindHardware {
		sets = append(sets, "redeemed_hwid = ?")
		args = append(args, m.HardwareID)
		conds = append(conds, "redeemed_hwid IS NULL")
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, keyString)

	query := s.q(fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		s.table, strings.Join(sets, ", "), strings.Join(conds, " AND ")))

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("apply redemption: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("apply redemption rows affected: %w", err)
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// Ban deactivates an active key. The banning actor is recorded only when no
// redemption metadata exists yet. ErrConflict means the key is missing or
// already inactive; callers re-read to tell which.
func (s *Store) Ban(ctx context.Context, keyString string, m lifecycle.BanMutation) error {
	query := s.q(fmt.Sprintf(
		"UPDATE %s SET is_active = %s, redeemed_by = COALESCE(redeemed_by, ?), redeemed_at = COALESCE(redeemed_at, ?) WHERE key_string = ? AND is_active = %s",
		s.table, s.dialect.falseLit, s.dialect.trueLit))

	result, err := s.db.ExecContext(ctx, query, m.Actor, m.At.UTC(), keyString)
	if err != nil {
		return fmt.Errorf("ban key: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("ban key rows affected: %w", err)
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// DeleteAll removes every key and returns the number deleted.
func (s *Store) DeleteAll(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", s.table))
	if err != nil {
		return 0, fmt.Errorf("delete keys: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete keys rows affected: %w", err)
	}
	return n, nil
}
