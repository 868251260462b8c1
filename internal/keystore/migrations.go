package keystore

import (
	"context"
	"fmt"
)

// Every statement must be safe to rerun: creates are guarded or fail with an
// "already exists" error, and forward columns are added with statements that
// fail with "duplicate column" once applied. Both failures are skipped.

func sqliteMigrations(table string) []string {
	t := quoteDouble(table)
	return []string{
		`CREATE TABLE IF NOT EXISTS ` + t + ` (
			id TEXT PRIMARY KEY,
			key_string TEXT NOT NULL UNIQUE,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			expires_at DATETIME,
			redeemed_at DATETIME,
			redeemed_by TEXT
		)`,
		// v2: split-out origin address and hardware binding
		`ALTER TABLE ` + t + ` ADD COLUMN redeemed_ip TEXT`,
		`ALTER TABLE ` + t + ` ADD COLUMN redeemed_hwid TEXT`,
	}
}

func postgresMigrations(table string) []string {
	t := quoteDouble(table)
	return []string{
		`CREATE TABLE IF NOT EXISTS ` + t + ` (
			id VARCHAR(64) PRIMARY KEY,
			key_string VARCHAR(64) NOT NULL UNIQUE,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			expires_at TIMESTAMPTZ,
			redeemed_at TIMESTAMPTZ,
			redeemed_by VARCHAR(512)
		)`,
		`ALTER TABLE ` + t + ` ADD COLUMN IF NOT EXISTS redeemed_ip VARCHAR(255)`,
		`ALTER TABLE ` + t + ` ADD COLUMN IF NOT EXISTS redeemed_hwid VARCHAR(255)`,
	}
}

func mysqlMigrations(table string) []string {
	t := quoteBacktick(table)
	return []string{
		`CREATE TABLE IF NOT EXISTS ` + t + ` (
			id VARCHAR(64) NOT NULL PRIMARY KEY,
			key_string VARCHAR(64) NOT NULL UNIQUE,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at DATETIME(6) NOT NULL,
			expires_at DATETIME(6) NULL,
			redeemed_at DATETIME(6) NULL,
			redeemed_by VARCHAR(512) NULL
		)`,
		`ALTER TABLE ` + t + ` ADD COLUMN redeemed_ip VARCHAR(255) NULL`,
		`ALTER TABLE ` + t + ` ADD COLUMN redeemed_hwid VARCHAR(255) NULL`,
	}
}

// The guards take the bare name; CREATE and ALTER take the bracketed one.
func mssqlMigrations(table string) []string {
	t := quoteBracket(table)
	return []string{
		`IF OBJECT_ID(N'` + table + `', N'U') IS NULL CREATE TABLE ` + t + ` (
			id NVARCHAR(64) NOT NULL PRIMARY KEY,
			key_string NVARCHAR(64) NOT NULL UNIQUE,
			is_active BIT NOT NULL DEFAULT 1,
			created_at DATETIME2 NOT NULL,
			expires_at DATETIME2 NULL,
			redeemed_at DATETIME2 NULL,
			redeemed_by NVARCHAR(512) NULL
		)`,
		`IF COL_LENGTH(N'` + table + `', N'redeemed_ip') IS NULL ALTER TABLE ` + t + ` ADD redeemed_ip NVARCHAR(255) NULL`,
		`IF COL_LENGTH(N'` + table + `', N'redeemed_hwid') IS NULL ALTER TABLE ` + t + ` ADD redeemed_hwid NVARCHAR(255) NULL`,
	}
}

func oracleMigrations(table string) []string {
	t := quoteDouble(table)
	return []string{
		`CREATE TABLE ` + t + ` (
			id VARCHAR2(64) PRIMARY KEY,
			key_string VARCHAR2(64) NOT NULL UNIQUE,
			is_active NUMBER(1) DEFAULT 1 NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			expires_at TIMESTAMP WITH TIME ZONE,
			redeemed_at TIMESTAMP WITH TIME ZONE,
			redeemed_by VARCHAR2(512)
		)`,
		`ALTER TABLE ` + t + ` ADD (redeemed_ip VARCHAR2(255))`,
		`ALTER TABLE ` + t + ` ADD (redeemed_hwid VARCHAR2(255))`,
	}
}

func (s *Store) migrate(ctx context.Context) error {
	for _, m := range s.dialect.migrations(s.name) {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			if isAlreadyApplied(err) {
				continue
			}
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}
