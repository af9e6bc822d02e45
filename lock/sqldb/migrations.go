package sqldb

import (
	"context"
	"database/sql"
	"fmt"
)

// CreateTableSQL returns the DDL for creating the lock bookkeeping
// table. The statement is portable across SQLite and MySQL.
func CreateTableSQL(tableName string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	path_key  TEXT    NOT NULL,
	lock_type INTEGER NOT NULL,
	session   TEXT    NOT NULL,
	expires   BIGINT  NOT NULL,
	PRIMARY KEY (path_key, lock_type, session)
)`, tableName)
}

// Setup creates the bookkeeping table if it does not exist yet.
func Setup(ctx context.Context, db *sql.DB, tableName string) error {
	if _, err := db.ExecContext(ctx, CreateTableSQL(tableName)); err != nil {
		return fmt.Errorf("creating lock table %s: %w", tableName, err)
	}
	return nil
}
