package cli

import (
	"database/sql"
	"fmt"

	_ "github.com/marcboeker/go-duckdb"
	_ "github.com/mattn/go-sqlite3"
)

// openDB opens the store. The pool is limited to one connection so that
// every statement sees the tables created before it, including in-memory
// databases.
func openDB(driver, dsn string) (*sql.DB, error) {
	if dsn == "" && driver == "sqlite3" {
		dsn = ":memory:"
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	return db, nil
}
