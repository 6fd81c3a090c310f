// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package atspm

import (
	"fmt"
	"strings"
)

// Dialect selects how a table is replaced by the result of a query.
type Dialect int

const (
	// DuckDB uses CREATE OR REPLACE TABLE.
	DuckDB Dialect = iota
	// SQLite drops the table before creating it. Both are sent as a single
	// statement.
	SQLite
)

func (d Dialect) String() string {
	switch d {
	case DuckDB:
		return "duckdb"
	case SQLite:
		return "sqlite"
	}
	return fmt.Sprintf("Dialect(%d)", int(d))
}

// ParseDialect returns the Dialect named s.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "duckdb":
		return DuckDB, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return 0, fmt.Errorf("unknown dialect %q", s)
}

// replaceTable returns the statement that replaces table with the result of
// query.
func (d Dialect) replaceTable(table Name, query string) string {
	if d == SQLite {
		return fmt.Sprintf("DROP TABLE IF EXISTS %s; CREATE TABLE %s AS %s;", table, table, query)
	}
	return fmt.Sprintf("CREATE OR REPLACE TABLE %s AS %s;", table, query)
}
