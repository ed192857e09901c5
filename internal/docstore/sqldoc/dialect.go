package sqldoc

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect identifies the SQL flavour documents are stored with.
type Dialect string

const (
	SQLite   Dialect = "sqlite3"
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
)

// ParseDialect accepts the aliases operators commonly configure.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "sqlite3", "sqlite":
		return SQLite, nil
	case "postgres", "pgx", "postgresdb", "pg", "postgresql":
		return Postgres, nil
	case "mysql", "tidb":
		return MySQL, nil
	default:
		return "", fmt.Errorf("invalid dialect: %s", name)
	}
}

// DriverName is the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	switch d {
	case Postgres:
		return "pgx"
	case MySQL:
		return "mysql"
	default:
		return "sqlite3"
	}
}

func (d Dialect) createTable() string {
	switch d {
	case Postgres:
		return `CREATE TABLE IF NOT EXISTS documents (
    collection VARCHAR(128) NOT NULL,
    id VARCHAR(191) NOT NULL,
    doc JSONB NOT NULL,
    PRIMARY KEY (collection, id)
)`
	case MySQL:
		return `CREATE TABLE IF NOT EXISTS documents (
    collection VARCHAR(128) NOT NULL,
    id VARCHAR(191) NOT NULL,
    doc JSON NOT NULL,
    PRIMARY KEY (collection, id)
)`
	default:
		return `CREATE TABLE IF NOT EXISTS documents (
    collection TEXT NOT NULL,
    id TEXT NOT NULL,
    doc TEXT NOT NULL,
    PRIMARY KEY (collection, id)
)`
	}
}

func (d Dialect) forUpdate() string {
	if d == SQLite {
		return ""
	}

	return " FOR UPDATE"
}

// docParam wraps the JSON placeholder so postgres stores it as jsonb.
func (d Dialect) docParam() string {
	if d == Postgres {
		return "?::jsonb"
	}

	return "?"
}

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// fieldExpr returns the SQL expression extracting field as text. Only plain
// dotted identifiers are accepted since the path is inlined in the statement.
func (d Dialect) fieldExpr(field string) (string, bool) {
	if !fieldPattern.MatchString(field) {
		return "", false
	}

	switch d {
	case Postgres:
		return fmt.Sprintf("(doc #>> '{%s}')", strings.ReplaceAll(field, ".", ",")), true
	case MySQL:
		return fmt.Sprintf("JSON_UNQUOTE(JSON_EXTRACT(doc, '$.%s'))", field), true
	default:
		return fmt.Sprintf("json_extract(doc, '$.%s')", field), true
	}
}

// containsExpr tests whether the array at field holds the string placeholder.
func (d Dialect) containsExpr(field string) (string, bool) {
	if !fieldPattern.MatchString(field) {
		return "", false
	}

	switch d {
	case Postgres:
		return fmt.Sprintf("jsonb_exists(doc #> '{%s}', ?)", strings.ReplaceAll(field, ".", ",")), true
	case MySQL:
		return fmt.Sprintf("JSON_CONTAINS(JSON_EXTRACT(doc, '$.%s'), JSON_QUOTE(?))", field), true
	default:
		return fmt.Sprintf("EXISTS (SELECT 1 FROM json_each(doc, '$.%s') WHERE json_each.value = ?)", field), true
	}
}

// rebind rewrites ? placeholders into the dialect's positional form.
func (d Dialect) rebind(query string) string {
	if d != Postgres {
		return query
	}

	var (
		b strings.Builder
		n int
	)

	b.Grow(len(query) + 8)

	for _, r := range query {
		if r != '?' {
			b.WriteRune(r)
			continue
		}

		n++

		b.WriteByte('$')
		b.WriteString(strconv.Itoa(n))
	}

	return b.String()
}

func isDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}

	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
