package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"

	"modernc.org/sqlite"
)

type dialect struct {
	name   string
	driver string
	// positional reports whether placeholders are $1, $2, ... instead of ?.
	positional bool
	// lower is the SQL function that case-folds a column for search.
	lower string
}

// SQLite's built-in LOWER folds ASCII only, so searches on names like
// "Émile" go through a Go-backed function instead.
const sqliteLowerFunc = "unicode_lower"

var (
	sqliteDialect   = dialect{name: "sqlite", driver: "sqlite", lower: sqliteLowerFunc}
	postgresDialect = dialect{name: "postgres", driver: "pgx", positional: true, lower: "LOWER"}
)

func init() {
	sqlite.MustRegisterDeterministicScalarFunction(sqliteLowerFunc, 1, unicodeLower)
}

func unicodeLower(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return v, nil
	}
}

func dialectFor(name string) (dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sqlite":
		return sqliteDialect, nil
	case "postgres", "postgresql", "pgx":
		return postgresDialect, nil
	default:
		return dialect{}, fmt.Errorf("unsupported database driver %q", name)
	}
}

// rebind rewrites ? placeholders for drivers that need numbered ones.
func (d dialect) rebind(query string) string {
	if !d.positional || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d dialect) configure(ctx context.Context, db *sql.DB) error {
	if d.positional {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(30 * time.Minute)
		db.SetConnMaxIdleTime(5 * time.Minute)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			return fmt.Errorf("db ping failed: %w", err)
		}
		return nil
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}
	return nil
}
