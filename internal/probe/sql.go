package probe

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// SQLProber counts rows via a parameterized query against the system of
// record, e.g.
//
//	SELECT COUNT(*) FROM tenants WHERE slug = ?
//
// The query must contain exactly one placeholder, bound to the contended
// key at probe time. Identifier interpolation is never performed.
type SQLProber struct {
	db    *sql.DB
	query string
}

// OpenSQL opens a database by driver name and DSN. The sqlite3 driver
// is registered by this package; any other registered driver works by
// name.
func OpenSQL(driver, dsn, query string) (*SQLProber, error) {
	if !strings.Contains(query, "?") {
		return nil, fmt.Errorf("ground-truth query must contain a ? placeholder for the key")
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", driver, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to %s database: %w", driver, err)
	}
	// The prober only reads, and only around the burst; a single
	// connection avoids writer contention with the system under test.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return &SQLProber{db: db, query: query}, nil
}

// NewSQLProber wraps an existing handle, used by tests that share an
// in-memory database with fixture setup.
func NewSQLProber(db *sql.DB, query string) *SQLProber {
	return &SQLProber{db: db, query: query}
}

// Probe runs the count query for the key.
func (p *SQLProber) Probe(ctx context.Context, key string) (int, error) {
	var count int
	if err := p.db.QueryRowContext(ctx, p.query, key).Scan(&count); err != nil {
		return 0, fmt.Errorf("ground-truth query: %w", err)
	}
	return count, nil
}

// Close releases the database handle.
func (p *SQLProber) Close() error {
	return p.db.Close()
}
