// Package postgres implements storage.Store against PostgreSQL using
// database/sql and lib/pq directly (no ORM), split by concern the way the
// teacher splits internal/app/storage/postgres/store_*.go. Grounded on
// store.go's $N-placeholder/rowScanner shape and internal/app/jam/
// store_pg.go's `FOR UPDATE SKIP LOCKED` claim pattern.
package postgres

import (
	"database/sql"
	"time"

	"github.com/oddurs/darkreach-coordinator/internal/app/storage"
)

// Store implements storage.Store backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// New creates a Store using the provided database handle. The caller owns
// the handle's lifecycle (open/close, pool sizing).
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows, letting the single
// and multi-row fetchers in this package share one scan helper.
type rowScanner interface {
	Scan(dest ...any) error
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	v := n.Time
	return &v
}

func nullInt64(n *int64) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *n, Valid: true}
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func nullInt(n *int) sql.NullInt32 {
	if n == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: int32(*n), Valid: true}
}

func intPtr(n sql.NullInt32) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int32)
	return &v
}
