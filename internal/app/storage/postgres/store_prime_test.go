package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/oddurs/darkreach-coordinator/internal/app/domain/prime"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("new sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func TestInsertPrimeIfAbsentInsertsOnFirstSight(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	mock.ExpectQuery(`INSERT INTO primes`).
		WithArgs("factorial", "100!+1", int64(158), "trial", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "found_at"}).AddRow(int64(1), now))

	p, inserted, err := store.InsertPrimeIfAbsent(ctx, prime.Prime{
		Form: "factorial", Expression: "100!+1", Digits: 158, ProofMethod: "trial",
	})
	if err != nil {
		t.Fatalf("insert prime: %v", err)
	}
	if !inserted || p.ID != 1 {
		t.Fatalf("expected a fresh insert with id 1, got inserted=%v id=%d", inserted, p.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsertPrimeIfAbsentFallsBackToLookupOnConflict(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	mock.ExpectQuery(`INSERT INTO primes`).
		WithArgs("factorial", "100!+1", int64(158), "trial", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "found_at"}))

	mock.ExpectQuery(`SELECT id, form, expression, digits, proof_method, found_at, certificate\s+FROM primes WHERE form = \$1 AND expression = \$2`).
		WithArgs("factorial", "100!+1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "form", "expression", "digits", "proof_method", "found_at", "certificate"}).
			AddRow(int64(7), "factorial", "100!+1", int64(158), "trial", now, nil))

	p, inserted, err := store.InsertPrimeIfAbsent(ctx, prime.Prime{
		Form: "factorial", Expression: "100!+1", Digits: 158, ProofMethod: "trial",
	})
	if err != nil {
		t.Fatalf("insert prime: %v", err)
	}
	if inserted {
		t.Fatalf("expected inserted=false on a conflicting (form, expression) pair")
	}
	if p.ID != 7 {
		t.Fatalf("expected the pre-existing row's id 7, got %d", p.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestBestPrimeForFormReturnsFalseOnNoRows(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT id, form, expression, digits, proof_method, found_at, certificate\s+FROM primes WHERE form = \$1 ORDER BY digits DESC LIMIT 1`).
		WithArgs("riesel").
		WillReturnRows(sqlmock.NewRows([]string{"id", "form", "expression", "digits", "proof_method", "found_at", "certificate"}))

	_, found, err := store.BestPrimeForForm(ctx, "riesel")
	if err != nil {
		t.Fatalf("best prime for form: %v", err)
	}
	if found {
		t.Fatalf("expected found=false with no matching rows")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestBestPrimeForFormReturnsHighestDigitRow(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT id, form, expression, digits, proof_method, found_at, certificate\s+FROM primes WHERE form = \$1 ORDER BY digits DESC LIMIT 1`).
		WithArgs("proth").
		WillReturnRows(sqlmock.NewRows([]string{"id", "form", "expression", "digits", "proof_method", "found_at", "certificate"}).
			AddRow(int64(3), "proth", "big", int64(9000), "bpsw", now, nil))

	p, found, err := store.BestPrimeForForm(ctx, "proth")
	if err != nil {
		t.Fatalf("best prime for form: %v", err)
	}
	if !found || p.Digits != 9000 {
		t.Fatalf("expected the highest-digit row, got found=%v digits=%d", found, p.Digits)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
