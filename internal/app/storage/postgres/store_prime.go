package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/oddurs/darkreach-coordinator/internal/app/domain/prime"
	"github.com/oddurs/darkreach-coordinator/internal/app/storage"
)

func (s *Store) InsertPrimeIfAbsent(ctx context.Context, p prime.Prime) (prime.Prime, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO primes (form, expression, digits, proof_method, certificate)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (form, expression) DO NOTHING
		RETURNING id, found_at
	`, p.Form, p.Expression, p.Digits, p.ProofMethod, nullString(p.Certificate))

	if err := row.Scan(&p.ID, &p.FoundAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			existing, getErr := s.getPrimeByKey(ctx, p.Form, p.Expression)
			return existing, false, getErr
		}
		return prime.Prime{}, false, fmt.Errorf("insert prime: %w", err)
	}
	return p, true, nil
}

func (s *Store) getPrimeByKey(ctx context.Context, form, expression string) (prime.Prime, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, form, expression, digits, proof_method, found_at, certificate
		FROM primes WHERE form = $1 AND expression = $2
	`, form, expression)
	return scanPrime(row)
}

func (s *Store) ListPrimes(ctx context.Context, sortColumn, sortDirection string, limit, offset int) ([]prime.Prime, error) {
	if !storage.AllowedPrimeSortColumns[sortColumn] {
		sortColumn = "found_at"
	}
	if !storage.AllowedSortDirections[sortDirection] {
		sortDirection = "desc"
	}

	query := fmt.Sprintf(`
		SELECT id, form, expression, digits, proof_method, found_at, certificate
		FROM primes ORDER BY %s %s LIMIT $1 OFFSET $2
	`, sortColumn, sortDirection)

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var primes []prime.Prime
	for rows.Next() {
		p, err := scanPrime(rows)
		if err != nil {
			return nil, err
		}
		primes = append(primes, p)
	}
	return primes, rows.Err()
}

func (s *Store) BestPrimeForForm(ctx context.Context, form string) (prime.Prime, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, form, expression, digits, proof_method, found_at, certificate
		FROM primes WHERE form = $1 ORDER BY digits DESC LIMIT 1
	`, form)
	p, err := scanPrime(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return prime.Prime{}, false, nil
		}
		return prime.Prime{}, false, fmt.Errorf("best prime for form: %w", err)
	}
	return p, true, nil
}

func scanPrime(row rowScanner) (prime.Prime, error) {
	var p prime.Prime
	var certificate sql.NullString
	if err := row.Scan(&p.ID, &p.Form, &p.Expression, &p.Digits, &p.ProofMethod, &p.FoundAt, &certificate); err != nil {
		return prime.Prime{}, err
	}
	p.Certificate = stringPtr(certificate)
	return p, nil
}
