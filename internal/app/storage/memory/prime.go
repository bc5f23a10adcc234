package memory

import (
	"context"
	"sort"

	"github.com/oddurs/darkreach-coordinator/internal/app/domain/prime"
)

func (s *Store) InsertPrimeIfAbsent(_ context.Context, p prime.Prime) (prime.Prime, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, inserted := s.insertPrimeLocked(p)
	return result, inserted, nil
}

func (s *Store) ListPrimes(_ context.Context, sortColumn, sortDirection string, limit, offset int) ([]prime.Prime, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var primes []prime.Prime
	for _, p := range s.primes {
		primes = append(primes, p)
	}

	asc := sortDirection == "asc"
	sort.Slice(primes, func(i, j int) bool {
		less := primeColumnLess(primes[i], primes[j], sortColumn)
		if asc {
			return less
		}
		return primeColumnLess(primes[j], primes[i], sortColumn)
	})

	if offset >= len(primes) {
		return nil, nil
	}
	end := offset + limit
	if end > len(primes) || limit <= 0 {
		end = len(primes)
	}
	return primes[offset:end], nil
}

func (s *Store) BestPrimeForForm(_ context.Context, form string) (prime.Prime, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best prime.Prime
	found := false
	for _, p := range s.primes {
		if p.Form != form {
			continue
		}
		if !found || p.Digits > best.Digits {
			best = p
			found = true
		}
	}
	return best, found, nil
}

func primeColumnLess(a, b prime.Prime, column string) bool {
	switch column {
	case "digits":
		return a.Digits < b.Digits
	case "form":
		return a.Form < b.Form
	case "expression":
		return a.Expression < b.Expression
	case "id":
		return a.ID < b.ID
	default:
		return a.FoundAt.Before(b.FoundAt)
	}
}
