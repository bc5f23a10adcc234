// Package prime defines the Prime entity: a discovered candidate that passed
// a primality test, unique by (form, expression).
package prime

import "time"

// Prime is immutable after insert except verification-related status that
// lives on the owning WorkBlock, not here.
type Prime struct {
	ID           int64
	Form         string
	Expression   string
	Digits       int64
	ProofMethod  string
	FoundAt      time.Time
	Certificate  *string
}

// Key uniquely identifies a Prime independent of its assigned ID.
type Key struct {
	Form       string
	Expression string
}

func (p Prime) Key() Key {
	return Key{Form: p.Form, Expression: p.Expression}
}

// ProvableForms is the single-sourced enum of candidate forms that carry a
// deterministic primality certificate. Consulted only by
// verification.RequiredQuorum; spec.md §9 calls out that the original
// source scattered this notion across files — here it has exactly one home.
var ProvableForms = map[string]bool{
	"factorial": true,
	"primorial": true,
	"proth":     true,
	"riesel":    true,
}

// IsProvable reports whether form carries a deterministic certificate. Forms
// absent from ProvableForms are heuristic (probable-prime only).
func IsProvable(form string) bool {
	return ProvableForms[form]
}
