// Package event defines the six event kinds emitted onto the Event Bus and
// their JSON-tagged notification payload.
package event

import "time"

// Kind is a closed sum type: six tagged cases, never an open interface
// (spec.md §9 Polymorphism note).
type Kind string

const (
	KindPrimeFound      Kind = "PrimeFound"
	KindSearchStarted   Kind = "SearchStarted"
	KindSearchCompleted Kind = "SearchCompleted"
	KindMilestone       Kind = "Milestone"
	KindWarning         Kind = "Warning"
	KindError           Kind = "Error"
)

// Record is one entry in the bus's bounded recent-events ring.
type Record struct {
	ID          int64
	Kind        Kind
	Message     string
	Fields      map[string]any
	TimestampMS int64
}

// Notification is a squashed, user-facing summary derived from one or more
// Records.
type Notification struct {
	ID      int64
	Title   string
	Details []string
	Count   int
}

// PrimeFoundPayload is the immediate fan-out message for a PrimeFound event
// (spec.md §4.5): broadcast eagerly, independent of notification squashing.
type PrimeFoundPayload struct {
	Form        string
	Expression  string
	Digits      int64
	ProofMethod string
}

// FanoutMessage is the JSON envelope sent to subscribers; Type is one of
// "prime_found" or "notification".
type FanoutMessage struct {
	Type         string        `json:"type"`
	PrimeFound   *PrimeFoundPayload `json:"prime_found,omitempty"`
	Notification *Notification      `json:"notification,omitempty"`
}

// Now is overridable in tests; production uses time.Now().UTC().
var Now = func() time.Time { return time.Now().UTC() }
