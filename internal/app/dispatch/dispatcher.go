// Package dispatch implements the coordinator's work-dispatch engine: the
// operator-facing register/heartbeat/claim/submit contract from spec.md
// §4.1, wired against storage.DispatchStore and storage.OperatorStore.
//
// Grounded on the teacher's service-layer pattern of a thin struct wrapping
// a store plus a logger (internal/app/jam/service.go), adapted here to the
// three-subsystem split the spec calls for.
package dispatch

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/oddurs/darkreach-coordinator/internal/app/apperr"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/event"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/operator"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/prime"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/searchjob"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/workblock"
	"github.com/oddurs/darkreach-coordinator/internal/app/eventbus"
	"github.com/oddurs/darkreach-coordinator/internal/app/metrics"
	"github.com/oddurs/darkreach-coordinator/internal/app/storage"
	"github.com/oddurs/darkreach-coordinator/pkg/logger"
)

const apiKeyBytes = 24

// BatchClaimMax bounds the internal-worker batch claim size accepted by
// ClaimBatch regardless of what the caller requests.
const BatchClaimMax = 50

// Dispatcher implements spec.md §4.1's public contract.
type Dispatcher struct {
	store     storage.DispatchStore
	operators storage.OperatorStore
	bus       *eventbus.Bus
	log       *logger.Logger
}

// New builds a Dispatcher.
func New(store storage.DispatchStore, operators storage.OperatorStore, bus *eventbus.Bus, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.NewDefault("dispatch")
	}
	return &Dispatcher{store: store, operators: operators, bus: bus, log: log}
}

// RegisteredOperator is returned once, at registration or key rotation; the
// plaintext key is never persisted or logged again.
type RegisteredOperator struct {
	Operator operator.Operator
	APIKey   string
}

// RegisterOperator creates a new operator with trust_level implicitly
// LevelNew (the trust scorer's GetTrust fallback, not a persisted field
// here) and credit 0. Fails Conflict on a duplicate username; email
// uniqueness is not checked, so two operators may share an email.
func (d *Dispatcher) RegisterOperator(ctx context.Context, username, email string) (RegisteredOperator, error) {
	if _, err := d.operators.GetOperatorByUsername(ctx, username); err == nil {
		return RegisteredOperator{}, apperr.Conflictf("username %q already registered", username)
	} else if apperr.CodeOf(err) != apperr.NotFound {
		return RegisteredOperator{}, apperr.Internalf(err)
	}

	apiKey, hash, err := newAPIKey()
	if err != nil {
		return RegisteredOperator{}, apperr.Internalf(err)
	}

	op, err := d.operators.CreateOperator(ctx, operator.Operator{Username: username, Email: email, APIKeyHash: hash})
	if err != nil {
		return RegisteredOperator{}, err
	}
	return RegisteredOperator{Operator: op, APIKey: apiKey}, nil
}

// RotateAPIKey issues a fresh api_key for operatorID, invalidating the prior
// one immediately.
func (d *Dispatcher) RotateAPIKey(ctx context.Context, operatorID string) (string, error) {
	apiKey, hash, err := newAPIKey()
	if err != nil {
		return "", apperr.Internalf(err)
	}
	if err := d.operators.UpdateOperatorAPIKeyHash(ctx, operatorID, hash); err != nil {
		return "", err
	}
	return apiKey, nil
}

// AuthenticateOperator resolves the bearer api_key to its owning operator.
// api_key is a high-entropy random token, not a user-chosen password, so it
// is indexed by a deterministic SHA-256 digest rather than bcrypt: bcrypt's
// per-call random salt would make GetOperatorByAPIKeyHash's equality lookup
// impossible. See CheckAPIKey for the matching digest computation.
func (d *Dispatcher) AuthenticateOperator(ctx context.Context, apiKey string) (operator.Operator, error) {
	return d.operators.GetOperatorByAPIKeyHash(ctx, HashAPIKey(apiKey))
}

// RegisterNode upserts a worker's hardware capabilities by worker_id.
func (d *Dispatcher) RegisterNode(ctx context.Context, volunteerID string, n operator.Node) (operator.Node, error) {
	n.VolunteerID = volunteerID
	return d.operators.UpsertNode(ctx, n)
}

// Heartbeat touches last_heartbeat and atomically pops a single pending
// out-of-band command, if any.
func (d *Dispatcher) Heartbeat(ctx context.Context, workerID string) (*string, error) {
	if err := d.operators.TouchHeartbeat(ctx, workerID, time.Now().UTC()); err != nil {
		return nil, err
	}
	return d.operators.PopPendingCommand(ctx, workerID)
}

// ClaimWork selects at most one available, capability-eligible block for
// the caller. Returns nil, nil on NoWork (spec.md §7: not an error).
func (d *Dispatcher) ClaimWork(ctx context.Context, workerID string, volunteerID *string, caps searchjob.Capabilities) (*workblock.Assignment, error) {
	assignment, err := d.store.ClaimBlock(ctx, workerID, volunteerID, caps)
	if err != nil {
		metrics.RecordClaim("error")
		return nil, apperr.Internalf(err)
	}
	if assignment == nil {
		metrics.RecordClaim("empty")
		return nil, nil
	}
	metrics.RecordClaim("claimed")
	return assignment, nil
}

// ClaimBatch is the internal-worker variant: claims up to n eligible blocks
// for the same (job, worker) pair. n is clamped to BatchClaimMax.
func (d *Dispatcher) ClaimBatch(ctx context.Context, workerID string, jobID int64, caps searchjob.Capabilities, n int) ([]workblock.Assignment, error) {
	if n <= 0 {
		return nil, apperr.BadRequestf("batch size must be positive")
	}
	if n > BatchClaimMax {
		n = BatchClaimMax
	}
	assignments, err := d.store.BatchClaimBlocks(ctx, workerID, jobID, caps, n)
	if err != nil {
		metrics.RecordClaim("error")
		return nil, apperr.Internalf(err)
	}
	if len(assignments) == 0 {
		metrics.RecordClaim("empty")
	} else {
		metrics.RecordClaim("claimed")
	}
	return assignments, nil
}

// SubmitResultOutcome carries the persisted block plus processing duration
// for histogram recording at the transport layer.
type SubmitResultOutcome struct {
	Block      workblock.Block
	Duration   time.Duration
	NewPrimes  []prime.Prime
}

// SubmitResult validates ownership, transitions the block to completed, and
// records any newly discovered primes. Duplicate (form, expression) pairs
// are silently deduplicated by the store, not rejected.
func (d *Dispatcher) SubmitResult(ctx context.Context, blockID int64, workerID string, tested, found int64, primes []prime.Prime) (SubmitResultOutcome, error) {
	block, duration, err := d.store.SubmitResult(ctx, blockID, workerID, tested, found, primes)
	if err != nil {
		metrics.RecordSubmission("error")
		return SubmitResultOutcome{}, err
	}
	metrics.RecordSubmission("ok")

	for _, p := range primes {
		metrics.RecordPrimeFound(p.Form)
		d.bus.Emit(event.KindPrimeFound, p.Expression, map[string]any{
			"form": p.Form, "expression": p.Expression, "digits": p.Digits, "proof_method": p.ProofMethod,
		})
	}

	return SubmitResultOutcome{Block: block, Duration: duration, NewPrimes: primes}, nil
}

// UpdateBlockProgress persists mid-block checkpoint state without
// transitioning status.
func (d *Dispatcher) UpdateBlockProgress(ctx context.Context, blockID int64, tested, found int64, checkpoint map[string]any) error {
	return d.store.UpdateBlockProgress(ctx, blockID, tested, found, checkpoint)
}

// ReclaimStale returns every claimed block past its regime's timeout to
// available, discarding the prior claimant's partial progress. Invoked by
// the Tick Scheduler, never by request handlers.
func (d *Dispatcher) ReclaimStale(ctx context.Context, internalTimeout, operatorTimeout time.Duration) (int, error) {
	return d.store.ReclaimStale(ctx, internalTimeout, operatorTimeout, time.Now().UTC())
}

func newAPIKey() (plain string, hash string, err error) {
	raw := make([]byte, apiKeyBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	plain = hex.EncodeToString(raw)
	return plain, HashAPIKey(plain), nil
}

// HashAPIKey computes the deterministic digest stored as
// operator.Operator.APIKeyHash and used for GetOperatorByAPIKeyHash lookups.
func HashAPIKey(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}
