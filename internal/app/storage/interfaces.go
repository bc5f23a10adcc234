// Package storage defines the persistence contracts the coordinator's
// components depend on. Split by concern the way the teacher's
// internal/app/storage/interfaces.go splits AccountStore/FunctionStore/etc;
// here the concerns are the spec's three core subsystems plus projects and
// the event log.
package storage

import (
	"context"
	"time"

	"github.com/oddurs/darkreach-coordinator/internal/app/domain/event"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/node"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/operator"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/phase"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/prime"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/project"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/searchjob"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/trust"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/verification"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/workblock"
)

// OperatorStore persists operators and their registered nodes.
type OperatorStore interface {
	CreateOperator(ctx context.Context, op operator.Operator) (operator.Operator, error)
	GetOperatorByID(ctx context.Context, id string) (operator.Operator, error)
	GetOperatorByAPIKeyHash(ctx context.Context, apiKeyHash string) (operator.Operator, error)
	GetOperatorByUsername(ctx context.Context, username string) (operator.Operator, error)
	UpdateOperatorAPIKeyHash(ctx context.Context, id, apiKeyHash string) error
	TouchLastSeen(ctx context.Context, id string, at time.Time) error
	IncrementCreditAndPrimes(ctx context.Context, id string, creditDelta float64, primesDelta int64) error
	ListLeaderboard(ctx context.Context, team string, limit int) ([]operator.LeaderboardEntry, error)
	GetStats(ctx context.Context, id string) (operator.Stats, error)

	UpsertNode(ctx context.Context, n operator.Node) (operator.Node, error)
	GetNode(ctx context.Context, workerID string) (operator.Node, error)
	TouchHeartbeat(ctx context.Context, workerID string, at time.Time) error
	PopPendingCommand(ctx context.Context, workerID string) (*string, error)
	PruneStaleNodes(ctx context.Context, olderThan time.Time) (int, error)
}

// DispatchStore persists search jobs and work blocks, and implements the
// atomic claim/reclaim operations central to the Dispatcher.
type DispatchStore interface {
	CreateSearchJobWithBlocks(ctx context.Context, job searchjob.Job) (searchjob.Job, error)
	GetSearchJob(ctx context.Context, id int64) (searchjob.Job, error)
	ListRunningJobs(ctx context.Context) ([]searchjob.Job, error)
	UpdateJobStatus(ctx context.Context, id int64, status searchjob.Status) error

	// ClaimBlock atomically claims the oldest eligible available block for
	// a single caller, using row-level locking with skip-locked semantics.
	ClaimBlock(ctx context.Context, workerID string, volunteerID *string, caps searchjob.Capabilities) (*workblock.Assignment, error)
	// BatchClaimBlocks atomically claims up to n eligible blocks for one
	// (job, worker) pair.
	BatchClaimBlocks(ctx context.Context, workerID string, jobID int64, caps searchjob.Capabilities, n int) ([]workblock.Assignment, error)
	SubmitResult(ctx context.Context, blockID int64, workerID string, tested, found int64, primes []prime.Prime) (workblock.Block, time.Duration, error)
	UpdateBlockProgress(ctx context.Context, blockID int64, tested, found int64, checkpoint map[string]any) error
	GetBlock(ctx context.Context, blockID int64) (workblock.Block, error)
	ReclaimStale(ctx context.Context, internalTimeout, operatorTimeout time.Duration, now time.Time) (int, error)
	ListCompletedUnverifiedOperatorBlocks(ctx context.Context, limit int) ([]workblock.Block, error)
	CountAvailableOrClaimed(ctx context.Context, jobID int64) (int64, error)
	MarkBlockVerified(ctx context.Context, blockID int64) error
}

// TrustStore persists per-operator trust counters and per-node reliability
// history.
type TrustStore interface {
	GetTrust(ctx context.Context, volunteerID string) (*trust.Record, error)
	UpsertTrust(ctx context.Context, rec trust.Record) error
	RecordBlockResult(ctx context.Context, workerID string, blockID int64, valid bool, at time.Time) error
	NodeReliability(ctx context.Context, workerID string, since time.Time) (node.Reliability, error)
}

// VerificationStore persists the verification queue.
type VerificationStore interface {
	HasPendingVerification(ctx context.Context, blockID int64) (bool, error)
	EnqueueVerification(ctx context.Context, entry verification.Entry) (verification.Entry, error)
	ClaimVerification(ctx context.Context, verifierWorkerID string) (*verification.Entry, error)
	GetVerification(ctx context.Context, id int64) (verification.Entry, error)
	SubmitVerification(ctx context.Context, id int64, verifierWorkerID string, tested, found int64) (verification.Entry, verification.Outcome, error)
}

// ProjectStore persists projects and their phase DAGs.
type ProjectStore interface {
	CreateProjectWithPhases(ctx context.Context, p project.Project, phases []phase.Phase) (project.Project, []phase.Phase, error)
	GetProject(ctx context.Context, id int64) (project.Project, error)
	GetProjectBySlug(ctx context.Context, slug string) (project.Project, error)
	ListActiveProjects(ctx context.Context) ([]project.Project, error)
	ListProjects(ctx context.Context) ([]project.Project, error)
	UpdateProjectStatus(ctx context.Context, id int64, status project.Status) error
	UpdateProjectAggregates(ctx context.Context, id int64, totalTested, totalFound int64, bestPrimeID *int64, bestDigits int64, coreHours, costUSD float64) error

	ListPhases(ctx context.Context, projectID int64) ([]phase.Phase, error)
	GetPhase(ctx context.Context, id int64) (phase.Phase, error)
	UpdatePhaseStatus(ctx context.Context, id int64, status phase.Status, searchJobID *int64) error
	UpdatePhaseTotals(ctx context.Context, id int64, totals phase.Totals) error
	CreatePhase(ctx context.Context, p phase.Phase) (phase.Phase, error)

	FleetSnapshot(ctx context.Context, heartbeatFreshWindow time.Duration, now time.Time) (project.FleetSummary, error)
}

// EventStore persists drained event-bus records and periodic metric
// samples. The postgres store writes each batch one row at a time inside a
// single transaction.
type EventStore interface {
	BulkInsertEvents(ctx context.Context, records []event.Record) error
	BulkInsertMetricSamples(ctx context.Context, samples []MetricSample) error
	RollupOldMetrics(ctx context.Context, olderThan time.Time) error
	PruneOldLogs(ctx context.Context, olderThan time.Time) error
}

// MetricSample is one gauge/histogram reading persisted by the tick's
// sample-metrics step.
type MetricSample struct {
	Name      string
	Value     float64
	Labels    map[string]string
	SampledAt time.Time
}

// PrimeStore persists discovered primes and serves the prime listing
// endpoint with a whitelisted sort column/direction (spec.md §6).
type PrimeStore interface {
	InsertPrimeIfAbsent(ctx context.Context, p prime.Prime) (prime.Prime, bool, error)
	ListPrimes(ctx context.Context, sortColumn, sortDirection string, limit, offset int) ([]prime.Prime, error)
	// BestPrimeForForm returns the highest-digit prime discovered for form,
	// used by the orchestrator to aggregate a project's best_prime_id/
	// best_digits (spec.md §4 Project fields), since Prime is keyed only by
	// (form, expression) and not linked to a project directly.
	BestPrimeForForm(ctx context.Context, form string) (prime.Prime, bool, error)
}

// ReleaseStore resolves worker-update manifests for GET /nodes/latest.
type ReleaseStore interface {
	LatestRelease(ctx context.Context, channel string) (Release, error)
}

// Release is a resolved update manifest entry.
type Release struct {
	Channel     string
	Version     string
	PublishedAt time.Time
	Notes       string
	Artifacts   []Artifact
}

// Artifact is one platform-specific release archive.
type Artifact struct {
	OS     string
	Arch   string
	URL    string
	SHA256 string
	SigURL *string
}

// AllowedPrimeSortColumns is the fixed allowlist from spec.md §6.
var AllowedPrimeSortColumns = map[string]bool{
	"digits": true, "form": true, "expression": true, "found_at": true, "id": true,
}

// AllowedSortDirections is the fixed allowlist from spec.md §6.
var AllowedSortDirections = map[string]bool{"asc": true, "desc": true}

// Store aggregates every persistence concern the coordinator needs. The
// Postgres and in-memory implementations both satisfy it in full.
type Store interface {
	OperatorStore
	DispatchStore
	TrustStore
	VerificationStore
	ProjectStore
	EventStore
	PrimeStore
}
