// Package memory implements storage.Store entirely in process memory,
// guarded by a single RWMutex. Grounded on the teacher's storage/memory.go
// map-of-entities-plus-mutex shape; used by tests and local dev runs that
// have no Postgres available.
package memory

import (
	"strconv"
	"sync"
	"time"

	"github.com/oddurs/darkreach-coordinator/internal/app/domain/event"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/operator"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/phase"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/prime"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/project"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/searchjob"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/trust"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/verification"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/workblock"
	"github.com/oddurs/darkreach-coordinator/internal/app/storage"
)

type Store struct {
	mu sync.RWMutex

	nextJobID    int64
	nextBlockID  int64
	nextVerifID  int64
	nextPrimeID  int64
	nextProjID   int64
	nextPhaseID  int64
	nextSampleID int64

	jobs          map[int64]searchjob.Job
	blocks        map[int64]workblock.Block
	operators     map[string]operator.Operator
	nodes         map[string]operator.Node
	trust         map[string]trust.Record
	blockResults  []blockResult
	verifications map[int64]verification.Entry
	primes        map[int64]prime.Prime
	primeByKey    map[prime.Key]int64
	projects      map[int64]project.Project
	projectBySlug map[string]int64
	phases        map[int64]phase.Phase
	events        []event.Record
	metricSamples []storage.MetricSample
	releases      map[string]storage.Release
}

type blockResult struct {
	workerID string
	blockID  int64
	valid    bool
	at       time.Time
}

var _ storage.Store = (*Store)(nil)
var _ storage.ReleaseStore = (*Store)(nil)

func New() *Store {
	return &Store{
		nextJobID: 1, nextBlockID: 1, nextVerifID: 1, nextPrimeID: 1,
		nextProjID: 1, nextPhaseID: 1, nextSampleID: 1,
		jobs:          make(map[int64]searchjob.Job),
		blocks:        make(map[int64]workblock.Block),
		operators:     make(map[string]operator.Operator),
		nodes:         make(map[string]operator.Node),
		trust:         make(map[string]trust.Record),
		verifications: make(map[int64]verification.Entry),
		primes:        make(map[int64]prime.Prime),
		primeByKey:    make(map[prime.Key]int64),
		projects:      make(map[int64]project.Project),
		projectBySlug: make(map[string]int64),
		phases:        make(map[int64]phase.Phase),
		releases:      make(map[string]storage.Release),
	}
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func strPtrEq(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func nextUUID(seed int64) string {
	return "mem-" + strconv.FormatInt(seed, 36)
}
