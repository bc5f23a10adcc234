// Package eventbus implements the coordinator's in-memory, bounded,
// thread-safe event log: a ring of recent events, a squashed notification
// ring, and a non-blocking fan-out to subscribers.
//
// Grounded on system/events/dispatcher.go's bounded-channel dispatcher
// shape (RegisterHandler/Dispatch/Stats, non-blocking Dispatch), adapted
// from a contract-event router into the spec's six-kind event bus.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/oddurs/darkreach-coordinator/internal/app/domain/event"
	"github.com/oddurs/darkreach-coordinator/pkg/logger"
)

const (
	recentEventsCap       = 200
	notificationsCap      = 50
	flushInterval         = 10 * time.Second
	maxNotificationDetails = 6
	maxFlushedDetailLines = 5
	fanoutBufferSize      = 32
)

// Bus is the single-owner value shared by reference across HTTP handlers
// and worker goroutines (spec.md §9 Cyclic and shared state note).
// Interior state is behind one mutex for the buffers; subscribers hold
// channel receivers, not a reference to the Bus.
type Bus struct {
	mu            sync.Mutex
	nextID        int64
	recent        []event.Record
	notifications []event.Notification
	pendingPrimes []pendingPrime
	lastFlush     time.Time
	subs          map[int64]chan []byte
	nextSubID     int64

	log *logger.Logger

	redisClient  *redis.Client
	redisChannel string
}

type pendingPrime struct {
	Form       string
	Expression string
	Digits     int64
	ProofMethod string
}

// New creates an empty bus.
func New(log *logger.Logger) *Bus {
	if log == nil {
		log = logger.NewDefault("eventbus")
	}
	return &Bus{
		subs:      make(map[int64]chan []byte),
		lastFlush: time.Now(),
		log:       log,
	}
}

// WithRedisMirror attaches an optional Redis pub/sub fan-out mirror: every
// broadcast already sent to in-process subscribers is additionally
// PUBLISHed, best-effort, on channel. A publish failure is logged and
// otherwise ignored; it never affects Emit's return value or the bus's
// in-memory invariants. addr empty is a no-op so callers can pass straight
// through from config without a branch.
func (b *Bus) WithRedisMirror(addr, channel string) *Bus {
	if strings.TrimSpace(addr) == "" {
		return b
	}
	if strings.TrimSpace(channel) == "" {
		channel = "eventbus:fanout"
	}
	b.redisClient = redis.NewClient(&redis.Options{Addr: addr})
	b.redisChannel = channel
	return b
}

// Close releases the Redis mirror connection, if one was attached.
func (b *Bus) Close() error {
	if b.redisClient == nil {
		return nil
	}
	return b.redisClient.Close()
}

// Emit appends an EventRecord with a monotonically increasing id and a
// wall-clock timestamp. It never blocks on I/O: ring eviction and fan-out
// sends are both O(1)/non-blocking.
func (b *Bus) Emit(kind event.Kind, message string, fields map[string]any) event.Record {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := atomic.AddInt64(&b.nextID, 1)
	rec := event.Record{
		ID:          id,
		Kind:        kind,
		Message:     message,
		Fields:      fields,
		TimestampMS: event.Now().UnixMilli(),
	}
	b.appendRecentLocked(rec)

	switch kind {
	case event.KindSearchStarted, event.KindSearchCompleted, event.KindMilestone, event.KindError:
		notif := event.Notification{
			ID:      id,
			Title:   message,
			Details: truncateDetails(fieldDetails(fields), maxNotificationDetails),
			Count:   1,
		}
		b.appendNotificationLocked(notif)
		b.broadcastLocked(event.FanoutMessage{Type: "notification", Notification: &notif})
	case event.KindWarning:
		// no notification
	case event.KindPrimeFound:
		form, _ := fields["form"].(string)
		expr, _ := fields["expression"].(string)
		digits, _ := toInt64(fields["digits"])
		proof, _ := fields["proof_method"].(string)
		b.pendingPrimes = append(b.pendingPrimes, pendingPrime{
			Form: form, Expression: expr, Digits: digits, ProofMethod: proof,
		})
		b.broadcastLocked(event.FanoutMessage{Type: "prime_found", PrimeFound: &event.PrimeFoundPayload{
			Form: form, Expression: expr, Digits: digits, ProofMethod: proof,
		}})
	}

	if time.Since(b.lastFlush) >= flushInterval {
		b.flushLocked()
	}

	return rec
}

// Flush drains pending PrimeFound events, grouped by form, and emits one
// Notification per form with count == group size.
func (b *Bus) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushLocked()
}

func (b *Bus) flushLocked() {
	b.lastFlush = time.Now()
	if len(b.pendingPrimes) == 0 {
		return
	}

	byForm := make(map[string][]pendingPrime)
	var forms []string
	for _, p := range b.pendingPrimes {
		if _, ok := byForm[p.Form]; !ok {
			forms = append(forms, p.Form)
		}
		byForm[p.Form] = append(byForm[p.Form], p)
	}
	b.pendingPrimes = nil
	sort.Strings(forms)

	for _, form := range forms {
		group := byForm[form]
		id := atomic.AddInt64(&b.nextID, 1)
		details := make([]string, 0, maxFlushedDetailLines+1)
		for i, p := range group {
			if i >= maxFlushedDetailLines {
				details = append(details, formatMore(len(group)-maxFlushedDetailLines))
				break
			}
			details = append(details, p.Expression)
		}
		notif := event.Notification{
			ID:      id,
			Title:   form,
			Details: details,
			Count:   len(group),
		}
		b.appendNotificationLocked(notif)
		b.broadcastLocked(event.FanoutMessage{Type: "notification", Notification: &notif})
	}
}

// RecentEventsSince returns events strictly newer than lastID, ascending by
// id, at most limit entries (the newest limit, if more exist).
func (b *Bus) RecentEventsSince(lastID int64, limit int) []event.Record {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []event.Record
	for _, r := range b.recent {
		if r.ID > lastID {
			out = append(out, r)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// RecentNotifications returns the current notification ring, oldest first.
func (b *Bus) RecentNotifications() []event.Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]event.Notification, len(b.notifications))
	copy(out, b.notifications)
	return out
}

// Subscribe returns a fan-out receiver. Lagging subscribers are dropped
// (not blocked): a full buffer means the newest message is discarded for
// that subscriber, never the sender stalling.
func (b *Bus) Subscribe() (<-chan []byte, func()) {
	b.mu.Lock()
	id := atomic.AddInt64(&b.nextSubID, 1)
	ch := make(chan []byte, fanoutBufferSize)
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if existing, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(existing)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

func (b *Bus) appendRecentLocked(rec event.Record) {
	b.recent = append(b.recent, rec)
	if len(b.recent) > recentEventsCap {
		b.recent = b.recent[len(b.recent)-recentEventsCap:]
	}
}

func (b *Bus) appendNotificationLocked(n event.Notification) {
	b.notifications = append(b.notifications, n)
	if len(b.notifications) > notificationsCap {
		b.notifications = b.notifications[len(b.notifications)-notificationsCap:]
	}
}

func (b *Bus) broadcastLocked(msg event.FanoutMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		b.log.WithError(err).Warn("eventbus: failed to marshal fanout message")
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- payload:
		default:
			// lagging subscriber; drop rather than block the emitter.
		}
	}

	if b.redisClient != nil {
		// Published off the caller's goroutine so the mutex is never held
		// across network I/O.
		client, channel, log := b.redisClient, b.redisChannel, b.log
		go func() {
			if err := client.Publish(context.Background(), channel, payload).Err(); err != nil {
				log.WithError(err).Warn("eventbus: redis mirror publish failed")
			}
		}()
	}
}

func fieldDetails(fields map[string]any) []string {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	details := make([]string, 0, len(keys))
	for _, k := range keys {
		details = append(details, k)
	}
	return details
}

func truncateDetails(details []string, max int) []string {
	if len(details) <= max {
		return details
	}
	return details[:max]
}

func formatMore(n int) string {
	return fmt.Sprintf("and %d more", n)
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
