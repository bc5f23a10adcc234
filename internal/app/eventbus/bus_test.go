package eventbus

import (
	"encoding/json"
	"testing"

	"github.com/oddurs/darkreach-coordinator/internal/app/domain/event"
)

func TestEmitAssignsIncreasingIDs(t *testing.T) {
	bus := New(nil)

	first := bus.Emit(event.KindMilestone, "first", nil)
	second := bus.Emit(event.KindMilestone, "second", nil)

	if second.ID <= first.ID {
		t.Fatalf("expected monotonically increasing ids, got %d then %d", first.ID, second.ID)
	}
}

func TestRecentEventsSinceFiltersAndLimits(t *testing.T) {
	bus := New(nil)

	var ids []int64
	for i := 0; i < 5; i++ {
		rec := bus.Emit(event.KindWarning, "warn", nil)
		ids = append(ids, rec.ID)
	}

	since := bus.RecentEventsSince(ids[1], 0)
	if len(since) != 3 {
		t.Fatalf("expected 3 events after id %d, got %d", ids[1], len(since))
	}

	limited := bus.RecentEventsSince(0, 2)
	if len(limited) != 2 {
		t.Fatalf("expected limit to cap the result to 2, got %d", len(limited))
	}
	if limited[len(limited)-1].ID != ids[len(ids)-1] {
		t.Fatalf("expected the limited slice to keep the newest events")
	}
}

func TestKindSearchCompletedEmitsNotificationDirectly(t *testing.T) {
	bus := New(nil)
	bus.Emit(event.KindSearchCompleted, "range complete", nil)

	notifications := bus.RecentNotifications()
	if len(notifications) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifications))
	}
	if notifications[0].Title != "range complete" {
		t.Fatalf("unexpected notification title %q", notifications[0].Title)
	}
}

func TestFlushGroupsPendingPrimesByForm(t *testing.T) {
	bus := New(nil)

	bus.Emit(event.KindPrimeFound, "prime", map[string]any{"form": "factorial", "expression": "10!+1", "digits": int64(8)})
	bus.Emit(event.KindPrimeFound, "prime", map[string]any{"form": "factorial", "expression": "20!+1", "digits": int64(10)})
	bus.Emit(event.KindPrimeFound, "prime", map[string]any{"form": "proth", "expression": "p1", "digits": int64(5)})

	bus.Flush()

	notifications := bus.RecentNotifications()
	if len(notifications) != 2 {
		t.Fatalf("expected 2 grouped notifications (one per form), got %d", len(notifications))
	}
	byTitle := map[string]event.Notification{}
	for _, n := range notifications {
		byTitle[n.Title] = n
	}
	if byTitle["factorial"].Count != 2 {
		t.Fatalf("expected 2 factorial primes grouped together, got %d", byTitle["factorial"].Count)
	}
	if byTitle["proth"].Count != 1 {
		t.Fatalf("expected 1 proth prime, got %d", byTitle["proth"].Count)
	}
}

func TestSubscribeReceivesBroadcastFanout(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.Emit(event.KindMilestone, "fleet grew", nil)

	select {
	case payload := <-ch:
		var msg event.FanoutMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			t.Fatalf("unmarshal fanout payload: %v", err)
		}
		if msg.Type != "notification" || msg.Notification == nil || msg.Notification.Title != "fleet grew" {
			t.Fatalf("unexpected fanout message: %+v", msg)
		}
	default:
		t.Fatalf("expected a fanout message on the subscriber channel")
	}
}

func TestSubscribeCancelClosesChannel(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe()
	cancel()

	if _, ok := <-ch; ok {
		t.Fatalf("expected the channel to be closed after cancel")
	}
}

func TestWithRedisMirrorIsNoOpWithBlankAddr(t *testing.T) {
	bus := New(nil).WithRedisMirror("", "some-channel")
	if bus.redisClient != nil {
		t.Fatalf("expected no redis client to be attached when addr is blank")
	}
	if err := bus.Close(); err != nil {
		t.Fatalf("close on a bus with no redis mirror should be a no-op: %v", err)
	}
}

func TestWithRedisMirrorAttachesClient(t *testing.T) {
	bus := New(nil).WithRedisMirror("127.0.0.1:0", "")
	if bus.redisClient == nil {
		t.Fatalf("expected a redis client to be attached when addr is set")
	}
	if bus.redisChannel != "eventbus:fanout" {
		t.Fatalf("expected the default channel name, got %q", bus.redisChannel)
	}
	// Emit must not block or panic even though nothing is listening on addr;
	// the mirror publish is best-effort and its failure is only logged.
	bus.Emit(event.KindWarning, "unreachable mirror", nil)
}
