package quotes

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, 30*time.Second), mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()
	created := time.Date(2026, 1, 5, 14, 30, 0, 0, time.UTC)

	err := store.Put(ctx, []Quote{
		{Symbol: "GOOG", Price: 51234, Change: "+1.00", CreatedAt: created},
		{Symbol: "IBM", Price: 12500, Change: "-0.25", CreatedAt: created},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := store.Get(ctx, []string{"GOOG", "IBM", "XOM"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 quotes, got %d", len(got))
	}
	if q := got["GOOG"]; q.Price != 51234 || q.Change != "+1.00" || !q.CreatedAt.Equal(created) {
		t.Fatalf("unexpected GOOG quote %+v", q)
	}
}

func TestRedisStoreKeysExpire(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, []Quote{{Symbol: "GOOG", Price: 1, CreatedAt: time.Now()}}); err != nil {
		t.Fatalf("put: %v", err)
	}
	mr.FastForward(31 * time.Second)

	got, err := store.Get(ctx, []string{"GOOG"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected expired key, got %+v", got)
	}
}

func TestCacheOverRedisSharesQuotes(t *testing.T) {
	store, _ := newRedisStore(t)
	clock := newFakeClock()
	src := &countingSource{prices: map[string]Price{"GOOG": {Price: 100}}}

	first := NewCache(store, src, quietLogger(), WithClock(clock.Now))
	second := NewCache(store, src, quietLogger(), WithClock(clock.Now))
	ctx := context.Background()

	if _, ok, err := first.Quote(ctx, "GOOG"); err != nil || !ok {
		t.Fatalf("first replica ok=%v err=%v", ok, err)
	}
	if _, ok, err := second.Quote(ctx, "GOOG"); err != nil || !ok {
		t.Fatalf("second replica ok=%v err=%v", ok, err)
	}
	if n := len(src.Calls()); n != 1 {
		t.Fatalf("expected the second replica to reuse the shared quote, got %d calls", n)
	}
}
