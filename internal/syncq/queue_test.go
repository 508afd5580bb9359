package syncq

import (
	"context"
	"errors"
	"testing"
)

var errOffline = errors.New("offline")

func TestPushAndLoad(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	got, err := Load()
	if err != nil || len(got) != 0 {
		t.Fatalf("empty queue got %v err=%v", got, err)
	}
	if err := Push(Command{Method: "POST", Path: "/v1/transactions", IdempotencyKey: "k1"}); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := Push(Command{Method: "DELETE", Path: "/v1/favorites/IBM", IdempotencyKey: "k2"}); err != nil {
		t.Fatalf("push: %v", err)
	}
	got, err = Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 || got[0].IdempotencyKey != "k1" || got[1].Path != "/v1/favorites/IBM" {
		t.Fatalf("unexpected queue %+v", got)
	}
	if got[0].QueuedAt.IsZero() {
		t.Fatalf("queued time should be stamped")
	}
}

func TestReplayStopsAtRetryableFailure(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	for _, k := range []string{"k1", "k2", "k3", "k4"} {
		if err := Push(Command{Method: "POST", Path: "/v1/transactions", IdempotencyKey: k}); err != nil {
			t.Fatal(err)
		}
	}

	var seen []string
	send := func(_ context.Context, c Command) error {
		seen = append(seen, c.IdempotencyKey)
		switch c.IdempotencyKey {
		case "k2":
			return errors.New("rejected")
		case "k3":
			return errOffline
		}
		return nil
	}
	res, err := Replay(context.Background(), send, func(err error) bool { return errors.Is(err, errOffline) })
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if res.Sent != 1 || len(res.Dropped) != 1 || res.Pending != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(seen) != 3 {
		t.Fatalf("k4 must not be sent after an offline failure, saw %v", seen)
	}

	left, _ := Load()
	if len(left) != 2 || left[0].IdempotencyKey != "k3" || left[1].IdempotencyKey != "k4" {
		t.Fatalf("unexpected remaining queue %+v", left)
	}
}
