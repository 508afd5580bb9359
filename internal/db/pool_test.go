package db

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestOptionsDefaults(t *testing.T) {
	got := Options{}.withDefaults()
	if got.MaxConns != 10 || got.PingAttempts != 5 || got.PingBackoff != time.Second {
		t.Fatalf("unexpected defaults: %+v", got)
	}
	got = Options{MaxConns: 3, PingAttempts: 1, PingBackoff: time.Millisecond}.withDefaults()
	if got.MaxConns != 3 || got.PingAttempts != 1 || got.PingBackoff != time.Millisecond {
		t.Fatalf("explicit options overwritten: %+v", got)
	}
}

func TestConnectRejectsBadURL(t *testing.T) {
	_, err := Connect(context.Background(), "postgres://%zz", Options{}, nil)
	if err == nil || !strings.Contains(err.Error(), "parse database url") {
		t.Fatalf("expected parse error, got %v", err)
	}
}
