package cache

import (
	"bytes"
	"testing"
	"time"

	"taskmill/internal/config"
)

func newTestClient(t *testing.T, ttl time.Duration) *Client {
	t.Helper()
	c, err := NewClient(config.CacheConfig{Path: t.TempDir()}, ttl)
	if err != nil {
		t.Fatalf("failed to open cache: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestPutGetDelete(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, time.Hour)

	if got, err := c.Get("missing"); err != nil || got != nil {
		t.Fatalf("miss = %v, %v; want nil, nil", got, err)
	}

	if err := c.Put("k", []byte("v")); err != nil {
		t.Fatal(err)
	}
	got, err := c.Get("k")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte("v")) {
		t.Fatalf("got %q", got)
	}

	if err := c.Delete("k"); err != nil {
		t.Fatal(err)
	}
	if got, _ := c.Get("k"); got != nil {
		t.Fatalf("deleted key still present: %q", got)
	}
}

func TestExpiredEntryIsAMiss(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, time.Millisecond)

	if err := c.Put("k", []byte("v")); err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)

	got, err := c.Get("k")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("expired entry returned %q", got)
	}
}

func TestNilClientIsNoOp(t *testing.T) {
	t.Parallel()
	var c *Client

	if err := c.Put("k", []byte("v")); err != nil {
		t.Fatal(err)
	}
	if got, err := c.Get("k"); err != nil || got != nil {
		t.Fatalf("nil client get = %v, %v", got, err)
	}
	if err := c.Delete("k"); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestLastCompletedKey(t *testing.T) {
	t.Parallel()
	if got := LastCompletedKey("sync"); got != "lastrun:sync" {
		t.Fatalf("key = %q", got)
	}
}
