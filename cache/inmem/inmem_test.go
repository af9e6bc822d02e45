package inmem

import (
	"errors"
	"testing"
	"time"
)

func TestSetGet(t *testing.T) {
	c := New()
	defer c.Stop()

	if err := c.Set("held:db1:file/a", "session-1", time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	value, err := c.Get("held:db1:file/a")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if value != "session-1" {
		t.Errorf("Get() = %v, want %q", value, "session-1")
	}
}

func TestGetMissing(t *testing.T) {
	c := New()
	defer c.Stop()

	_, err := c.Get("nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestGetExpired(t *testing.T) {
	c := New()
	defer c.Stop()

	if err := c.Set("key", "value", time.Millisecond); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	_, err := c.Get("key")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after expiry error = %v, want ErrNotFound", err)
	}
}

func TestRemove(t *testing.T) {
	c := New()
	defer c.Stop()

	_ = c.Set("a", 1, time.Minute)
	_ = c.Set("b", 2, time.Minute)

	if err := c.Remove("a", "b"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := c.Get("a"); !errors.Is(err, ErrNotFound) {
		t.Error("Get() after Remove() should report ErrNotFound")
	}
}

func TestKeys(t *testing.T) {
	c := New()
	defer c.Stop()

	_ = c.Set("held:db1:a", 1, time.Minute)
	_ = c.Set("held:db1:b", 2, time.Minute)
	_ = c.Set("held:db2:a", 3, time.Minute)
	_ = c.Set("expired", 4, time.Millisecond)

	time.Sleep(5 * time.Millisecond)

	keys := c.Keys("held:db1:")
	if len(keys) != 2 {
		t.Errorf("Keys() returned %d keys, want 2: %v", len(keys), keys)
	}
}
