package quorum

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/stratofs/lockmgr/lock"
)

func getTestClients(t *testing.T, n int) ([]redis.UniversalClient, []*miniredis.Miniredis) {
	t.Helper()

	clients := make([]redis.UniversalClient, 0, n)
	servers := make([]*miniredis.Miniredis, 0, n)
	for i := 0; i < n; i++ {
		srv := miniredis.RunT(t)
		servers = append(servers, srv)
		client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
		t.Cleanup(func() {
			_ = client.Close()
		})
		clients = append(clients, client)
	}
	return clients, servers
}

func TestNewRequiresServers(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("New() should fail without clients")
	}
}

func TestLockUnlock(t *testing.T) {
	clients, _ := getTestClients(t, 3)
	m, err := New(clients)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()

	if err := m.Lock(ctx, lock.TypeExclusive, "file/a", "file/b"); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	if err := m.Unlock(ctx, lock.TypeExclusive, "file/a", "file/b"); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
}

func TestExclusiveConflict(t *testing.T) {
	clients, _ := getTestClients(t, 3)
	m1, _ := New(clients)
	m2, _ := New(clients)

	ctx := context.Background()

	if err := m1.Lock(ctx, lock.TypeExclusive, "file/a"); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}

	lockCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	if err := m2.Lock(lockCtx, lock.TypeExclusive, "file/a"); err == nil {
		t.Fatal("Lock() should not succeed while held exclusively elsewhere")
	}

	if err := m1.Unlock(ctx, lock.TypeExclusive, "file/a"); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	if err := m2.Lock(ctx, lock.TypeExclusive, "file/a"); err != nil {
		t.Fatalf("Lock() after release error = %v", err)
	}
}

func TestSharedCoexist(t *testing.T) {
	clients, _ := getTestClients(t, 3)
	m1, _ := New(clients)
	m2, _ := New(clients)
	m3, _ := New(clients)

	ctx := context.Background()

	if err := m1.Lock(ctx, lock.TypeShared, "file/a"); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	if err := m2.Lock(ctx, lock.TypeShared, "file/a"); err != nil {
		t.Fatalf("second shared Lock() error = %v", err)
	}

	lockCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	if err := m3.Lock(lockCtx, lock.TypeExclusive, "file/a"); err == nil {
		t.Fatal("exclusive Lock() should not succeed over shared holders")
	}

	_ = m1.Unlock(ctx, lock.TypeShared, "file/a")
	_ = m2.Unlock(ctx, lock.TypeShared, "file/a")

	if err := m3.Lock(ctx, lock.TypeExclusive, "file/a"); err != nil {
		t.Fatalf("Lock() after shared release error = %v", err)
	}
}

func TestMinorityOutage(t *testing.T) {
	clients, servers := getTestClients(t, 3)
	m, _ := New(clients)

	// One server down out of three still leaves a majority.
	servers[0].Close()

	ctx := context.Background()
	if err := m.Lock(ctx, lock.TypeExclusive, "file/a"); err != nil {
		t.Fatalf("Lock() with minority outage error = %v", err)
	}
	if err := m.Unlock(ctx, lock.TypeExclusive, "file/a"); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
}

func TestAllOrNothing(t *testing.T) {
	clients, _ := getTestClients(t, 3)
	m1, _ := New(clients)
	m2, _ := New(clients)

	ctx := context.Background()

	if err := m1.Lock(ctx, lock.TypeExclusive, "file/b"); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}

	lockCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	if err := m2.Lock(lockCtx, lock.TypeExclusive, "file/a", "file/b"); err == nil {
		t.Fatal("batch Lock() should fail while file/b is held")
	}

	// The failed batch must not leave a claim on file/a behind.
	m3, _ := New(clients)
	if err := m3.Lock(ctx, lock.TypeExclusive, "file/a"); err != nil {
		t.Fatalf("Lock() on rolled back path error = %v", err)
	}
}

func TestVolatileExpiry(t *testing.T) {
	clients, servers := getTestClients(t, 1)
	m1, _ := New(clients, WithTTL(time.Second))
	m2, _ := New(clients)

	ctx := context.Background()

	if err := m1.Lock(ctx, lock.TypeExclusive, "file/a"); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}

	// miniredis expires keys on fast-forwarded time.
	servers[0].FastForward(2 * time.Second)

	if err := m2.Lock(ctx, lock.TypeExclusive, "file/a"); err != nil {
		t.Fatalf("Lock() after expiry error = %v", err)
	}
}
