package cache

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/opensource-commerce/heron/internal/domain"
)

func TestLRUGetSet(t *testing.T) {
	c := NewLRUCache(100)
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "tenant-001", "key1", []byte("value1"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	val, err := c.Get(ctx, "tenant-001", "key1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(val, []byte("value1")) {
		t.Errorf("expected value1, got %s", val)
	}
}

func TestLRUGetMissing(t *testing.T) {
	c := NewLRUCache(100)
	defer c.Close()

	val, err := c.Get(context.Background(), "tenant-001", "nope")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if val != nil {
		t.Errorf("expected nil for missing key, got %s", val)
	}
}

func TestLRUExpiry(t *testing.T) {
	c := NewLRUCache(100)
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "tenant-001", "key1", []byte("value1"), 10*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	val, err := c.Get(ctx, "tenant-001", "key1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if val != nil {
		t.Errorf("expected expired entry to be gone, got %s", val)
	}
}

func TestLRUEviction(t *testing.T) {
	c := NewLRUCache(3)
	defer c.Close()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("key%d", i)
		if err := c.Set(ctx, "tenant-001", key, []byte("v"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	size, capacity := c.Stats()
	if size != 3 || capacity != 3 {
		t.Errorf("expected size 3/cap 3, got %d/%d", size, capacity)
	}

	// Oldest entries are evicted first.
	if val, _ := c.Get(ctx, "tenant-001", "key0"); val != nil {
		t.Error("key0 should have been evicted")
	}
	if val, _ := c.Get(ctx, "tenant-001", "key4"); val == nil {
		t.Error("key4 should still be cached")
	}
}

func TestLRURecentUseSurvivesEviction(t *testing.T) {
	c := NewLRUCache(2)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "tenant-001", "a", []byte("a"), time.Minute)
	c.Set(ctx, "tenant-001", "b", []byte("b"), time.Minute)

	// Touch "a" so "b" becomes the eviction candidate.
	c.Get(ctx, "tenant-001", "a")
	c.Set(ctx, "tenant-001", "c", []byte("c"), time.Minute)

	if val, _ := c.Get(ctx, "tenant-001", "a"); val == nil {
		t.Error("recently used entry was evicted")
	}
	if val, _ := c.Get(ctx, "tenant-001", "b"); val != nil {
		t.Error("least recently used entry survived")
	}
}

func TestLRUTenantIsolation(t *testing.T) {
	c := NewLRUCache(100)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "tenant-001", "shared", []byte("one"), time.Minute)
	c.Set(ctx, "tenant-002", "shared", []byte("two"), time.Minute)

	val, _ := c.Get(ctx, "tenant-001", "shared")
	if !bytes.Equal(val, []byte("one")) {
		t.Errorf("tenant-001 sees %s", val)
	}
	val, _ = c.Get(ctx, "tenant-002", "shared")
	if !bytes.Equal(val, []byte("two")) {
		t.Errorf("tenant-002 sees %s", val)
	}

	if _, err := c.Get(ctx, "", "shared"); err == nil {
		t.Error("expected error for empty tenantID")
	}
}

func TestLRUDelete(t *testing.T) {
	c := NewLRUCache(100)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "tenant-001", "key1", []byte("value1"), time.Minute)
	if err := c.Delete(ctx, "tenant-001", "key1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if val, _ := c.Get(ctx, "tenant-001", "key1"); val != nil {
		t.Error("deleted entry still present")
	}
}

func TestLRUIncrementCounter(t *testing.T) {
	c := NewLRUCache(100)
	defer c.Close()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := c.IncrementCounter(ctx, "tenant-001", "returns:cust-001", time.Minute)
		if err != nil {
			t.Fatalf("IncrementCounter failed: %v", err)
		}
		if got != want {
			t.Errorf("expected %d, got %d", want, got)
		}
	}

	// A different tenant gets its own counter.
	got, err := c.IncrementCounter(ctx, "tenant-002", "returns:cust-001", time.Minute)
	if err != nil {
		t.Fatalf("IncrementCounter failed: %v", err)
	}
	if got != 1 {
		t.Errorf("expected fresh counter for tenant-002, got %d", got)
	}
}

func TestLRUCounterWindowReset(t *testing.T) {
	c := NewLRUCache(100)
	defer c.Close()
	ctx := context.Background()

	c.IncrementCounter(ctx, "tenant-001", "k", 10*time.Millisecond)
	c.IncrementCounter(ctx, "tenant-001", "k", 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	got, err := c.IncrementCounter(ctx, "tenant-001", "k", time.Minute)
	if err != nil {
		t.Fatalf("IncrementCounter failed: %v", err)
	}
	if got != 1 {
		t.Errorf("expected counter reset after window, got %d", got)
	}
}

func TestLRUPolicyRoundtrip(t *testing.T) {
	c := NewLRUCache(100)
	defer c.Close()
	ctx := context.Background()

	policy := &domain.Policy{
		ID:                 "pol-001",
		SellerID:           "seller-001",
		ReturnWindowDays:   30,
		RefundType:         domain.RefundPartial,
		RefundDeductionPct: 15,
		EligibleCategories: []string{"electronics"},
		Exclusions:         []string{"final sale"},
	}

	if err := c.SetPolicy(ctx, "tenant-001", "seller-001", policy, time.Minute); err != nil {
		t.Fatalf("SetPolicy failed: %v", err)
	}

	got, err := c.GetPolicy(ctx, "tenant-001", "seller-001")
	if err != nil {
		t.Fatalf("GetPolicy failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected cached policy")
	}
	if got.ID != policy.ID || got.ReturnWindowDays != 30 || got.RefundType != domain.RefundPartial {
		t.Errorf("policy fields lost in roundtrip: %+v", got)
	}
	if len(got.EligibleCategories) != 1 || got.EligibleCategories[0] != "electronics" {
		t.Errorf("categories lost in roundtrip: %v", got.EligibleCategories)
	}

	// Miss is nil, nil.
	got, err = c.GetPolicy(ctx, "tenant-001", "seller-999")
	if err != nil || got != nil {
		t.Errorf("expected nil, nil on miss, got %v, %v", got, err)
	}
}

func TestNewFactory(t *testing.T) {
	c, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 100})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := c.(*LRUCache); !ok {
		t.Errorf("expected *LRUCache, got %T", c)
	}
	c.Close()

	if _, err := New(domain.CacheConfig{Type: "memcached"}); err == nil {
		t.Error("expected error for unsupported cache type")
	}
}
