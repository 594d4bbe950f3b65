package memcache

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestCache_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	c := New(4)

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}
	val, found, err := c.Get(ctx, "k")
	if err != nil || !found {
		t.Fatalf("Get: found=%v err=%v", found, err)
	}
	if string(val) != "v" {
		t.Errorf("value = %q, want v", val)
	}

	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := c.Get(ctx, "k"); found {
		t.Error("expected miss after delete")
	}
}

func TestCache_ExpiredEntryIsAbsentAndPurged(t *testing.T) {
	ctx := context.Background()
	c := New(4)
	base := time.Now()
	c.now = func() time.Time { return base }

	_ = c.Set(ctx, "k", []byte("v"), 10*time.Second)

	c.now = func() time.Time { return base.Add(11 * time.Second) }
	if _, found, _ := c.Get(ctx, "k"); found {
		t.Fatal("expected expired entry to be a miss")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry not purged, len = %d", c.Len())
	}
}

func TestCache_EvictsOldestInsertion(t *testing.T) {
	ctx := context.Background()
	c := New(3)
	base := time.Now()
	tick := 0
	c.now = func() time.Time { tick++; return base.Add(time.Duration(tick) * time.Millisecond) }

	for i := range 3 {
		_ = c.Set(ctx, fmt.Sprintf("k%d", i), []byte("v"), time.Minute)
	}

	// Reading k0 must NOT protect it: eviction is insertion-ordered, not LRU.
	if _, found, _ := c.Get(ctx, "k0"); !found {
		t.Fatal("k0 should be present")
	}

	_ = c.Set(ctx, "k3", []byte("v"), time.Minute)

	if _, found, _ := c.Get(ctx, "k0"); found {
		t.Error("k0 should have been evicted as oldest insertion")
	}
	for _, k := range []string{"k1", "k2", "k3"} {
		if _, found, _ := c.Get(ctx, k); !found {
			t.Errorf("%s should still be present", k)
		}
	}
}

func TestCache_OverwriteRefreshesInsertion(t *testing.T) {
	ctx := context.Background()
	c := New(2)

	_ = c.Set(ctx, "a", []byte("1"), time.Minute)
	_ = c.Set(ctx, "b", []byte("2"), time.Minute)
	_ = c.Set(ctx, "a", []byte("3"), time.Minute) // re-insert a, now b is oldest
	_ = c.Set(ctx, "c", []byte("4"), time.Minute)

	if _, found, _ := c.Get(ctx, "b"); found {
		t.Error("b should have been evicted")
	}
	val, found, _ := c.Get(ctx, "a")
	if !found || string(val) != "3" {
		t.Errorf("a = %q found=%v, want 3", val, found)
	}
}
