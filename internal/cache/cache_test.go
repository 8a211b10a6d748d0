package cache

import (
	"testing"
	"time"
)

func TestGetSetDelete(t *testing.T) {
	c := New[int](10, time.Minute)

	if _, ok := c.Get("a"); ok {
		t.Fatal("empty cache should miss")
	}

	c.Set("a", 1)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("got %d/%v, want 1/true", v, ok)
	}

	c.Set("a", 2)
	if v, _ := c.Get("a"); v != 2 {
		t.Fatalf("overwrite failed: got %d", v)
	}

	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Fatal("deleted key should miss")
	}
}

func TestTTLExpiry(t *testing.T) {
	c := New[string](10, 10*time.Millisecond)
	c.Set("k", "v")

	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Fatal("expired entry should miss")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry should be evicted on read, len = %d", c.Len())
	}
}

func TestLRUEviction(t *testing.T) {
	c := New[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a") // refresh a
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatal("least recently used entry should be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatal("recently used entry should survive")
	}
	if _, ok := c.Get("c"); !ok {
		t.Fatal("new entry should be present")
	}
}

func TestPurge(t *testing.T) {
	c := New[int](10, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	c.Purge()
	if c.Len() != 0 {
		t.Fatalf("len = %d after purge, want 0", c.Len())
	}
	if _, ok := c.Get("a"); ok {
		t.Fatal("purged entry should miss")
	}
}
