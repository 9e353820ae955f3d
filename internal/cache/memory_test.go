package cache

import (
	"bytes"
	"fmt"
	"testing"
)

func TestMemoryPutGet(t *testing.T) {
	m := NewMemory(1024)

	if err := m.Put("a", []byte("hello")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, ok := m.Get("a")
	if !ok || !bytes.Equal(got, []byte("hello")) {
		t.Errorf("Get returned (%q, %v), want (hello, true)", got, ok)
	}

	if _, ok := m.Get("missing"); ok {
		t.Error("Get for absent key reported a hit")
	}
}

func TestMemoryOverwriteAdjustsSize(t *testing.T) {
	m := NewMemory(1024)

	_ = m.Put("a", make([]byte, 100))
	_ = m.Put("a", make([]byte, 300))

	if got := m.Size(); got != 300 {
		t.Errorf("Size after overwrite = %d, want 300", got)
	}
	if stats := m.Stats(); stats.ItemCount != 1 {
		t.Errorf("ItemCount after overwrite = %d, want 1", stats.ItemCount)
	}
}

func TestMemoryLRUEviction(t *testing.T) {
	m := NewMemory(300)

	_ = m.Put("a", make([]byte, 100))
	_ = m.Put("b", make([]byte, 100))
	_ = m.Put("c", make([]byte, 100))

	// Touch "a" so "b" becomes the eviction candidate.
	if _, ok := m.Get("a"); !ok {
		t.Fatal("Expected a to be present")
	}

	_ = m.Put("d", make([]byte, 100))

	if m.Contains("b") {
		t.Error("Expected LRU entry b to be evicted")
	}
	for _, key := range []string{"a", "c", "d"} {
		if !m.Contains(key) {
			t.Errorf("Expected %s to survive eviction", key)
		}
	}
	if stats := m.Stats(); stats.Evictions != 1 {
		t.Errorf("Evictions = %d, want 1", stats.Evictions)
	}
}

func TestMemoryItemTooLarge(t *testing.T) {
	m := NewMemory(100)

	if err := m.Put("big", make([]byte, 200)); err != ErrItemTooLarge {
		t.Errorf("Put oversized item error = %v, want ErrItemTooLarge", err)
	}
	if m.Size() != 0 {
		t.Errorf("Rejected item changed size to %d", m.Size())
	}
}

func TestMemoryDeleteAndClear(t *testing.T) {
	m := NewMemory(1024)

	_ = m.Put("a", []byte("x"))
	_ = m.Put("b", []byte("y"))

	m.Delete("a")
	if m.Contains("a") {
		t.Error("Deleted key still present")
	}
	m.Delete("a") // absent delete is a no-op

	m.Clear()
	if m.Contains("b") || m.Size() != 0 {
		t.Error("Clear left entries behind")
	}
}

func TestMemoryHitRate(t *testing.T) {
	m := NewMemory(1024)
	_ = m.Put("a", []byte("x"))

	m.Get("a")
	m.Get("a")
	m.Get("missing")
	m.Get("missing")

	stats := m.Stats()
	if stats.Hits != 2 || stats.Misses != 2 {
		t.Fatalf("Stats = %d hits / %d misses, want 2/2", stats.Hits, stats.Misses)
	}
	if stats.HitRate != 0.5 {
		t.Errorf("HitRate = %.2f, want 0.50", stats.HitRate)
	}
}

func TestMemoryManyEntries(t *testing.T) {
	m := NewMemory(1 << 20)

	for i := 0; i < 100; i++ {
		if err := m.Put(fmt.Sprintf("key-%d", i), make([]byte, 64)); err != nil {
			t.Fatalf("Put %d failed: %v", i, err)
		}
	}
	if stats := m.Stats(); stats.ItemCount != 100 {
		t.Errorf("ItemCount = %d, want 100", stats.ItemCount)
	}
}
