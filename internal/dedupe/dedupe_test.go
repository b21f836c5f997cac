// ABOUTME: Tests for the webhook delivery dedupe cache.
// ABOUTME: Covers the seen/mark cycle, capacity eviction, and expiry refresh.

package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestSeen(t *testing.T) {
	c := New(time.Minute, 100)
	defer c.Close()

	if c.Seen("evt_1") {
		t.Error("first delivery must not read as seen")
	}
	if !c.Seen("evt_1") {
		t.Error("second delivery must read as seen")
	}
	if c.Seen("evt_2") {
		t.Error("different key must not read as seen")
	}
}

func TestSeen_Concurrent(t *testing.T) {
	c := New(time.Minute, 100)
	defer c.Close()

	const callers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	fresh := 0

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !c.Seen("evt_race") {
				mu.Lock()
				fresh++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if fresh != 1 {
		t.Errorf("exactly one concurrent delivery should pass, got %d", fresh)
	}
}

func TestCapacityEviction(t *testing.T) {
	c := New(time.Minute, 3)
	defer c.Close()

	for i := 0; i < 4; i++ {
		c.Seen(fmt.Sprintf("evt_%d", i))
	}

	// Oldest key was evicted to make room, so it reads as fresh again
	if c.Seen("evt_0") {
		t.Error("evicted key must read as fresh")
	}
	if !c.Seen("evt_3") {
		t.Error("recent key must survive eviction")
	}
}

func TestExpiry(t *testing.T) {
	c := New(10*time.Millisecond, 100)
	defer c.Close()

	c.Seen("evt_ttl")
	time.Sleep(20 * time.Millisecond)

	if c.Seen("evt_ttl") {
		t.Error("expired key must read as fresh")
	}
	// And the refresh marks it again
	if !c.Seen("evt_ttl") {
		t.Error("refreshed key must read as seen")
	}
}

func TestForget(t *testing.T) {
	c := New(time.Minute, 100)
	defer c.Close()

	c.Seen("evt_fail")
	c.Forget("evt_fail")

	if c.Seen("evt_fail") {
		t.Error("forgotten key must read as fresh")
	}

	// Forgetting an unknown key is a no-op
	c.Forget("evt_never")
}

func TestClose_Idempotent(t *testing.T) {
	c := New(time.Minute, 10)
	c.Close()
	c.Close()
}
