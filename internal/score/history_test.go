package score

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestHistoryWindowEviction(t *testing.T) {
	hm := NewHistoryMap(VolumeWindow)
	start := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		hm.Record("agent-a", start.Add(time.Duration(i)*time.Second), 0.5)
	}

	count, _, _ := hm.Snapshot("agent-a", start.Add(9*time.Second))
	if count != 10 {
		t.Fatalf("expected 10 in-window requests, got %d", count)
	}

	// 61 seconds after the last request every timestamp is stale, but the
	// score baseline survives.
	count, _, hasMean := hm.Snapshot("agent-a", start.Add(70*time.Second))
	if count != 0 {
		t.Fatalf("expected 0 after window expiry, got %d", count)
	}
	if !hasMean {
		t.Fatal("score baseline must survive timestamp eviction")
	}
}

func TestHistoryScoreRingIsBounded(t *testing.T) {
	h := &AgentHistory{}
	now := time.Now()
	for i := 0; i < 250; i++ {
		h.record(now, float64(i))
	}
	if len(h.scores) != scoreCapacity {
		t.Fatalf("expected ring bounded at %d, got %d", scoreCapacity, len(h.scores))
	}

	// The ring holds the newest 100 scores: 150..249, mean 199.5.
	mean, ok := h.mean()
	if !ok {
		t.Fatal("expected a mean")
	}
	if mean != 199.5 {
		t.Fatalf("expected mean 199.5 over newest %d, got %f", scoreCapacity, mean)
	}
}

func TestHistoryUnknownAgent(t *testing.T) {
	hm := NewHistoryMap(VolumeWindow)
	count, _, hasMean := hm.Snapshot("never-seen", time.Now())
	if count != 0 || hasMean {
		t.Fatalf("expected empty snapshot, got count=%d hasMean=%v", count, hasMean)
	}
}

func TestHistoryConcurrentAccess(t *testing.T) {
	hm := NewHistoryMap(VolumeWindow)
	now := time.Now()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			agent := fmt.Sprintf("agent-%d", g%4)
			for i := 0; i < 200; i++ {
				hm.Record(agent, now, 0.5)
				hm.Snapshot(agent, now)
			}
		}(g)
	}
	wg.Wait()

	for g := 0; g < 4; g++ {
		count, _, _ := hm.Snapshot(fmt.Sprintf("agent-%d", g), now)
		if count != 400 {
			t.Fatalf("agent-%d: expected 400 recorded requests, got %d", g, count)
		}
	}
}
