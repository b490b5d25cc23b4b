package score

import (
	"hash/fnv"
	"sync"
	"time"
)

const (
	historyShards = 32
	// scoreCapacity bounds the drift baseline per agent.
	scoreCapacity = 100
)

// AgentHistory is one agent's rolling state: request timestamps inside
// the volume window plus a bounded ring of recent impact scores. Stale
// timestamps are evicted lazily on access; there is no sweeper goroutine.
type AgentHistory struct {
	stamps []time.Time
	scores []float64
	next   int
	filled bool
}

// evict drops timestamps older than the window.
func (h *AgentHistory) evict(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	i := 0
	for ; i < len(h.stamps); i++ {
		if h.stamps[i].After(cutoff) {
			break
		}
	}
	if i > 0 {
		h.stamps = append(h.stamps[:0], h.stamps[i:]...)
	}
}

// record appends a request timestamp and an impact score.
func (h *AgentHistory) record(now time.Time, score float64) {
	h.stamps = append(h.stamps, now)
	if len(h.scores) < scoreCapacity {
		h.scores = append(h.scores, score)
		return
	}
	h.scores[h.next] = score
	h.next = (h.next + 1) % scoreCapacity
	h.filled = true
}

// mean returns the historical mean impact score and whether any history exists.
func (h *AgentHistory) mean() (float64, bool) {
	if len(h.scores) == 0 {
		return 0, false
	}
	var sum float64
	for _, s := range h.scores {
		sum += s
	}
	return sum / float64(len(h.scores)), true
}

// HistoryMap is a sharded concurrent map of per-agent histories. Sharding
// serializes per-key mutation without a global lock so the hot path stays
// sub-millisecond under load.
type HistoryMap struct {
	window time.Duration
	shards [historyShards]struct {
		mu sync.Mutex
		m  map[string]*AgentHistory
	}
}

// NewHistoryMap builds a HistoryMap with the given volume window.
func NewHistoryMap(window time.Duration) *HistoryMap {
	hm := &HistoryMap{window: window}
	for i := range hm.shards {
		hm.shards[i].m = make(map[string]*AgentHistory)
	}
	return hm
}

func (hm *HistoryMap) shard(agentID string) *struct {
	mu sync.Mutex
	m  map[string]*AgentHistory
} {
	h := fnv.New32a()
	h.Write([]byte(agentID))
	return &hm.shards[h.Sum32()%historyShards]
}

// Snapshot returns the agent's in-window request count and historical
// mean score without mutating history beyond lazy eviction.
func (hm *HistoryMap) Snapshot(agentID string, now time.Time) (count int, mean float64, hasMean bool) {
	s := hm.shard(agentID)
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.m[agentID]
	if !ok {
		return 0, 0, false
	}
	h.evict(now, hm.window)
	mean, hasMean = h.mean()
	return len(h.stamps), mean, hasMean
}

// Record appends the request timestamp and resulting score to the
// agent's bounded history.
func (hm *HistoryMap) Record(agentID string, now time.Time, score float64) {
	s := hm.shard(agentID)
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.m[agentID]
	if !ok {
		h = &AgentHistory{}
		s.m[agentID] = h
	}
	h.evict(now, hm.window)
	h.record(now, score)
}
