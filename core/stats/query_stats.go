package stats

import (
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// QueryPattern is the shape of a tuned query as recorded by the optimizer
type QueryPattern struct {
	MaxVectorResults  int      `json:"max_vector_results"`
	MaxTraversalDepth int      `json:"max_traversal_depth"`
	EdgeTypes         []string `json:"edge_types"`
	MinSimilarity     float64  `json:"min_similarity"`
}

// PatternCount is a recorded pattern together with how often it was seen
type PatternCount struct {
	Pattern QueryPattern
	Count   int
}

// TimedSample is one query duration with the time it was recorded
type TimedSample struct {
	Duration  time.Duration
	Timestamp time.Time
}

type patternEntry struct {
	pattern QueryPattern
	count   int
	order   int
}

// QueryStats keeps running counters of query timings, cache hits and query patterns.
// It is safe for concurrent use.
type QueryStats struct {
	mu             sync.RWMutex
	queryCount     int
	cacheHits      int
	totalQueryTime time.Duration
	queryTimes     []TimedSample
	patterns       map[string]*patternEntry
	now            func() time.Time
}

// NewQueryStats creates empty query statistics
func NewQueryStats() *QueryStats {
	return &QueryStats{
		patterns: map[string]*patternEntry{},
		now:      time.Now,
	}
}

// SetClock replaces the time source, used by tests
func (s *QueryStats) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// RecordQueryTime records the duration of one executed query
func (s *QueryStats) RecordQueryTime(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queryCount++
	s.totalQueryTime += d
	s.queryTimes = append(s.queryTimes, TimedSample{Duration: d, Timestamp: s.now()})
}

// RecordCacheHit counts one cache hit
func (s *QueryStats) RecordCacheHit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cacheHits++
}

// RecordQueryPattern counts one occurrence of a query pattern.
// Patterns are keyed by their canonical JSON encoding, so equal patterns always
// share a key and CommonPatterns returns them unchanged.
func (s *QueryStats) RecordQueryPattern(p QueryPattern) {
	key := patternKey(p)

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.patterns[key]; ok {
		entry.count++
		return
	}
	p.EdgeTypes = append([]string(nil), p.EdgeTypes...)
	s.patterns[key] = &patternEntry{pattern: p, count: 1, order: len(s.patterns)}
}

// CommonPatterns returns the topN most frequent patterns, most frequent first.
// Ties keep the order in which the patterns were first seen. topN <= 0 returns all.
func (s *QueryStats) CommonPatterns(topN int) []PatternCount {
	s.mu.RLock()
	entries := make([]*patternEntry, 0, len(s.patterns))
	for _, e := range s.patterns {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].order < entries[j].order
	})

	if topN > 0 && len(entries) > topN {
		entries = entries[:topN]
	}

	result := make([]PatternCount, len(entries))
	for i, e := range entries {
		p := e.pattern
		p.EdgeTypes = append([]string(nil), e.pattern.EdgeTypes...)
		result[i] = PatternCount{Pattern: p, Count: e.count}
	}
	return result
}

// QueryCount returns the number of recorded queries
func (s *QueryStats) QueryCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryCount
}

// CacheHits returns the number of recorded cache hits
func (s *QueryStats) CacheHits() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cacheHits
}

// AvgQueryTime returns the mean query time in seconds, 0 without queries
func (s *QueryStats) AvgQueryTime() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.queryCount == 0 {
		return 0
	}
	return s.totalQueryTime.Seconds() / float64(s.queryCount)
}

// CacheHitRate returns cache hits per recorded query, 0 without queries
func (s *QueryStats) CacheHitRate() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.queryCount == 0 {
		return 0
	}
	return float64(s.cacheHits) / float64(s.queryCount)
}

// RecentQueryTimes returns the query durations recorded within the last window
func (s *QueryStats) RecentQueryTimes(window time.Duration) []time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := s.now().Add(-window)
	var recent []time.Duration
	for _, sample := range s.queryTimes {
		if !sample.Timestamp.Before(cutoff) {
			recent = append(recent, sample.Duration)
		}
	}
	return recent
}

// Reset clears all statistics
func (s *QueryStats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queryCount = 0
	s.cacheHits = 0
	s.totalQueryTime = 0
	s.queryTimes = nil
	s.patterns = map[string]*patternEntry{}
}

func patternKey(p QueryPattern) string {
	if p.EdgeTypes == nil {
		p.EdgeTypes = []string{}
	}
	// Marshalling a struct of plain fields cannot fail
	b, _ := json.Marshal(p)
	return string(b)
}
