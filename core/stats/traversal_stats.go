package stats

import "sync"

// PathScoreLimit bounds the kept path scores, the oldest are dropped first
const PathScoreLimit = 1000

// TraversalStats is shared by the rewriter and the unified optimizer and
// mutated on every query. It is safe for concurrent use.
type TraversalStats struct {
	mu                  sync.RWMutex
	pathsExplored       int
	pathScores          []float64
	entityFrequency     map[string]int
	entityConnectivity  map[string]int
	relationUsefulness  map[string]float64
	relationObservation map[string]int
}

// TraversalSnapshot is a copy of the traversal statistics
type TraversalSnapshot struct {
	PathsExplored      int
	PathScores         []float64
	EntityFrequency    map[string]int
	EntityConnectivity map[string]int
	RelationUsefulness map[string]float64
}

// NewTraversalStats creates empty traversal statistics
func NewTraversalStats() *TraversalStats {
	return &TraversalStats{
		entityFrequency:     map[string]int{},
		entityConnectivity:  map[string]int{},
		relationUsefulness:  map[string]float64{},
		relationObservation: map[string]int{},
	}
}

// RecordPathExplored counts an explored path and keeps its score
func (s *TraversalStats) RecordPathExplored(score float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pathsExplored++
	s.pathScores = append(s.pathScores, score)
	if len(s.pathScores) > PathScoreLimit {
		s.pathScores = append(s.pathScores[:0:0], s.pathScores[len(s.pathScores)-PathScoreLimit:]...)
	}
}

// IncrementEntityFrequency counts one more importance computation for an entity
func (s *TraversalStats) IncrementEntityFrequency(entityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entityFrequency[entityID]++
}

// SetEntityConnectivity stores the total connection count of an entity
func (s *TraversalStats) SetEntityConnectivity(entityID string, connections int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entityConnectivity[entityID] = connections
}

// RecordRelationUsefulness folds a usefulness observation into the running mean of a relation
func (s *TraversalStats) RecordRelationUsefulness(relation string, score float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.relationObservation[relation]
	s.relationUsefulness[relation] = (s.relationUsefulness[relation]*float64(n) + score) / float64(n+1)
	s.relationObservation[relation] = n + 1
}

// EntityFrequency returns how often the importance of an entity was computed
func (s *TraversalStats) EntityFrequency(entityID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entityFrequency[entityID]
}

// EntityConnectivity returns the last recorded connection count of an entity
func (s *TraversalStats) EntityConnectivity(entityID string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.entityConnectivity[entityID]
	return c, ok
}

// RelationUsefulness returns the running usefulness of a relation
func (s *TraversalStats) RelationUsefulness(relation string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.relationUsefulness[relation]
	return u, ok
}

// Snapshot returns a copy of all traversal statistics
func (s *TraversalStats) Snapshot() TraversalSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := TraversalSnapshot{
		PathsExplored:      s.pathsExplored,
		PathScores:         append([]float64(nil), s.pathScores...),
		EntityFrequency:    make(map[string]int, len(s.entityFrequency)),
		EntityConnectivity: make(map[string]int, len(s.entityConnectivity)),
		RelationUsefulness: make(map[string]float64, len(s.relationUsefulness)),
	}
	for k, v := range s.entityFrequency {
		snap.EntityFrequency[k] = v
	}
	for k, v := range s.entityConnectivity {
		snap.EntityConnectivity[k] = v
	}
	for k, v := range s.relationUsefulness {
		snap.RelationUsefulness[k] = v
	}
	return snap
}
