package stats

import (
	"sync"
	"time"

	"github.com/siherrmann/graphrag/model"
)

// StrategyStats is the observed performance of one traversal strategy
type StrategyStats struct {
	// AvgTime is the running mean execution time in seconds
	AvgTime        float64
	RelevanceScore float64
	Count          int
}

// TrackedStrategies are the strategies seeded into every StrategyPerformance
var TrackedStrategies = []model.Strategy{
	model.StrategyBreadthFirst,
	model.StrategyDepthFirst,
	model.StrategyBidirectional,
	model.StrategyEntityImportance,
	model.StrategyDAGTraversal,
}

// StrategyPerformance tracks per strategy timings and relevance.
// It is safe for concurrent use.
type StrategyPerformance struct {
	mu         sync.RWMutex
	strategies map[model.Strategy]*StrategyStats
	order      []model.Strategy
}

// NewStrategyPerformance creates a tracker seeded with the tracked strategies
func NewStrategyPerformance() *StrategyPerformance {
	p := &StrategyPerformance{strategies: map[model.Strategy]*StrategyStats{}}
	for _, s := range TrackedStrategies {
		p.ensure(s)
	}
	return p
}

func (p *StrategyPerformance) ensure(s model.Strategy) *StrategyStats {
	st, ok := p.strategies[s]
	if !ok {
		st = &StrategyStats{}
		p.strategies[s] = st
		p.order = append(p.order, s)
	}
	return st
}

// Record folds one execution time into the running mean of the strategy
func (p *StrategyPerformance) Record(s model.Strategy, elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := p.ensure(s)
	st.AvgTime = (st.AvgTime*float64(st.Count) + elapsed.Seconds()) / float64(st.Count+1)
	st.Count++
}

// RecordRelevance sets the relevance score of a strategy, e.g. from user feedback
func (p *StrategyPerformance) RecordRelevance(s model.Strategy, score float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ensure(s).RelevanceScore = score
}

// Get returns a copy of the stats of a strategy
func (p *StrategyPerformance) Get(s model.Strategy) StrategyStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if st, ok := p.strategies[s]; ok {
		return *st
	}
	return StrategyStats{}
}

// Best returns the strategy with the highest relevance among those used at least once.
// Ties go to the strategy tracked first. Without any usage it returns entity_importance.
func (p *StrategyPerformance) Best() model.Strategy {
	p.mu.RLock()
	defer p.mu.RUnlock()

	best := model.StrategyEntityImportance
	bestScore := -1.0
	for _, s := range p.order {
		st := p.strategies[s]
		if st.Count > 0 && st.RelevanceScore > bestScore {
			best = s
			bestScore = st.RelevanceScore
		}
	}
	return best
}

// Snapshot returns a copy of all strategy stats
func (p *StrategyPerformance) Snapshot() map[model.Strategy]StrategyStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	snap := make(map[model.Strategy]StrategyStats, len(p.strategies))
	for k, v := range p.strategies {
		snap[k] = *v
	}
	return snap
}
