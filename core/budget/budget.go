package budget

import (
	"log/slog"
	"sync"

	"github.com/siherrmann/graphrag/model"
)

// HistoryLimit is the number of completed queries kept per resource
const HistoryLimit = 100

// DefaultBudget is the budget of a medium complexity query at normal priority
var DefaultBudget = model.Budget{
	model.ResourceVectorSearchMs:   500,
	model.ResourceGraphTraversalMs: 1000,
	model.ResourceRankingMs:        200,
	model.ResourceMaxNodes:         1000,
	model.ResourceMaxEdges:         5000,
	model.ResourceTimeoutMs:        2000,
}

var priorityMultipliers = map[model.Priority]float64{
	model.PriorityLow:      0.5,
	model.PriorityNormal:   1.0,
	model.PriorityHigh:     2.0,
	model.PriorityCritical: 5.0,
}

var complexityMultipliers = map[model.Complexity]float64{
	model.ComplexityLow:      0.7,
	model.ComplexityMedium:   1.0,
	model.ComplexityHigh:     1.5,
	model.ComplexityVeryHigh: 2.0,
}

// Manager allocates per query resource budgets and tracks what a query consumes.
// Budgets are advisory, nothing is cancelled when a budget is exceeded.
// It is safe for concurrent use, but the consumption of one query is only
// meaningful when queries are executed one at a time.
type Manager struct {
	mu            sync.Mutex
	defaultBudget model.Budget
	current       model.Budget
	consumption   map[model.Resource]float64
	history       map[model.Resource][]float64
	log           *slog.Logger
}

// NewManager creates a budget manager with the default budget
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		defaultBudget: DefaultBudget.Clone(),
		history:       map[model.Resource][]float64{},
		log:           logger,
	}
	m.resetConsumption()
	return m
}

// AllocateBudget scales the default budget by query complexity and priority and
// resets the consumption counters. Unknown priorities count as normal.
func (m *Manager) AllocateBudget(q *model.Query, priority model.Priority) model.Budget {
	complexity := EstimateComplexity(q)
	complexityMultiplier := complexityMultipliers[complexity]
	priorityMultiplier, ok := priorityMultipliers[priority]
	if !ok {
		priorityMultiplier = 1.0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	allocated := make(model.Budget, len(m.defaultBudget))
	for resource, value := range m.defaultBudget {
		allocated[resource] = value * complexityMultiplier * priorityMultiplier
	}
	m.current = allocated
	m.resetConsumption()

	m.log.Debug(
		"Allocated query budget",
		slog.String("complexity", string(complexity)),
		slog.String("priority", string(priority)),
	)

	return allocated.Clone()
}

// resetConsumption must be called with the lock held
func (m *Manager) resetConsumption() {
	m.consumption = make(map[model.Resource]float64, len(model.ConsumptionResources))
	for _, r := range model.ConsumptionResources {
		m.consumption[r] = 0
	}
}

// TrackConsumption adds amount to a consumption counter. Unknown resources are ignored.
func (m *Manager) TrackConsumption(resource model.Resource, amount float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.consumption[resource]; ok {
		m.consumption[resource] += amount
	}
}

// RecordCompletion appends the current consumption to the bounded history.
func (m *Manager) RecordCompletion(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for resource, value := range m.consumption {
		h := append(m.history[resource], value)
		if len(h) > HistoryLimit {
			h = h[len(h)-HistoryLimit:]
		}
		m.history[resource] = h
	}

	if !success {
		m.log.Debug("Recorded failed query completion")
	}
}

// History returns a copy of the recorded consumption of a resource, oldest first
func (m *Manager) History(resource model.Resource) []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]float64(nil), m.history[resource]...)
}

// CurrentBudget returns the last allocated budget, nil before the first allocation
func (m *Manager) CurrentBudget() model.Budget {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	return m.current.Clone()
}

// SuggestEarlyStopping reports whether traversal can stop with the results it has.
// It stops when the budget is mostly used and the top results are already good,
// or when scores drop off sharply after the first results.
func SuggestEarlyStopping(results []model.Result, budgetConsumedRatio float64) bool {
	if len(results) < 3 {
		return false
	}

	topMean := (results[0].Score + results[1].Score + results[2].Score) / 3
	if budgetConsumedRatio > 0.7 && topMean > 0.85 {
		return true
	}

	if len(results) > 5 && results[0].Score-results[4].Score > 0.3 {
		return true
	}

	return false
}

// SuggestEarlyStopping is SuggestEarlyStopping bound to the manager
func (m *Manager) SuggestEarlyStopping(results []model.Result, budgetConsumedRatio float64) bool {
	return SuggestEarlyStopping(results, budgetConsumedRatio)
}

// ConsumptionReport returns the current consumption and its ratio to the default budget.
// Every tracked resource has a ratio, the overall ratio is their mean.
func (m *Manager) ConsumptionReport() *model.ConsumptionReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.report()
}

// ConsumedRatio returns the mean ratio of consumption to the default budget
func (m *Manager) ConsumedRatio() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.report().OverallConsumptionRatio
}

func (m *Manager) report() *model.ConsumptionReport {
	report := &model.ConsumptionReport{
		Consumption: make(map[model.Resource]float64, len(m.consumption)),
		Budget:      m.defaultBudget.Clone(),
		Ratios:      map[model.Resource]float64{},
	}

	total := 0.0
	for _, resource := range model.ConsumptionResources {
		consumed := m.consumption[resource]
		report.Consumption[resource] = consumed

		// Resources without a default allocation, like nodes_visited, count as 0
		ratio := 0.0
		if allocation := m.defaultBudget[resource]; allocation != 0 {
			ratio = consumed / allocation
		}
		report.Ratios[resource] = ratio
		total += ratio
	}

	report.OverallConsumptionRatio = total / float64(len(model.ConsumptionResources))
	return report
}

// EstimateComplexity classifies a query for budget scaling:
// low (<5), medium (<10), high (<20) or very high.
// The rewriter and the unified optimizer classify the same score with other thresholds.
func EstimateComplexity(q *model.Query) model.Complexity {
	if q == nil {
		q = &model.Query{}
	}
	score := q.ComplexityScore()
	switch {
	case score < 5:
		return model.ComplexityLow
	case score < 10:
		return model.ComplexityMedium
	case score < 20:
		return model.ComplexityHigh
	default:
		return model.ComplexityVeryHigh
	}
}
