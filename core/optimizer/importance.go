package optimizer

import (
	"context"
	"fmt"
	"log/slog"
	"math"
)

// baseImportance is returned when the importance of an entity cannot be computed
const baseImportance = 0.5

var typeScores = map[string]float64{
	"concept":      0.9,
	"topic":        0.9,
	"category":     0.9,
	"person":       0.8,
	"organization": 0.8,
	"location":     0.8,
	"event":        0.7,
	"work":         0.7,
}

// CalculateEntityImportance scores an entity between 0 and 1 from its
// connectivity, the diversity of its relations, its properties and its type.
//
// Scores are cached per entity id for the lifetime of the optimizer, use
// ResetEntityImportance to drop them. Processor errors are logged and yield
// the base score 0.5, which is not cached.
func (u *Unified) CalculateEntityImportance(ctx context.Context, entityID string, processor GraphProcessor) float64 {
	u.importanceMu.RLock()
	score, ok := u.importance[entityID]
	u.importanceMu.RUnlock()
	if ok {
		return score
	}

	if processor == nil {
		return baseImportance
	}

	info, err := processor.GetEntityInfo(ctx, entityID)
	if err == nil && info == nil {
		err = fmt.Errorf("no entity info for %s", entityID)
	}
	if err != nil {
		u.log.Warn("Error calculating entity importance", slog.String("entity_id", entityID), slog.String("error", err.Error()))
		return baseImportance
	}

	connections := info.ConnectionCount()
	connectionScore := math.Min(1, float64(connections)/20)
	diversityScore := math.Min(1, float64(info.DistinctRelationTypes())/10)
	propertyScore := math.Min(1, float64(len(info.Properties))/15)
	typeScore, ok := typeScores[info.Type]
	if !ok {
		typeScore = baseImportance
	}

	score = connectionScore*0.4 + diversityScore*0.25 + propertyScore*0.15 + typeScore*0.2

	u.importanceMu.Lock()
	if cached, ok := u.importance[entityID]; ok {
		// Another query computed it concurrently
		u.importanceMu.Unlock()
		return cached
	}
	u.importance[entityID] = score
	u.importanceMu.Unlock()

	u.traversalStats.IncrementEntityFrequency(entityID)
	u.traversalStats.SetEntityConnectivity(entityID, connections)

	return score
}

// ResetEntityImportance drops all cached importance scores
func (u *Unified) ResetEntityImportance() {
	u.importanceMu.Lock()
	defer u.importanceMu.Unlock()
	u.importance = map[string]float64{}
}
