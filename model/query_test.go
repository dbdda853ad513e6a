package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryClone(t *testing.T) {
	t.Run("Clone is independent of the original", func(t *testing.T) {
		original := &Query{
			QueryVector:   []float32{0.1, 0.2},
			EdgeTypes:     []string{"cites"},
			MinSimilarity: Float64(0.6),
			VectorParams:  &VectorParams{TopK: 4, MinScore: Float64(0.5)},
			Traversal: &Traversal{
				EdgeTypes:    []string{"part_of", "link"},
				EntityScores: map[string]float64{"Q1": 0.8},
			},
			Extra: Metadata{"source": "wikidata:Q1"},
		}

		clone := original.Clone()
		clone.QueryVector[0] = 9
		clone.EdgeTypes[0] = "changed"
		*clone.MinSimilarity = 0.1
		*clone.VectorParams.MinScore = 0.2
		clone.Traversal.EdgeTypes[0] = "changed"
		clone.Traversal.EntityScores["Q1"] = 0
		clone.Extra["source"] = "changed"

		assert.Equal(t, float32(0.1), original.QueryVector[0])
		assert.Equal(t, "cites", original.EdgeTypes[0])
		assert.Equal(t, 0.6, *original.MinSimilarity)
		assert.Equal(t, 0.5, *original.VectorParams.MinScore)
		assert.Equal(t, "part_of", original.Traversal.EdgeTypes[0])
		assert.Equal(t, 0.8, original.Traversal.EntityScores["Q1"])
		assert.Equal(t, "wikidata:Q1", original.Extra["source"])
	})

	t.Run("Clone of nil is nil", func(t *testing.T) {
		var q *Query
		assert.Nil(t, q.Clone())
	})
}

func TestQueryString(t *testing.T) {
	t.Run("Includes extra keys in lowercase", func(t *testing.T) {
		q := &Query{Extra: Metadata{"Source": "WikiData:Q1"}}

		assert.Contains(t, q.String(), `"source":"wikidata:q1"`)
	})

	t.Run("Known fields win over extra keys", func(t *testing.T) {
		q := &Query{EntityID: "E1", Extra: Metadata{"entity_id": "other"}}

		assert.Contains(t, q.String(), `"entity_id":"e1"`)
		assert.NotContains(t, q.String(), "other")
	})

	t.Run("Empty query renders empty object", func(t *testing.T) {
		assert.Equal(t, "{}", (&Query{}).String())
	})
}

func TestEnsureHelpers(t *testing.T) {
	t.Run("Create missing sub queries once", func(t *testing.T) {
		q := &Query{}

		tr := q.EnsureTraversal()
		tr.MaxDepth = 3
		vp := q.EnsureVectorParams()
		vp.TopK = 7

		require.NotNil(t, q.Traversal)
		require.NotNil(t, q.VectorParams)
		assert.Equal(t, 3, q.EnsureTraversal().MaxDepth)
		assert.Equal(t, 7, q.EnsureVectorParams().TopK)
	})
}

func TestEntityInfo(t *testing.T) {
	info := &EntityInfo{
		InboundConnections:  []Connection{{EntityID: "a", RelationType: "part_of"}},
		OutboundConnections: []Connection{{EntityID: "b", RelationType: "part_of"}, {EntityID: "c", RelationType: "located_in"}},
	}

	assert.Equal(t, 3, info.ConnectionCount())
	assert.Equal(t, 2, info.DistinctRelationTypes())
}

func TestHasCID(t *testing.T) {
	assert.False(t, HasCID(nil))
	assert.False(t, HasCID([]Result{{ID: "a"}}))
	assert.True(t, HasCID([]Result{{ID: "a"}, {ID: "b", CID: "bafy"}}))
}

func TestComplexityScore(t *testing.T) {
	t.Run("Defaults for empty query", func(t *testing.T) {
		assert.InDelta(t, 6.5, (&Query{}).ComplexityScore(), 1e-9)
	})

	t.Run("Uses top k, depth and edge types", func(t *testing.T) {
		q := &Query{
			VectorParams: &VectorParams{TopK: 10},
			Traversal:    &Traversal{MaxDepth: 3, EdgeTypes: []string{"a", "b", "c", "d", "e"}},
		}

		assert.InDelta(t, 5+6+1.5, q.ComplexityScore(), 1e-9)
	})
}
