package pipeline

import (
	"fmt"
	"strings"

	"github.com/siherrmann/graphrag/helper"
	"github.com/siherrmann/graphrag/model"
)

// EmbedFunc is a function that generates embeddings for text
type EmbedFunc func(text string) ([]float32, error)

// BatchEmbedFunc generates one embedding per text, in order
type BatchEmbedFunc func(texts []string) ([][]float32, error)

// Single adapts a batch embedder to embed one text per call
func (b BatchEmbedFunc) Single() EmbedFunc {
	return func(text string) ([]float32, error) {
		embeddings, err := b([]string{text})
		if err != nil {
			return nil, err
		}
		if len(embeddings) == 0 {
			return nil, fmt.Errorf("no embedding generated")
		}
		return embeddings[0], nil
	}
}

// Pipeline turns text into query vectors and node embeddings
type Pipeline struct {
	Embedder EmbedFunc
	// BatchEmbedder is optional, EmbedNodes uses it to embed all nodes in one call
	BatchEmbedder BatchEmbedFunc
}

// NewPipeline creates a new embedding pipeline
func NewPipeline(embedder EmbedFunc) *Pipeline {
	return &Pipeline{
		Embedder: embedder,
	}
}

// NewBatchPipeline creates a pipeline that embeds nodes in batches
func NewBatchPipeline(batch BatchEmbedFunc) *Pipeline {
	p := &Pipeline{BatchEmbedder: batch}
	if batch != nil {
		p.Embedder = batch.Single()
	}
	return p
}

// EmbedQuery embeds the text of a query
func (p *Pipeline) EmbedQuery(text string) ([]float32, error) {
	if p.Embedder == nil {
		return nil, helper.NewError("embed query", fmt.Errorf("no embedder configured"))
	}
	if strings.TrimSpace(text) == "" {
		return nil, helper.NewError("embed query", fmt.Errorf("query text is empty"))
	}

	embedding, err := p.Embedder(text)
	if err != nil {
		return nil, helper.NewError("embed query", err)
	}
	return embedding, nil
}

// EmbedNodes sets the embedding of every node without one from its content.
// Nodes without content are left alone.
func (p *Pipeline) EmbedNodes(nodes []*model.Node) error {
	if p.Embedder == nil && p.BatchEmbedder == nil {
		return helper.NewError("embed nodes", fmt.Errorf("no embedder configured"))
	}

	var pending []*model.Node
	for _, node := range nodes {
		if len(node.Embedding) > 0 || strings.TrimSpace(node.Content) == "" {
			continue
		}
		pending = append(pending, node)
	}
	if len(pending) == 0 {
		return nil
	}

	if p.BatchEmbedder != nil {
		return p.embedBatch(pending)
	}

	for _, node := range pending {
		embedding, err := p.Embedder(node.Content)
		if err != nil {
			return helper.NewError(fmt.Sprintf("embed node %s", node.ID), err)
		}
		node.Embedding = embedding
	}
	return nil
}

func (p *Pipeline) embedBatch(nodes []*model.Node) error {
	texts := make([]string, len(nodes))
	for i, node := range nodes {
		texts[i] = node.Content
	}

	embeddings, err := p.BatchEmbedder(texts)
	if err != nil {
		return helper.NewError(fmt.Sprintf("embed %d nodes", len(nodes)), err)
	}
	if len(embeddings) != len(nodes) {
		return helper.NewError("embed nodes", fmt.Errorf("got %d embeddings for %d nodes", len(embeddings), len(nodes)))
	}

	for i, node := range nodes {
		node.Embedding = embeddings[i]
	}
	return nil
}
