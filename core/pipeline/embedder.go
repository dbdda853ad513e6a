package pipeline

import (
	"fmt"

	"github.com/knights-analytics/hugot"
	"github.com/siherrmann/graphrag/helper"
)

const (
	// DefaultEmbeddingModel is the sentence transformer used by DefaultBatchEmbedder
	DefaultEmbeddingModel = "sentence-transformers/all-MiniLM-L6-v2"
	// DefaultEmbeddingDim is the embedding size of DefaultEmbeddingModel
	DefaultEmbeddingDim = 384
)

// DefaultBatchEmbedder runs all-MiniLM-L6-v2 with the pure Go hugot backend.
// The model is downloaded on first use.
func DefaultBatchEmbedder() (BatchEmbedFunc, error) {
	modelPath, err := helper.PrepareModel(DefaultEmbeddingModel, "onnx/model.onnx")
	if err != nil {
		return nil, helper.NewError("prepare model", err)
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, helper.NewError("create hugot session", err)
	}

	sentencePipeline, err := hugot.NewPipeline(session, hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "graphrag-embedder",
	})
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, helper.NewError("create sentence pipeline", fmt.Errorf("%w (cleanup error: %v)", err, destroyErr))
		}
		return nil, helper.NewError("create sentence pipeline", err)
	}

	return func(texts []string) ([][]float32, error) {
		result, err := sentencePipeline.RunPipeline(texts)
		if err != nil {
			return nil, helper.NewError("generate embeddings", err)
		}
		if len(result.Embeddings) != len(texts) {
			return nil, helper.NewError("generate embeddings", fmt.Errorf("got %d embeddings for %d texts", len(result.Embeddings), len(texts)))
		}
		return result.Embeddings, nil
	}, nil
}

// DefaultEmbedder embeds single texts with DefaultBatchEmbedder
func DefaultEmbedder() (EmbedFunc, error) {
	batch, err := DefaultBatchEmbedder()
	if err != nil {
		return nil, err
	}
	return batch.Single(), nil
}
