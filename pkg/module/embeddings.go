package module

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/caikit/caikit-huggingface-demo/pkg/datamodel"
)

// decodeFeatures normalizes feature-extraction output into one row per
// token. Pooled models answer with a single vector.
func decodeFeatures(raw json.RawMessage) ([][]float64, error) {
	var batched [][][]float64
	if err := json.Unmarshal(raw, &batched); err == nil {
		if len(batched) == 0 {
			return nil, nil
		}
		return batched[0], nil
	}

	var rows [][]float64
	if err := json.Unmarshal(raw, &rows); err == nil {
		return rows, nil
	}

	var pooled []float64
	if err := json.Unmarshal(raw, &pooled); err != nil {
		return nil, errors.Wrap(err, "unexpected feature-extraction output")
	}
	return [][]float64{pooled}, nil
}

// runEmbeddings returns one pair per token vector, numbered from zero
func runEmbeddings(ctx context.Context, b *hfBase, in Input) (any, error) {
	var raw json.RawMessage
	if err := b.hub.Infer(ctx, b.model, b.revision, in.TextIn, nil, &raw); err != nil {
		return nil, err
	}
	rows, err := decodeFeatures(raw)
	if err != nil {
		return nil, err
	}

	result := &datamodel.EmbeddingsResult{Output: make([]datamodel.EmbeddingsPair, 0, len(rows))}
	for i, row := range rows {
		result.Output = append(result.Output, datamodel.EmbeddingsPair{Input: int32(i), Output: row})
	}
	return result, nil
}

// runSentenceSimilarity embeds every sentence. Comparing the vectors is up
// to the caller.
func runSentenceSimilarity(ctx context.Context, b *hfBase, in Input) (any, error) {
	if len(in.Sentences) == 0 {
		return &datamodel.EmbeddingsResult{Output: []datamodel.EmbeddingsPair{}}, nil
	}

	var vectors [][]float64
	if err := b.hub.Infer(ctx, b.model, b.revision, in.Sentences, nil, &vectors); err != nil {
		return nil, err
	}
	if len(vectors) != len(in.Sentences) {
		return nil, errors.Errorf("hub returned %d embeddings for %d sentences", len(vectors), len(in.Sentences))
	}

	result := &datamodel.EmbeddingsResult{Output: make([]datamodel.EmbeddingsPair, 0, len(vectors))}
	for i, v := range vectors {
		result.Output = append(result.Output, datamodel.EmbeddingsPair{Input: int32(i), Output: v})
	}
	return result, nil
}
