package module

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/caikit/caikit-huggingface-demo/pkg/datamodel"
)

type hubLabel struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// decodeLabels accepts both the flat and the batched label list shapes
func decodeLabels(raw json.RawMessage) ([]hubLabel, error) {
	var batched [][]hubLabel
	if err := json.Unmarshal(raw, &batched); err == nil {
		var flat []hubLabel
		for _, b := range batched {
			flat = append(flat, b...)
		}
		return flat, nil
	}

	var flat []hubLabel
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, errors.Wrap(err, "unexpected label output")
	}
	return flat, nil
}

func classification(labels []hubLabel) *datamodel.ClassificationPrediction {
	classes := make([]datamodel.ClassInfo, 0, len(labels))
	for _, l := range labels {
		classes = append(classes, datamodel.ClassInfo{ClassName: l.Label, Confidence: l.Score})
	}
	return &datamodel.ClassificationPrediction{Classes: classes}
}

func runSentiment(ctx context.Context, b *hfBase, in Input) (any, error) {
	var raw json.RawMessage
	if err := b.hub.Infer(ctx, b.model, b.revision, in.TextIn, map[string]any{"top_k": nil}, &raw); err != nil {
		return nil, err
	}
	labels, err := decodeLabels(raw)
	if err != nil {
		return nil, err
	}
	return classification(labels), nil
}

func runSummarization(ctx context.Context, b *hfBase, in Input) (any, error) {
	var out []struct {
		SummaryText string `json:"summary_text"`
	}
	if err := b.hub.Infer(ctx, b.model, b.revision, in.TextIn, nil, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return &datamodel.Text{}, nil
	}
	return &datamodel.Text{Text: out[0].SummaryText}, nil
}

type generated struct {
	GeneratedText string `json:"generated_text"`
}

// decodeGenerated accepts a single generation or a list of them
func decodeGenerated(raw json.RawMessage) (string, error) {
	var list []generated
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) == 0 {
			return "", nil
		}
		return list[len(list)-1].GeneratedText, nil
	}

	var one generated
	if err := json.Unmarshal(raw, &one); err != nil {
		return "", errors.Wrap(err, "unexpected generation output")
	}
	return one.GeneratedText, nil
}

func runTextGeneration(ctx context.Context, b *hfBase, in Input) (any, error) {
	var raw json.RawMessage
	if err := b.hub.Infer(ctx, b.model, b.revision, in.TextIn, nil, &raw); err != nil {
		return nil, err
	}
	text, err := decodeGenerated(raw)
	if err != nil {
		return nil, err
	}
	return &datamodel.Text{Text: text}, nil
}

// runConversational starts a new conversation for each call and returns
// the last generated response.
func runConversational(ctx context.Context, b *hfBase, in Input) (any, error) {
	var raw json.RawMessage
	inputs := map[string]any{"text": in.TextIn}
	if err := b.hub.Infer(ctx, b.model, b.revision, inputs, nil, &raw); err != nil {
		return nil, err
	}
	text, err := decodeGenerated(raw)
	if err != nil {
		return nil, err
	}
	return &datamodel.Text{Text: text}, nil
}
