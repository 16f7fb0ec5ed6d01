package module

import (
	"context"

	"github.com/caikit/caikit-huggingface-demo/pkg/datamodel"
)

func runImageClassification(ctx context.Context, b *hfBase, in Input) (any, error) {
	img, err := resolveImage(ctx, b.hub, in.EncodedBytesOrURL)
	if err != nil {
		return nil, err
	}

	var labels []hubLabel
	if err := b.hub.InferBinary(ctx, b.model, b.revision, img, &labels); err != nil {
		return nil, err
	}
	return classification(labels), nil
}

func runObjectDetection(ctx context.Context, b *hfBase, in Input) (any, error) {
	img, err := resolveImage(ctx, b.hub, in.EncodedBytesOrURL)
	if err != nil {
		return nil, err
	}

	var found []struct {
		Label string  `json:"label"`
		Score float64 `json:"score"`
		Box   struct {
			XMin int32 `json:"xmin"`
			YMin int32 `json:"ymin"`
			XMax int32 `json:"xmax"`
			YMax int32 `json:"ymax"`
		} `json:"box"`
	}
	if err := b.hub.InferBinary(ctx, b.model, b.revision, img, &found); err != nil {
		return nil, err
	}

	result := &datamodel.ObjectDetectionResult{Objects: []datamodel.DetectedObject{}}
	for _, f := range found {
		if f.Score < scoreThreshold {
			continue
		}
		result.Objects = append(result.Objects, datamodel.DetectedObject{
			Label: f.Label,
			Score: f.Score,
			Box: datamodel.BoundingBox{
				Xmin: f.Box.XMin,
				Ymin: f.Box.YMin,
				Xmax: f.Box.XMax,
				Ymax: f.Box.YMax,
			},
		})
	}
	return result, nil
}

// runImageSegmentation keeps the masks as the base64 PNGs the hub returns.
// Semantic segmentation models report no score; those masks are kept.
func runImageSegmentation(ctx context.Context, b *hfBase, in Input) (any, error) {
	img, err := resolveImage(ctx, b.hub, in.EncodedBytesOrURL)
	if err != nil {
		return nil, err
	}

	var found []struct {
		Label string   `json:"label"`
		Score *float64 `json:"score"`
		Mask  string   `json:"mask"`
	}
	if err := b.hub.InferBinary(ctx, b.model, b.revision, img, &found); err != nil {
		return nil, err
	}

	result := &datamodel.ImageSegmentationResult{Objects: []datamodel.Mask{}}
	for _, f := range found {
		score := 1.0
		if f.Score != nil {
			score = *f.Score
		}
		if score < scoreThreshold {
			continue
		}
		result.Objects = append(result.Objects, datamodel.Mask{Label: f.Label, Score: score, Mask: f.Mask})
	}
	return result, nil
}
