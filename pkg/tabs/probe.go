package tabs

import (
	"context"
	"encoding/base64"
	"image"
	"image/color"

	"github.com/caikit/caikit-huggingface-demo/pkg/binder"
	"github.com/caikit/caikit-huggingface-demo/pkg/datamodel"
)

const probeText = "Hello world"

func probeImage() string {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	img.Set(4, 4, color.Black)
	b, _ := encodePNG(img)
	return base64.StdEncoding.EncodeToString(b)
}

func probeArgs(task datamodel.TaskID) map[string]any {
	switch task.Input() {
	case datamodel.SentencesInput:
		return map[string]any{"sentences": []string{probeText, probeText}}
	case datamodel.ImageInput:
		return map[string]any{"encoded_bytes_or_url": probeImage()}
	default:
		return map[string]any{"text_in": probeText}
	}
}

// Probe calls a freshly bound task once on its first model so that tasks
// whose models cannot answer are left out.
func Probe(ctx context.Context, b binder.TaskBinding) error {
	if len(b.Models) == 0 {
		return nil
	}
	_, err := b.Invoke(ctx, b.Models[0], probeArgs(b.Task))
	return err
}
