package tabs

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	"golang.org/x/image/colornames"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/dynamicpb"

	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/caikit/caikit-huggingface-demo/pkg/datamodel"
)

const (
	boxWidth     = 5
	labelPadding = 5
)

// ErrNotAnImage is returned for uploads that do not decode as an image
var ErrNotAnImage = status.New(codes.InvalidArgument, "input is not a supported image").Err()

func decodeImage(b []byte) (image.Image, error) {
	if mime := strings.Split(mimetype.Detect(b).String(), ";")[0]; !strings.HasPrefix(mime, "image/") {
		return nil, ErrNotAnImage
	}
	img, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, ErrNotAnImage
	}
	return img, nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func pngDataURL(img image.Image) (string, error) {
	b, err := encodePNG(img)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(b), nil
}

// imageArgs sends uploads as base64 PNG whatever their original format
func imageArgs(in Input) (any, bool, error) {
	if in.ImageURL != "" {
		return map[string]any{"encoded_bytes_or_url": in.ImageURL}, true, nil
	}
	if len(in.Image) == 0 {
		return nil, false, nil
	}

	img, err := decodeImage(in.Image)
	if err != nil {
		return nil, false, err
	}
	b, err := encodePNG(img)
	if err != nil {
		return nil, false, err
	}
	return map[string]any{"encoded_bytes_or_url": base64.StdEncoding.EncodeToString(b)}, true, nil
}

// numbered names repeated labels "cat", "cat-2", "cat-3" in the given order
func numbered(labels []string) []string {
	counter := map[string]int{}
	keys := make([]string, len(labels))
	for i, l := range labels {
		counter[l]++
		if counter[l] == 1 {
			keys[i] = l
		} else {
			keys[i] = fmt.Sprintf("%s-%d", l, counter[l])
		}
	}
	return keys
}

// labelColor picks a stable named color for a class label
func labelColor(label string) color.RGBA {
	h := fnv.New32a()
	_, _ = h.Write([]byte(label))
	return colornames.Map[colornames.Names[h.Sum32()%uint32(len(colornames.Names))]]
}

func toRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

func strokeRect(dst draw.Image, r image.Rectangle, c color.Color, width int) {
	src := image.NewUniform(c)
	for _, edge := range []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+width),
		image.Rect(r.Min.X, r.Max.Y-width, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+width, r.Max.Y),
		image.Rect(r.Max.X-width, r.Min.Y, r.Max.X, r.Max.Y),
	} {
		draw.Draw(dst, edge.Intersect(dst.Bounds()), src, image.Point{}, draw.Over)
	}
}

func drawLabel(dst draw.Image, at image.Point, text string, background color.Color) {
	face := basicfont.Face7x13
	d := &font.Drawer{Dst: dst, Src: image.White, Face: face}

	width := d.MeasureString(text).Ceil()
	height := face.Metrics().Height.Ceil()
	bg := image.Rect(at.X, at.Y, at.X+width+2*labelPadding, at.Y+height+2*labelPadding)
	draw.Draw(dst, bg.Intersect(dst.Bounds()), image.NewUniform(background), image.Point{}, draw.Over)

	d.Dot = fixed.P(at.X+labelPadding, at.Y+labelPadding+face.Metrics().Ascent.Ceil())
	d.DrawString(text)
}

// interpretDetection numbers objects in descending score order and draws
// their boxes on the uploaded image.
func interpretDetection(resp *dynamicpb.Message, in Input) (*Output, error) {
	var out datamodel.ObjectDetectionResult
	if err := datamodel.FromMessage(resp, &out); err != nil {
		return nil, err
	}

	objects := out.Objects
	sort.SliceStable(objects, func(i, j int) bool { return objects[i].Score > objects[j].Score })

	names := make([]string, len(objects))
	for i, o := range objects {
		names[i] = o.Label
	}
	keys := numbered(names)

	result := &Output{Labels: make(map[string]float64, len(objects))}
	for i, o := range objects {
		result.Labels[keys[i]] = o.Score
	}

	if len(in.Image) == 0 {
		return result, nil
	}
	img, err := decodeImage(in.Image)
	if err != nil {
		return nil, err
	}
	canvas := toRGBA(img)
	for i, o := range objects {
		c := labelColor(o.Label)
		box := image.Rect(int(o.Box.Xmin), int(o.Box.Ymin), int(o.Box.Xmax), int(o.Box.Ymax))
		strokeRect(canvas, box, c, boxWidth)
		drawLabel(canvas, box.Min, keys[i], c)
	}

	if result.Image, err = pngDataURL(canvas); err != nil {
		return nil, err
	}
	return result, nil
}

// maskAlpha scales a mask to size and reads its gray levels as alpha
func maskAlpha(encoded string, size image.Rectangle) (*image.Alpha, error) {
	b, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Wrap(err, "invalid mask encoding")
	}
	mask, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, errors.Wrap(err, "invalid mask image")
	}

	gray := image.NewGray(size)
	if mask.Bounds().Size() == size.Size() {
		draw.Draw(gray, size, mask, mask.Bounds().Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(gray, size, mask, mask.Bounds(), draw.Src, nil)
	}
	return &image.Alpha{Pix: gray.Pix, Stride: gray.Stride, Rect: gray.Rect}, nil
}

// interpretSegmentation returns one copy of the uploaded image per segment
// with everything outside the mask transparent.
func interpretSegmentation(resp *dynamicpb.Message, in Input) (*Output, error) {
	var out datamodel.ImageSegmentationResult
	if err := datamodel.FromMessage(resp, &out); err != nil {
		return nil, err
	}

	masks := out.Objects
	sort.SliceStable(masks, func(i, j int) bool { return masks[i].Score > masks[j].Score })

	names := make([]string, len(masks))
	for i, m := range masks {
		names[i] = m.Label
	}
	keys := numbered(names)

	result := &Output{Labels: make(map[string]float64, len(masks))}
	for i, m := range masks {
		result.Labels[keys[i]] = m.Score
	}

	if len(in.Image) == 0 {
		return result, nil
	}
	img, err := decodeImage(in.Image)
	if err != nil {
		return nil, err
	}
	base := toRGBA(img)

	result.Gallery = make([]GalleryItem, 0, len(masks))
	for i, m := range masks {
		alpha, err := maskAlpha(m.Mask, base.Bounds())
		if err != nil {
			return nil, err
		}

		masked := image.NewNRGBA(base.Bounds())
		draw.DrawMask(masked, masked.Bounds(), base, image.Point{}, alpha, image.Point{}, draw.Src)

		url, err := pngDataURL(masked)
		if err != nil {
			return nil, err
		}
		result.Gallery = append(result.Gallery, GalleryItem{Label: keys[i], Image: url})
	}
	return result, nil
}
