package datamodel

// JSON names mirror the proto field names of the runtime data model so that
// records convert to and from dynamic messages through protojson.

// ClassInfo is one predicted class with its confidence
type ClassInfo struct {
	ClassName  string  `json:"class_name"`
	Confidence float64 `json:"confidence"`
}

// ClassificationPrediction is the result of sentiment and image classification
type ClassificationPrediction struct {
	Classes []ClassInfo `json:"classes"`
}

// Text is the result of the text to text tasks
type Text struct {
	Text string `json:"text"`
}

// EmbeddingsPair pairs an input index with its output vector
type EmbeddingsPair struct {
	Input  int32     `json:"input"`
	Output []float64 `json:"output"`
}

// EmbeddingsResult is the result of embeddings and sentence similarity
type EmbeddingsResult struct {
	Output []EmbeddingsPair `json:"output"`
}

// BoundingBox is in pixel coordinates of the input image
type BoundingBox struct {
	Xmin int32 `json:"xmin"`
	Ymin int32 `json:"ymin"`
	Xmax int32 `json:"xmax"`
	Ymax int32 `json:"ymax"`
}

// DetectedObject is one object found by object detection
type DetectedObject struct {
	Label string      `json:"label"`
	Score float64     `json:"score"`
	Box   BoundingBox `json:"box"`
}

// ObjectDetectionResult is the result of object detection
type ObjectDetectionResult struct {
	Objects []DetectedObject `json:"objects"`
}

// Mask is one segment; Mask holds a base64 encoded PNG
type Mask struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
	Mask  string  `json:"mask"`
}

// ImageSegmentationResult is the result of image segmentation
type ImageSegmentationResult struct {
	Objects []Mask `json:"objects"`
}
