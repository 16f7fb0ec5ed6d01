package datamodel

import (
	"strings"

	"github.com/gofrs/uuid"
)

// TaskID names a unit of inference capability, e.g. "Sentiment"
type TaskID string

// ModelID identifies one loaded model instance serving a task
type ModelID string

// Known tasks
const (
	Conversational      TaskID = "Conversational"
	TextGeneration      TaskID = "TextGeneration"
	Summarization       TaskID = "Summarization"
	Sentiment           TaskID = "Sentiment"
	SentenceSimilarity  TaskID = "SentenceSimilarity"
	Embeddings          TaskID = "Embeddings"
	ImageClassification TaskID = "ImageClassification"
	ObjectDetection     TaskID = "ObjectDetection"
	ImageSegmentation   TaskID = "ImageSegmentation"
)

// Tasks lists every known task in tab declaration order.
var Tasks = []TaskID{
	Conversational,
	TextGeneration,
	Summarization,
	Sentiment,
	SentenceSimilarity,
	Embeddings,
	ImageClassification,
	ObjectDetection,
	ImageSegmentation,
}

// InputKind is the shape of a task request
type InputKind int

const (
	// TextInput requests carry a single `text_in` string
	TextInput InputKind = iota
	// SentencesInput requests carry repeated `sentences`
	SentencesInput
	// ImageInput requests carry `encoded_bytes_or_url`
	ImageInput
)

// OutputKind is the shape of a task response
type OutputKind int

const (
	// ClassificationOutput responses are ClassificationPrediction
	ClassificationOutput OutputKind = iota
	// TextOutput responses are Text
	TextOutput
	// EmbeddingsOutput responses are EmbeddingsResult
	EmbeddingsOutput
	// DetectionOutput responses are ObjectDetectionResult
	DetectionOutput
	// SegmentationOutput responses are ImageSegmentationResult
	SegmentationOutput
)

const (
	taskSuffix    = "Task"
	predictSuffix = "Predict"
	requestSuffix = "Request"
)

type taskInfo struct {
	moduleID   uuid.UUID
	moduleName string
	input      InputKind
	output     OutputKind
}

// taskTable is the single source of the stable module identifiers. It is
// never written after package initialization.
var taskTable = map[TaskID]taskInfo{
	Conversational:      {uuid.Must(uuid.FromString("BC008C71-A272-4858-9D43-7297B35ABAC4")), "conversational", TextInput, TextOutput},
	TextGeneration:      {uuid.Must(uuid.FromString("9E42606B-34A8-4D4C-9B6C-6F66DAD8EC5A")), "text_generation", TextInput, TextOutput},
	Summarization:       {uuid.Must(uuid.FromString("866DB835-F2EA-4AD1-A57E-E2707A293EB9")), "summarization", TextInput, TextOutput},
	Sentiment:           {uuid.Must(uuid.FromString("FADC770C-25C8-4685-A176-51FF67B382C1")), "sentiment-analysis", TextInput, ClassificationOutput},
	SentenceSimilarity:  {uuid.Must(uuid.FromString("F05A1F4B-1C59-4B9A-8A4E-3C3B4E1C2D77")), "sentence-similarity", SentencesInput, EmbeddingsOutput},
	Embeddings:          {uuid.Must(uuid.FromString("01A9FC92-EF27-4AE7-8D95-E2DC488302D4")), "embeddings", TextInput, EmbeddingsOutput},
	ImageClassification: {uuid.Must(uuid.FromString("D7B3B724-147B-41C1-A41E-A38F9D00F905")), "image_classification", ImageInput, ClassificationOutput},
	ObjectDetection:     {uuid.Must(uuid.FromString("D4C4B6CF-E0C3-4B3F-A325-5071FB126773")), "object_detection", ImageInput, DetectionOutput},
	ImageSegmentation:   {uuid.Must(uuid.FromString("D44941F7-6967-45ED-823B-C1070C9257F9")), "image_segmentation", ImageInput, SegmentationOutput},
}

// IsValid reports whether t is one of the known tasks
func (t TaskID) IsValid() bool {
	_, ok := taskTable[t]
	return ok
}

// MethodName is the invocation method the runtime exposes for t
func (t TaskID) MethodName() string {
	return string(t) + taskSuffix + predictSuffix
}

// RequestTypeName is the unqualified request message name for t
func (t TaskID) RequestTypeName() string {
	return string(t) + taskSuffix + requestSuffix
}

// ModuleID returns the stable module identifier in the upper case form
// persisted in model configs.
func (t TaskID) ModuleID() string {
	info, ok := taskTable[t]
	if !ok {
		return ""
	}
	return strings.ToUpper(info.moduleID.String())
}

// ModuleName is the module name recorded in saved model configs
func (t TaskID) ModuleName() string {
	return taskTable[t].moduleName
}

// Input returns the request shape of t
func (t TaskID) Input() InputKind {
	return taskTable[t].input
}

// Output returns the response shape of t
func (t TaskID) Output() OutputKind {
	return taskTable[t].output
}

// TaskForModule maps a module identifier, in any letter case, back to its task.
func TaskForModule(moduleID string) (TaskID, bool) {
	id, err := uuid.FromString(strings.TrimSpace(moduleID))
	if err != nil {
		return "", false
	}
	for task, info := range taskTable {
		if info.moduleID == id {
			return task, true
		}
	}
	return "", false
}
