package module

import (
	"context"

	"github.com/pkg/errors"

	"github.com/caikit/caikit-huggingface-demo/pkg/datamodel"
)

const moduleVersion = "0.0.0"

// detection and segmentation results under this score are dropped
const scoreThreshold = 0.5

// Hub is the hosted inference endpoint the modules delegate to
type Hub interface {
	Infer(ctx context.Context, model string, revision string, inputs any, parameters map[string]any, result any) error
	InferBinary(ctx context.Context, model string, revision string, data []byte, result any) error
	Download(ctx context.Context, url string) ([]byte, error)
}

// Input carries the request fields of every task shape
type Input struct {
	TextIn            string   `json:"text_in,omitempty"`
	Sentences         []string `json:"sentences,omitempty"`
	EncodedBytesOrURL string   `json:"encoded_bytes_or_url,omitempty"`
}

// Module is one loaded model serving a task
type Module interface {
	Task() datamodel.TaskID
	// Run returns the task's result record from pkg/datamodel
	Run(ctx context.Context, in Input) (any, error)
	Save(modelDir string) error
}

type runFunc func(ctx context.Context, b *hfBase, in Input) (any, error)

type defaultModel struct {
	model    string
	revision string
}

// modules maps each task to its run function and the hub model used when a
// config does not name one.
var modules = map[datamodel.TaskID]struct {
	run      runFunc
	defaults defaultModel
}{
	datamodel.Conversational:      {runConversational, defaultModel{"microsoft/DialoGPT-small", "4e936e3a11f8e077b31eec8f045499c92c7cf087"}},
	datamodel.TextGeneration:      {runTextGeneration, defaultModel{"rpgz31/tiny-nfl", "4a18ca7"}},
	datamodel.Summarization:       {runSummarization, defaultModel{"JulesBelveze/t5-small-headline-generator", "0db30a2"}},
	datamodel.Sentiment:           {runSentiment, defaultModel{"distilbert-base-uncased-finetuned-sst-2-english", ""}},
	datamodel.SentenceSimilarity:  {runSentenceSimilarity, defaultModel{"sentence-transformers/all-MiniLM-L6-v2", ""}},
	datamodel.Embeddings:          {runEmbeddings, defaultModel{"distilbert-base-uncased", "1c4513b2eedbda136f57676a34eea67aba266e5c"}},
	datamodel.ImageClassification: {runImageClassification, defaultModel{"google/vit-base-patch16-224", "5dca96d"}},
	datamodel.ObjectDetection:     {runObjectDetection, defaultModel{"hustvl/yolos-tiny", "3686e65df0c914833fc8cbeca745a33b374c499b"}},
	datamodel.ImageSegmentation:   {runImageSegmentation, defaultModel{"facebook/detr-resnet-50-panoptic", "fc15262"}},
}

type hfBase struct {
	task     datamodel.TaskID
	model    string
	revision string
	hub      Hub
}

type hfModule struct {
	hfBase
	run runFunc
}

func (m *hfModule) Task() datamodel.TaskID {
	return m.task
}

func (m *hfModule) Run(ctx context.Context, in Input) (any, error) {
	return m.run(ctx, &m.hfBase, in)
}

// Save writes a model config that loads this module again
func (m *hfModule) Save(modelDir string) error {
	cfg := &datamodel.ModuleConfig{
		ModuleID:   m.task.ModuleID(),
		Name:       m.task.ModuleName(),
		Version:    moduleVersion,
		HFModel:    m.model,
		HFRevision: m.revision,
	}
	return cfg.Save(modelDir)
}

// Bootstrap builds a module of task for a hub model name. An empty model
// selects the task's default model and revision.
func Bootstrap(task datamodel.TaskID, model string, revision string, hub Hub) (Module, error) {
	entry, ok := modules[task]
	if !ok {
		return nil, errors.Errorf("no module for task %q", task)
	}
	if model == "" {
		model, revision = entry.defaults.model, entry.defaults.revision
	}
	return &hfModule{
		hfBase: hfBase{task: task, model: model, revision: revision, hub: hub},
		run:    entry.run,
	}, nil
}

// Load builds the module described by the model config in modelDir
func Load(modelDir string, hub Hub) (Module, error) {
	cfg, err := datamodel.LoadModuleConfig(modelDir)
	if err != nil {
		return nil, err
	}
	task, err := cfg.Task()
	if err != nil {
		return nil, err
	}

	revision := cfg.Revision()
	if cfg.HFModel == "" && revision != "" {
		return nil, errors.Errorf("%s pins revision %q without hf_model", modelDir, revision)
	}
	return Bootstrap(task, cfg.HFModel, revision, hub)
}
