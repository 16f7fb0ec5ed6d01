// Package tabs turns task bindings into the interactive panels of the
// frontend. Each tab builds the request of its task from user input and
// interprets the response into something a page can show.
package tabs

import (
	"context"
	"encoding/json"

	"github.com/iancoleman/strcase"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/caikit/caikit-huggingface-demo/pkg/binder"
	"github.com/caikit/caikit-huggingface-demo/pkg/datamodel"
)

// ErrUnknownModel is returned for a model the tab does not offer
var ErrUnknownModel = status.New(codes.NotFound, "model is not available in this tab").Err()

// Input is what a user can enter in any tab
type Input struct {
	Text      string
	Sentences []string
	// Image holds encoded image bytes; ImageURL is passed to the runtime
	// untouched and no annotated image is produced for it.
	Image    []byte
	ImageURL string
}

// Output is what a tab shows for one interaction. Only the fields of the
// task's widgets are set.
type Output struct {
	Text    *string            `json:"text,omitempty"`
	Labels  map[string]float64 `json:"labels,omitempty"`
	Table   *Table             `json:"table,omitempty"`
	Image   string             `json:"image,omitempty"`
	Gallery []GalleryItem      `json:"gallery,omitempty"`
}

// Table is a data frame with one value per header in each row
type Table struct {
	Headers []string    `json:"headers"`
	Rows    [][]float64 `json:"rows"`
}

// GalleryItem is one captioned image, as a PNG data URL
type GalleryItem struct {
	Label string `json:"label"`
	Image string `json:"image"`
}

// widget is the per-task part of a tab. args returns false when there is
// nothing to send; the tab then shows empty instead of calling.
type widget struct {
	args      func(in Input) (any, bool, error)
	empty     func() *Output
	interpret func(resp *dynamicpb.Message, in Input) (*Output, error)
}

var widgets = map[datamodel.TaskID]widget{
	datamodel.Conversational:      {textArgs, emptyText, interpretText},
	datamodel.TextGeneration:      {textArgs, emptyText, interpretText},
	datamodel.Summarization:       {textArgs, emptyText, interpretText},
	datamodel.Sentiment:           {textArgs, emptyLabels, interpretClassification},
	datamodel.SentenceSimilarity:  {sentencesArgs, emptySimilarity, interpretSimilarity},
	datamodel.Embeddings:          {textArgs, emptyTable, interpretEmbeddings},
	datamodel.ImageClassification: {imageArgs, emptyLabels, interpretClassification},
	datamodel.ObjectDetection:     {imageArgs, emptyLabels, interpretDetection},
	datamodel.ImageSegmentation:   {imageArgs, emptyLabels, interpretSegmentation},
}

var titleCaser = cases.Title(language.English)

// Title turns a task id into a tab title, e.g. "Object Detection"
func Title(task datamodel.TaskID) string {
	return titleCaser.String(strcase.ToDelimited(string(task), ' '))
}

// Tab is one enabled task panel
type Tab struct {
	Task   datamodel.TaskID
	Title  string
	Models []datamodel.ModelID

	invoke binder.InvokeFunc
	widget widget
}

// InputSchema is the JSON schema of the tab's inputs
func (t *Tab) InputSchema() json.RawMessage {
	return datamodel.InputSchema(t.Task.Input())
}

// HasModel reports whether modelID is one of the tab's choices
func (t *Tab) HasModel(modelID datamodel.ModelID) bool {
	for _, m := range t.Models {
		if m == modelID {
			return true
		}
	}
	return false
}

// Predict runs one interaction with the chosen model
func (t *Tab) Predict(ctx context.Context, modelID datamodel.ModelID, in Input) (*Output, error) {
	if !t.HasModel(modelID) {
		return nil, ErrUnknownModel
	}

	args, ok, err := t.widget.args(in)
	if err != nil {
		return nil, err
	}
	if !ok {
		return t.widget.empty(), nil
	}

	resp, err := t.invoke(ctx, modelID, args)
	if err != nil {
		return nil, err
	}
	return t.widget.interpret(resp, in)
}

// Set is the ordered list of rendered tabs
type Set struct {
	tabs   []*Tab
	byTask map[datamodel.TaskID]*Tab
}

// Render builds one tab per binding, keeping the binding order. Bindings
// of tasks without a widget are left out.
func Render(bindings []binder.TaskBinding) *Set {
	s := &Set{tabs: []*Tab{}, byTask: map[datamodel.TaskID]*Tab{}}
	for _, b := range bindings {
		w, ok := widgets[b.Task]
		if !ok {
			continue
		}
		tab := &Tab{
			Task:   b.Task,
			Title:  Title(b.Task),
			Models: b.Models,
			invoke: b.Invoke,
			widget: w,
		}
		s.tabs = append(s.tabs, tab)
		s.byTask[b.Task] = tab
	}
	return s
}

// All returns the tabs in display order
func (s *Set) All() []*Tab {
	return append([]*Tab(nil), s.tabs...)
}

// Get returns the tab of task
func (s *Set) Get(task datamodel.TaskID) (*Tab, bool) {
	t, ok := s.byTask[task]
	return t, ok
}

// Len is the number of tabs
func (s *Set) Len() int {
	return len(s.tabs)
}
