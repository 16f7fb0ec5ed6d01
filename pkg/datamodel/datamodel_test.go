package datamodel

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/frankban/quicktest"
)

func TestDatamodel_NamingConvention(t *testing.T) {
	c := quicktest.New(t)

	testCases := []struct {
		task    TaskID
		method  string
		request string
	}{
		{Sentiment, "SentimentTaskPredict", "SentimentTaskRequest"},
		{ObjectDetection, "ObjectDetectionTaskPredict", "ObjectDetectionTaskRequest"},
		{SentenceSimilarity, "SentenceSimilarityTaskPredict", "SentenceSimilarityTaskRequest"},
	}

	for _, tc := range testCases {
		c.Check(tc.task.MethodName(), quicktest.Equals, tc.method)
		c.Check(tc.task.RequestTypeName(), quicktest.Equals, tc.request)
	}
}

func TestDatamodel_ModuleIDs(t *testing.T) {
	c := quicktest.New(t)

	seen := map[string]TaskID{}
	for _, task := range Tasks {
		id := task.ModuleID()
		c.Assert(id, quicktest.Not(quicktest.Equals), "")
		_, dup := seen[id]
		c.Assert(dup, quicktest.IsFalse, quicktest.Commentf("duplicate module id for %s", task))
		seen[id] = task

		back, ok := TaskForModule(id)
		c.Assert(ok, quicktest.IsTrue)
		c.Check(back, quicktest.Equals, task)
	}

	task, ok := TaskForModule("fadc770c-25c8-4685-a176-51ff67b382c1")
	c.Check(ok, quicktest.IsTrue)
	c.Check(task, quicktest.Equals, Sentiment)

	_, ok = TaskForModule("not-a-uuid")
	c.Check(ok, quicktest.IsFalse)

	_, ok = TaskForModule("00000000-0000-0000-0000-000000000000")
	c.Check(ok, quicktest.IsFalse)

	c.Check(TaskID("Unknown").IsValid(), quicktest.IsFalse)
	c.Check(TaskID("Unknown").ModuleID(), quicktest.Equals, "")
}

func TestDatamodel_ModuleConfig(t *testing.T) {
	c := quicktest.New(t)
	dir := t.TempDir()

	cfg := &ModuleConfig{
		ModuleID:   Summarization.ModuleID(),
		Name:       Summarization.ModuleName(),
		Version:    "0.0.0",
		HFModel:    "sshleifer/distilbart-cnn-12-6",
		HFRevision: "a4f8f3e",
	}
	c.Assert(cfg.Save(filepath.Join(dir, "m1")), quicktest.IsNil)

	loaded, err := LoadModuleConfig(filepath.Join(dir, "m1"))
	c.Assert(err, quicktest.IsNil)
	c.Check(loaded, quicktest.DeepEquals, cfg)

	task, err := loaded.Task()
	c.Assert(err, quicktest.IsNil)
	c.Check(task, quicktest.Equals, Summarization)
}

func TestDatamodel_ModuleConfigRevision(t *testing.T) {
	c := quicktest.New(t)

	c.Check((&ModuleConfig{HFModelRevision: "old"}).Revision(), quicktest.Equals, "old")
	c.Check((&ModuleConfig{HFRevision: "new", HFModelRevision: "old"}).Revision(), quicktest.Equals, "new")
}

func TestDatamodel_LoadModuleConfigErrors(t *testing.T) {
	c := quicktest.New(t)
	dir := t.TempDir()

	_, err := LoadModuleConfig(filepath.Join(dir, "missing"))
	c.Check(err, quicktest.IsNotNil)

	file := filepath.Join(dir, "file")
	c.Assert(os.WriteFile(file, []byte("x"), 0o644), quicktest.IsNil)
	_, err = LoadModuleConfig(file)
	c.Check(err, quicktest.ErrorMatches, ".*not a model directory")

	corrupt := filepath.Join(dir, "corrupt")
	c.Assert(os.MkdirAll(corrupt, 0o755), quicktest.IsNil)
	c.Assert(os.WriteFile(filepath.Join(corrupt, "config.yml"), []byte("module_id: [unclosed"), 0o644), quicktest.IsNil)
	_, err = LoadModuleConfig(corrupt)
	c.Check(err, quicktest.IsNotNil)

	noID := filepath.Join(dir, "noid")
	c.Assert(os.MkdirAll(noID, 0o755), quicktest.IsNil)
	c.Assert(os.WriteFile(filepath.Join(noID, "config.yml"), []byte("name: x\n"), 0o644), quicktest.IsNil)
	_, err = LoadModuleConfig(noID)
	c.Check(err, quicktest.ErrorMatches, ".*has no module_id")
}

func TestDatamodel_ValidateInputs(t *testing.T) {
	c := quicktest.New(t)

	testCases := []struct {
		kind  InputKind
		input any
		valid bool
	}{
		{TextInput, map[string]any{"text_in": "hello"}, true},
		{TextInput, map[string]any{}, false},
		{TextInput, map[string]any{"text_in": "hello", "extra": 1.0}, false},
		{SentencesInput, map[string]any{"sentences": []any{"a", "b"}}, true},
		{SentencesInput, map[string]any{"sentences": []any{}}, false},
		{ImageInput, map[string]any{"encoded_bytes_or_url": "http://x/y.png"}, true},
		{ImageInput, map[string]any{"encoded_bytes_or_url": ""}, false},
	}

	for _, tc := range testCases {
		err := ValidateInputs(tc.kind, tc.input)
		if tc.valid {
			c.Check(err, quicktest.IsNil, quicktest.Commentf("%v", tc.input))
		} else {
			c.Check(err, quicktest.IsNotNil, quicktest.Commentf("%v", tc.input))
		}
	}
}
