package registry_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caikit/caikit-huggingface-demo/pkg/datamodel"
	"github.com/caikit/caikit-huggingface-demo/pkg/registry"
)

type staticModelManager struct {
	loaded map[datamodel.ModelID]string
	err    error
}

func (s staticModelManager) LoadedModels(context.Context) (map[datamodel.ModelID]string, error) {
	return s.loaded, s.err
}

func writeModelConfig(t *testing.T, dir string, name string, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, name), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name, "config.yml"), []byte(content), 0o644))
}

func TestFromLocalDir_SkipsCorruptEntries(t *testing.T) {
	dir := t.TempDir()
	writeModelConfig(t, dir, "m1", "module_id: "+datamodel.Sentiment.ModuleID()+"\nhf_model: distilbert-base-uncased-finetuned-sst-2-english\n")
	writeModelConfig(t, dir, "broken", "module_id: [oops")

	r := registry.FromLocalDir(context.Background(), dir)

	assert.Equal(t, []datamodel.TaskID{datamodel.Sentiment}, r.Tasks())
	assert.Equal(t, []datamodel.ModelID{"m1"}, r.Models(datamodel.Sentiment))
	assert.Equal(t, 1, r.Len())
}

func TestFromLocalDir_IgnoresNonModelEntries(t *testing.T) {
	dir := t.TempDir()
	writeModelConfig(t, dir, "summ", "module_id: "+datamodel.Summarization.ModuleID()+"\n")
	writeModelConfig(t, dir, "stranger", "module_id: 11111111-2222-3333-4444-555555555555\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# models"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "empty"), 0o755))

	r := registry.FromLocalDir(context.Background(), dir)

	assert.Equal(t, []datamodel.TaskID{datamodel.Summarization}, r.Tasks())
	assert.Equal(t, []datamodel.ModelID{"summ"}, r.Models(datamodel.Summarization))
}

func TestFromLocalDir_MissingDir(t *testing.T) {
	r := registry.FromLocalDir(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.Equal(t, 0, r.Len())
	assert.Nil(t, r.Models(datamodel.Sentiment))
}

func TestFromModelManager_GroupsByTask(t *testing.T) {
	mm := staticModelManager{loaded: map[datamodel.ModelID]string{
		"b-sentiment": datamodel.Sentiment.ModuleID(),
		"a-sentiment": datamodel.Sentiment.ModuleID(),
		"detr":        datamodel.ObjectDetection.ModuleID(),
		"other":       "not-a-module",
	}}

	r, err := registry.Snapshot(context.Background(), mm, "")
	require.NoError(t, err)

	assert.Equal(t, []datamodel.TaskID{datamodel.Sentiment, datamodel.ObjectDetection}, r.Tasks())
	assert.Equal(t, []datamodel.ModelID{"a-sentiment", "b-sentiment"}, r.Models(datamodel.Sentiment))
	assert.Equal(t, []datamodel.ModelID{"detr"}, r.Models(datamodel.ObjectDetection))
}

func TestFromModelManager_Error(t *testing.T) {
	_, err := registry.FromModelManager(context.Background(), staticModelManager{err: errors.New("down")})
	assert.EqualError(t, err, "down")
}

func TestSnapshot_OfflineWhenNoManager(t *testing.T) {
	dir := t.TempDir()
	writeModelConfig(t, dir, "gpt", "module_id: "+datamodel.TextGeneration.ModuleID()+"\n")

	r, err := registry.Snapshot(context.Background(), nil, dir)
	require.NoError(t, err)
	assert.Equal(t, []datamodel.ModelID{"gpt"}, r.Models(datamodel.TextGeneration))
}

func TestNew_IsASnapshot(t *testing.T) {
	src := map[datamodel.TaskID][]datamodel.ModelID{
		datamodel.Embeddings: {"z", "a", "z"},
		datamodel.Sentiment:  {},
	}
	r := registry.New(src)
	src[datamodel.Embeddings][0] = "mutated"

	models := r.Models(datamodel.Embeddings)
	assert.Equal(t, []datamodel.ModelID{"a", "z"}, models)
	models[0] = "mutated"
	assert.Equal(t, []datamodel.ModelID{"a", "z"}, r.Models(datamodel.Embeddings))
	assert.Nil(t, r.Models(datamodel.Sentiment))
	assert.Equal(t, 1, r.Len())
}

func TestRedisModelManager(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	rc := redis.NewClient(&redis.Options{Addr: s.Addr()})
	ctx := context.Background()

	require.NoError(t, registry.PublishLoadedModels(ctx, rc, map[datamodel.ModelID]string{
		"old": datamodel.Embeddings.ModuleID(),
	}))
	require.NoError(t, registry.PublishLoadedModels(ctx, rc, map[datamodel.ModelID]string{
		"m1": datamodel.Sentiment.ModuleID(),
		"m2": datamodel.ImageSegmentation.ModuleID(),
	}))

	r, err := registry.Snapshot(ctx, registry.NewRedisModelManager(rc), "")
	require.NoError(t, err)

	assert.Equal(t, []datamodel.TaskID{datamodel.Sentiment, datamodel.ImageSegmentation}, r.Tasks())
	assert.Equal(t, []datamodel.ModelID{"m1"}, r.Models(datamodel.Sentiment))
	assert.Nil(t, r.Models(datamodel.Embeddings))

	require.NoError(t, registry.PublishLoadedModels(ctx, rc, nil))
	r, err = registry.Snapshot(ctx, registry.NewRedisModelManager(rc), "")
	require.NoError(t, err)
	assert.Equal(t, 0, r.Len())
}
