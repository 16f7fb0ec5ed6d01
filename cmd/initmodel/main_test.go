package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caikit/caikit-huggingface-demo/pkg/datamodel"
	"github.com/caikit/caikit-huggingface-demo/pkg/registry"
)

func TestInitModels_Defaults(t *testing.T) {
	dir := t.TempDir()

	created, err := initModels(context.Background(), dir, defaultInventory())
	require.NoError(t, err)
	assert.Len(t, created, len(datamodel.Tasks))
	assert.Contains(t, created, "image_classification")

	reg := registry.FromLocalDir(context.Background(), dir)
	for _, task := range datamodel.Tasks {
		assert.Len(t, reg.Models(task), 1, task)
	}

	cfg, err := datamodel.LoadModuleConfig(filepath.Join(dir, "sentiment"))
	require.NoError(t, err)
	assert.Equal(t, "distilbert-base-uncased-finetuned-sst-2-english", cfg.HFModel)

	created, err = initModels(context.Background(), dir, defaultInventory())
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestReadInventory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventory.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- id: tiny
  task: TextGeneration
  hf_model: sshleifer/tiny-gpt2
- id: broken
  task: Translation
`), 0o644))

	inventory, err := readInventory(path)
	require.NoError(t, err)
	require.Len(t, inventory, 2)

	dir := t.TempDir()
	created, err := initModels(context.Background(), dir, inventory)
	assert.Error(t, err)
	assert.Equal(t, []string{"tiny"}, created)

	cfg, err := datamodel.LoadModuleConfig(filepath.Join(dir, "tiny"))
	require.NoError(t, err)
	assert.Equal(t, "sshleifer/tiny-gpt2", cfg.HFModel)
}

func TestInitModels_RejectsUnsafeIDs(t *testing.T) {
	for _, id := range []string{"", ".", "..", "../escape", "nested/model", `win\model`} {
		t.Run(id, func(t *testing.T) {
			dir := t.TempDir()

			created, err := initModels(context.Background(), dir, []ModelConfig{{ID: id, Task: "Sentiment"}})
			assert.Error(t, err)
			assert.Empty(t, created)

			_, err = os.Stat(filepath.Join(dir, "config.yml"))
			assert.True(t, os.IsNotExist(err))
			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}
