package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/iancoleman/strcase"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/caikit/caikit-huggingface-demo/config"
	"github.com/caikit/caikit-huggingface-demo/pkg/datamodel"
	"github.com/caikit/caikit-huggingface-demo/pkg/logger"
	"github.com/caikit/caikit-huggingface-demo/pkg/module"
)

// ModelConfig is one inventory entry
type ModelConfig struct {
	ID         string `yaml:"id"`
	Task       string `yaml:"task"`
	HFModel    string `yaml:"hf_model"`
	HFRevision string `yaml:"hf_revision"`
}

// defaultInventory has one entry per task on the task's default hub model
func defaultInventory() []ModelConfig {
	inventory := make([]ModelConfig, 0, len(datamodel.Tasks))
	for _, task := range datamodel.Tasks {
		inventory = append(inventory, ModelConfig{ID: strcase.ToSnake(string(task)), Task: string(task)})
	}
	return inventory
}

func readInventory(path string) ([]ModelConfig, error) {
	if path == "" {
		return defaultInventory(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var inventory []ModelConfig
	if err := yaml.Unmarshal(b, &inventory); err != nil {
		return nil, errors.Wrapf(err, "inventory %s", path)
	}
	return inventory, nil
}

// validateID accepts ids that name exactly one entry under the models dir
func validateID(id string) error {
	switch {
	case id == "":
		return errors.New("model id must not be empty")
	case id == "." || id == "..", strings.ContainsAny(id, `/\`), filepath.Base(id) != id:
		return errors.Errorf("model id %q is not a plain directory name", id)
	}
	return nil
}

// initModels writes a model directory for every inventory entry that does
// not have one yet and returns the ids it created.
func initModels(ctx context.Context, dir string, inventory []ModelConfig) ([]string, error) {
	logger, _ := logger.GetZapLogger(ctx)

	var created []string
	for _, mc := range inventory {
		if err := validateID(mc.ID); err != nil {
			return created, err
		}
		task := datamodel.TaskID(mc.Task)
		if !task.IsValid() {
			return created, errors.Errorf("model %s: unknown task %q", mc.ID, mc.Task)
		}

		modelDir := filepath.Join(dir, mc.ID)
		if _, err := os.Stat(modelDir); err == nil {
			logger.Info("model already exists", zap.String("model_id", mc.ID))
			continue
		}

		m, err := module.Bootstrap(task, mc.HFModel, mc.HFRevision, nil)
		if err != nil {
			return created, err
		}
		if err := m.Save(modelDir); err != nil {
			return created, err
		}
		logger.Info("model created", zap.String("model_id", mc.ID), zap.String("task", mc.Task))
		created = append(created, mc.ID)
	}
	return created, nil
}

func main() {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	configPath := config.ConfigFlag(fs)
	inventory := fs.String("inventory", "", "YAML list of models to create; defaults to one model per task")
	_ = fs.Parse(os.Args[1:])

	if err := config.Init(*configPath); err != nil {
		log.Fatal(err.Error())
	}

	ctx := context.Background()
	logger, _ := logger.GetZapLogger(ctx)
	defer func() {
		// can't handle the error due to https://github.com/uber-go/zap/issues/880
		_ = logger.Sync()
	}()

	models, err := readInventory(*inventory)
	if err != nil {
		logger.Fatal(err.Error())
	}

	logger.Info("Creating models ...")
	created, err := initModels(ctx, config.Config.Runtime.LocalModelsDir, models)
	if err != nil {
		logger.Fatal(err.Error())
	}
	logger.Info(fmt.Sprintf("%d models created", len(created)))
}
