package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/caikit/caikit-huggingface-demo/pkg/datamodel"
	"github.com/caikit/caikit-huggingface-demo/pkg/logger"
)

// ModelManager reports the model instances currently loaded by a runtime as
// model id -> module id.
type ModelManager interface {
	LoadedModels(ctx context.Context) (map[datamodel.ModelID]string, error)
}

// ModuleRegistry is a snapshot of the models available per task. It is not
// modified after construction and can be shared freely.
type ModuleRegistry struct {
	models map[datamodel.TaskID][]datamodel.ModelID
}

// New builds a registry from task -> model ids. Duplicates are dropped and
// each model list is sorted.
func New(models map[datamodel.TaskID][]datamodel.ModelID) *ModuleRegistry {
	r := &ModuleRegistry{models: make(map[datamodel.TaskID][]datamodel.ModelID, len(models))}
	for task, ids := range models {
		seen := make(map[datamodel.ModelID]struct{}, len(ids))
		uniq := make([]datamodel.ModelID, 0, len(ids))
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			uniq = append(uniq, id)
		}
		if len(uniq) == 0 {
			continue
		}
		sort.Slice(uniq, func(i, j int) bool { return uniq[i] < uniq[j] })
		r.models[task] = uniq
	}
	return r
}

// Models returns the model ids available for task, or nil
func (r *ModuleRegistry) Models(task datamodel.TaskID) []datamodel.ModelID {
	if r == nil {
		return nil
	}
	ids := r.models[task]
	if len(ids) == 0 {
		return nil
	}
	out := make([]datamodel.ModelID, len(ids))
	copy(out, ids)
	return out
}

// Tasks returns the tasks having at least one model, in declaration order
func (r *ModuleRegistry) Tasks() []datamodel.TaskID {
	if r == nil {
		return nil
	}
	var tasks []datamodel.TaskID
	for _, task := range datamodel.Tasks {
		if len(r.models[task]) > 0 {
			tasks = append(tasks, task)
		}
	}
	return tasks
}

// Len is the number of tasks with models
func (r *ModuleRegistry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.models)
}

// Snapshot uses the live strategy when mm is set and the offline scan of dir
// otherwise.
func Snapshot(ctx context.Context, mm ModelManager, dir string) (*ModuleRegistry, error) {
	if mm != nil {
		return FromModelManager(ctx, mm)
	}
	return FromLocalDir(ctx, dir), nil
}

// FromModelManager groups the loaded model instances by task. Instances of
// modules outside the task table are ignored.
func FromModelManager(ctx context.Context, mm ModelManager) (*ModuleRegistry, error) {
	logger, _ := logger.GetZapLogger(ctx)

	loaded, err := mm.LoadedModels(ctx)
	if err != nil {
		return nil, err
	}

	grouped := map[datamodel.TaskID][]datamodel.ModelID{}
	for modelID, moduleID := range loaded {
		task, ok := datamodel.TaskForModule(moduleID)
		if !ok {
			logger.Debug("ignoring loaded model of unknown module",
				zap.String("model_id", string(modelID)), zap.String("module_id", moduleID))
			continue
		}
		grouped[task] = append(grouped[task], modelID)
	}

	return New(grouped), nil
}

// FromLocalDir builds the registry from the model configs stored under dir
// without loading any model. Each entry name is used as the model id.
// Entries that are not usable model directories are skipped.
func FromLocalDir(ctx context.Context, dir string) *ModuleRegistry {
	logger, _ := logger.GetZapLogger(ctx)

	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Debug(fmt.Sprintf("local models dir %s not readable: %v", dir, err))
		return New(nil)
	}

	grouped := map[datamodel.TaskID][]datamodel.ModelID{}
	for _, entry := range entries {
		cfg, err := datamodel.LoadModuleConfig(filepath.Join(dir, entry.Name()))
		if err != nil {
			logger.Debug("skipping local model entry", zap.String("entry", entry.Name()), zap.Error(err))
			continue
		}
		task, err := cfg.Task()
		if err != nil {
			logger.Debug("skipping local model entry", zap.String("entry", entry.Name()), zap.Error(err))
			continue
		}
		grouped[task] = append(grouped[task], datamodel.ModelID(entry.Name()))
	}

	return New(grouped)
}
