package runtime

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/caikit/caikit-huggingface-demo/pkg/datamodel"
	"github.com/caikit/caikit-huggingface-demo/pkg/logger"
	"github.com/caikit/caikit-huggingface-demo/pkg/module"
	"github.com/caikit/caikit-huggingface-demo/pkg/registry"
)

// ModelManager keeps the loaded models of the runtime. When a redis client
// is set, every change is published for frontends running elsewhere.
type ModelManager struct {
	mu     sync.RWMutex
	models map[datamodel.ModelID]module.Module
	redis  *redis.Client
}

// NewModelManager returns an empty manager; rc may be nil
func NewModelManager(rc *redis.Client) *ModelManager {
	return &ModelManager{
		models: map[datamodel.ModelID]module.Module{},
		redis:  rc,
	}
}

// LoadLocalModels loads every model directory under dir, named after the
// directory. Entries that do not load are logged and skipped.
func (m *ModelManager) LoadLocalModels(ctx context.Context, dir string, hub module.Hub) error {
	logger, _ := logger.GetZapLogger(ctx)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn("local models directory does not exist", zap.String("dir", dir))
			return m.publish(ctx)
		}
		return err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	m.mu.Lock()
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		mod, err := module.Load(filepath.Join(dir, e.Name()), hub)
		if err != nil {
			logger.Warn("skipping model", zap.String("model_id", e.Name()), zap.Error(err))
			continue
		}
		m.models[datamodel.ModelID(e.Name())] = mod
		logger.Info("loaded model", zap.String("model_id", e.Name()), zap.String("task", string(mod.Task())))
	}
	m.mu.Unlock()

	return m.publish(ctx)
}

// Add registers mod under id, replacing any model with the same id
func (m *ModelManager) Add(ctx context.Context, id datamodel.ModelID, mod module.Module) error {
	m.mu.Lock()
	m.models[id] = mod
	m.mu.Unlock()
	return m.publish(ctx)
}

// Get returns the loaded model id
func (m *ModelManager) Get(id datamodel.ModelID) (module.Module, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mod, ok := m.models[id]
	return mod, ok
}

// LoadedModels maps each loaded model to the id of its module
func (m *ModelManager) LoadedModels(context.Context) (map[datamodel.ModelID]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	loaded := make(map[datamodel.ModelID]string, len(m.models))
	for id, mod := range m.models {
		loaded[id] = mod.Task().ModuleID()
	}
	return loaded, nil
}

func (m *ModelManager) publish(ctx context.Context) error {
	if m.redis == nil {
		return nil
	}
	loaded, _ := m.LoadedModels(ctx)
	return registry.PublishLoadedModels(ctx, m.redis, loaded)
}
