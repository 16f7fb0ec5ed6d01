package registry

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/caikit/caikit-huggingface-demo/pkg/constant"
	"github.com/caikit/caikit-huggingface-demo/pkg/datamodel"
)

// RedisModelManager reads the loaded models a runtime published into redis.
// It lets a frontend running in another process use the live strategy.
type RedisModelManager struct {
	client *redis.Client
}

// NewRedisModelManager returns a ModelManager backed by rc
func NewRedisModelManager(rc *redis.Client) *RedisModelManager {
	return &RedisModelManager{client: rc}
}

// LoadedModels implements ModelManager
func (m *RedisModelManager) LoadedModels(ctx context.Context) (map[datamodel.ModelID]string, error) {
	fields, err := m.client.HGetAll(ctx, constant.LoadedModelsKey).Result()
	if err != nil {
		return nil, err
	}

	loaded := make(map[datamodel.ModelID]string, len(fields))
	for modelID, moduleID := range fields {
		loaded[datamodel.ModelID(modelID)] = moduleID
	}
	return loaded, nil
}

// PublishLoadedModels replaces the published set with loaded
func PublishLoadedModels(ctx context.Context, rc *redis.Client, loaded map[datamodel.ModelID]string) error {
	_, err := rc.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, constant.LoadedModelsKey)
		if len(loaded) == 0 {
			return nil
		}
		values := make([]any, 0, 2*len(loaded))
		for modelID, moduleID := range loaded {
			values = append(values, string(modelID), moduleID)
		}
		pipe.HSet(ctx, constant.LoadedModelsKey, values...)
		return nil
	})
	return err
}
