package runtime_test

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
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/caikit/caikit-huggingface-demo/pkg/constant"
	"github.com/caikit/caikit-huggingface-demo/pkg/datamodel"
	"github.com/caikit/caikit-huggingface-demo/pkg/module"
	"github.com/caikit/caikit-huggingface-demo/pkg/registry"
	"github.com/caikit/caikit-huggingface-demo/pkg/runtime"
	"github.com/caikit/caikit-huggingface-demo/pkg/runtime/runtimetest"
)

func TestNewSchema(t *testing.T) {
	schema, err := runtime.NewSchema("caikit.runtime.", "HuggingFaceDemo", datamodel.Tasks)
	require.NoError(t, err)

	assert.Equal(t, "caikit.runtime.HuggingFaceDemo", schema.Prefix)
	assert.Equal(t, protoreflect.FullName("caikit.runtime.HuggingFaceDemo.HuggingFaceDemoService"), schema.Service.FullName())
	assert.Equal(t, len(datamodel.Tasks), schema.Service.Methods().Len())

	for _, task := range datamodel.Tasks {
		md := schema.Service.Methods().ByName(protoreflect.Name(task.MethodName()))
		require.NotNil(t, md, task)
		assert.Equal(t, protoreflect.FullName(schema.Prefix+"."+task.RequestTypeName()), md.Input().FullName())

		got, ok := schema.Task(md.Name())
		assert.True(t, ok)
		assert.Equal(t, task, got)
	}

	req := schema.Service.Methods().ByName("SentenceSimilarityTaskPredict").Input()
	assert.True(t, req.Fields().ByName("sentences").IsList())
}

func TestNewSchema_Errors(t *testing.T) {
	_, err := runtime.NewSchema("caikit.runtime.", "", datamodel.Tasks)
	assert.Error(t, err)

	_, err = runtime.NewSchema("caikit.runtime.", "Demo", []datamodel.TaskID{"Nope"})
	assert.EqualError(t, err, `unknown task "Nope"`)
}

func invoke(ctx context.Context, t *testing.T, rt *runtimetest.Runtime, task datamodel.TaskID, in any) (*dynamicpb.Message, error) {
	t.Helper()
	md := rt.Schema.Service.Methods().ByName(protoreflect.Name(task.MethodName()))
	req := dynamicpb.NewMessage(md.Input())
	require.NoError(t, datamodel.ToMessage(in, req))
	resp := dynamicpb.NewMessage(md.Output())
	err := rt.Conn.Invoke(ctx, "/"+string(rt.Schema.Service.FullName())+"/"+string(md.Name()), req, resp)
	return resp, err
}

func TestPredict(t *testing.T) {
	sentiment := &runtimetest.Module{
		TaskID: datamodel.Sentiment,
		Result: &datamodel.ClassificationPrediction{Classes: []datamodel.ClassInfo{{ClassName: "POSITIVE", Confidence: 0.75}}},
	}
	rt := runtimetest.Start(t, datamodel.Tasks, map[datamodel.ModelID]module.Module{"m1": sentiment})

	ctx := metadata.AppendToOutgoingContext(context.Background(), constant.ModelIDMetadataKey, "m1")
	resp, err := invoke(ctx, t, rt, datamodel.Sentiment, module.Input{TextIn: "so good"})
	require.NoError(t, err)

	var out datamodel.ClassificationPrediction
	require.NoError(t, datamodel.FromMessage(resp, &out))
	assert.Equal(t, sentiment.Result, &out)
	assert.Equal(t, []module.Input{{TextIn: "so good"}}, sentiment.Calls())
}

func TestPredict_Errors(t *testing.T) {
	failing := &runtimetest.Module{TaskID: datamodel.Summarization, Err: errors.New("hub down")}
	rt := runtimetest.Start(t, datamodel.Tasks, map[datamodel.ModelID]module.Module{
		"m1":   &runtimetest.Module{TaskID: datamodel.Sentiment, Result: &datamodel.ClassificationPrediction{}},
		"summ": failing,
	})
	withModel := func(id string) context.Context {
		return metadata.AppendToOutgoingContext(context.Background(), constant.ModelIDMetadataKey, id)
	}

	_, err := invoke(context.Background(), t, rt, datamodel.Sentiment, module.Input{TextIn: "x"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = invoke(withModel("nope"), t, rt, datamodel.Sentiment, module.Input{TextIn: "x"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = invoke(withModel("m1"), t, rt, datamodel.Embeddings, module.Input{TextIn: "x"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = invoke(withModel("summ"), t, rt, datamodel.Summarization, module.Input{TextIn: "x"})
	assert.Equal(t, codes.Internal, status.Code(err))
	assert.Contains(t, status.Convert(err).Message(), "hub down")
}

func TestModelManager_LoadLocalModels(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sst"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sst", "config.yml"),
		[]byte("module_id: "+datamodel.Sentiment.ModuleID()+"\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "junk"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "junk", "config.yml"), []byte(":::"), 0o644))

	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()
	rc := redis.NewClient(&redis.Options{Addr: s.Addr()})

	ctx := context.Background()
	mm := runtime.NewModelManager(rc)
	require.NoError(t, mm.LoadLocalModels(ctx, dir, nil))

	m, ok := mm.Get("sst")
	require.True(t, ok)
	assert.Equal(t, datamodel.Sentiment, m.Task())
	_, ok = mm.Get("junk")
	assert.False(t, ok)

	loaded, err := mm.LoadedModels(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[datamodel.ModelID]string{"sst": datamodel.Sentiment.ModuleID()}, loaded)

	published, err := registry.NewRedisModelManager(rc).LoadedModels(ctx)
	require.NoError(t, err)
	assert.Equal(t, loaded, published)
}

func TestModelManager_MissingDir(t *testing.T) {
	mm := runtime.NewModelManager(nil)
	require.NoError(t, mm.LoadLocalModels(context.Background(), filepath.Join(t.TempDir(), "none"), nil))
	loaded, _ := mm.LoadedModels(context.Background())
	assert.Empty(t, loaded)
}
