package reflection

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	grpcreflection "google.golang.org/grpc/reflection"
	"google.golang.org/grpc/test/bufconn"

	"github.com/caikit/caikit-huggingface-demo/pkg/datamodel"
	"github.com/caikit/caikit-huggingface-demo/pkg/runtime/runtimetest"
)

const (
	inferenceNS = "caikit.runtime."
	trainingNS  = "caikit.runtime.training"
)

func TestSelectInferenceService(t *testing.T) {
	testCases := []struct {
		name    string
		names   []string
		want    string
		wantErr error
	}{
		{
			name: "one",
			names: []string{
				"grpc.reflection.v1.ServerReflection",
				"caikit.runtime.training.HuggingFaceDemoTrainingService",
				"caikit.runtime.HuggingFaceDemo.HuggingFaceDemoService",
			},
			want: "caikit.runtime.HuggingFaceDemo.HuggingFaceDemoService",
		},
		{
			name:    "none",
			names:   []string{"grpc.health.v1.Health", "caikit.runtime.training.Train"},
			wantErr: ErrNoInferenceService,
		},
		{
			name:    "empty",
			wantErr: ErrNoInferenceService,
		},
		{
			name:    "two",
			names:   []string{"caikit.runtime.A.AService", "caikit.runtime.B.BService"},
			wantErr: ErrAmbiguousInferenceService,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := selectInferenceService(tc.names, inferenceNS, trainingNS)
			if tc.wantErr != nil {
				assert.True(t, errors.Is(err, tc.wantErr), "got %v", err)
				assert.Empty(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestResolve(t *testing.T) {
	rt := runtimetest.Start(t, []datamodel.TaskID{datamodel.Sentiment, datamodel.ImageSegmentation}, nil)

	desc, err := Resolve(context.Background(), rt.Conn, inferenceNS, trainingNS)
	require.NoError(t, err)

	assert.EqualValues(t, "caikit.runtime.HuggingFaceDemo.HuggingFaceDemoService", desc.Name)
	assert.Equal(t, "caikit.runtime.HuggingFaceDemo", desc.Prefix)

	md, ok := desc.Method(datamodel.Sentiment.MethodName())
	require.True(t, ok)
	assert.Equal(t, "/caikit.runtime.HuggingFaceDemo.HuggingFaceDemoService/SentimentTaskPredict", desc.FullMethodName(md))
	assert.EqualValues(t, "ClassificationPrediction", md.Output().Name())

	req, ok := desc.MessageType(datamodel.ImageSegmentation.RequestTypeName())
	require.True(t, ok)
	assert.NotNil(t, req.Fields().ByName("encoded_bytes_or_url"))

	_, ok = desc.Method(datamodel.Summarization.MethodName())
	assert.False(t, ok)
	_, ok = desc.MessageType(datamodel.Summarization.RequestTypeName())
	assert.False(t, ok)
}

func TestResolve_FailsClosedWithoutInferenceService(t *testing.T) {
	gs := grpc.NewServer()
	grpcreflection.Register(gs)
	listener := bufconn.Listen(1024 * 1024)
	go func() {
		_ = gs.Serve(listener)
	}()
	defer gs.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return listener.Dial()
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer conn.Close()

	desc, err := Resolve(context.Background(), conn, inferenceNS, trainingNS)
	assert.Nil(t, desc)
	assert.True(t, errors.Is(err, ErrNoInferenceService), "got %v", err)
}
