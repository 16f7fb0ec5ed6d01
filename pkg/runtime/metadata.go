package runtime

import (
	"context"
	"strings"

	"github.com/gogo/status"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"

	"github.com/caikit/caikit-huggingface-demo/pkg/constant"
	"github.com/caikit/caikit-huggingface-demo/pkg/datamodel"
)

var (
	errMetadata        = status.Error(codes.FailedPrecondition, "error when extract metadata")
	errModelIDRequired = status.Error(codes.InvalidArgument, "mm-model-id not found in your request")
)

func extractFromMetadata(ctx context.Context, key string) ([]string, bool) {
	data, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return []string{}, false
	}
	return data[strings.ToLower(key)], true
}

func getModelID(ctx context.Context) (datamodel.ModelID, error) {
	values, ok := extractFromMetadata(ctx, constant.ModelIDMetadataKey)
	if !ok {
		return "", errMetadata
	}
	if len(values) == 0 || strings.TrimSpace(values[0]) == "" {
		return "", errModelIDRequired
	}
	return datamodel.ModelID(strings.TrimSpace(values[0])), nil
}
