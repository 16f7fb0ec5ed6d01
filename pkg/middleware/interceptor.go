package middleware

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	grpc_ctxtags "github.com/grpc-ecosystem/go-grpc-middleware/tags"

	"github.com/caikit/caikit-huggingface-demo/pkg/constant"
)

// RecoveryInterceptorOpt - panic handler
func RecoveryInterceptorOpt() grpc_recovery.Option {
	return grpc_recovery.WithRecoveryHandler(func(p interface{}) (err error) {
		return status.Errorf(codes.Unknown, "panic triggered: %v", p)
	})
}

// UnaryModelIDInterceptor rejects calls to serviceName that do not pin a
// model through the mm-model-id metadata key. Accepted calls are tagged with
// the model id so the access log carries it.
func UnaryModelIDInterceptor(serviceName string) grpc.UnaryServerInterceptor {
	prefix := "/" + serviceName + "/"

	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if !strings.HasPrefix(info.FullMethod, prefix) {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Internal, "can not extract metadata")
		}
		ids := md.Get(constant.ModelIDMetadataKey)
		if len(ids) == 0 || strings.TrimSpace(ids[0]) == "" {
			return nil, status.Errorf(codes.InvalidArgument, "%s metadata is required", constant.ModelIDMetadataKey)
		}

		grpc_ctxtags.Extract(ctx).Set("model_id", ids[0])
		return handler(ctx, req)
	}
}
