package runtime

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/reflection/grpc_reflection_v1"
	"google.golang.org/grpc/reflection/grpc_reflection_v1alpha"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/caikit/caikit-huggingface-demo/pkg/datamodel"
	"github.com/caikit/caikit-huggingface-demo/pkg/logger"
	"github.com/caikit/caikit-huggingface-demo/pkg/module"
)

// Server serves the predict methods of a Schema from a ModelManager
type Server struct {
	schema *Schema
	models *ModelManager
}

// NewServer returns a Server; it serves nothing until registered
func NewServer(schema *Schema, models *ModelManager) *Server {
	return &Server{schema: schema, models: models}
}

// Register adds the inference service, health checking and server
// reflection to gs.
func (s *Server) Register(gs *grpc.Server) {
	gs.RegisterService(s.ServiceDesc(), s)

	hs := health.NewServer()
	hs.SetServingStatus(string(s.schema.Service.FullName()), healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(gs, hs)

	opts := reflection.ServerOptions{
		Services:           gs,
		DescriptorResolver: resolver{files: s.schema.Files},
	}
	grpc_reflection_v1.RegisterServerReflectionServer(gs, reflection.NewServerV1(opts))
	grpc_reflection_v1alpha.RegisterServerReflectionServer(gs, reflection.NewServer(opts))
}

// ServiceDesc describes the inference service for grpc.Server. Requests
// and responses are dynamic messages of the schema.
func (s *Server) ServiceDesc() *grpc.ServiceDesc {
	svc := s.schema.Service
	desc := &grpc.ServiceDesc{
		ServiceName: string(svc.FullName()),
		HandlerType: (*any)(nil),
		Streams:     []grpc.StreamDesc{},
		Metadata:    svc.ParentFile().Path(),
	}

	methods := svc.Methods()
	for i := 0; i < methods.Len(); i++ {
		md := methods.Get(i)
		desc.Methods = append(desc.Methods, grpc.MethodDesc{
			MethodName: string(md.Name()),
			Handler:    s.predictHandler(md),
		})
	}
	return desc
}

func (s *Server) predictHandler(md protoreflect.MethodDescriptor) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := fmt.Sprintf("/%s/%s", md.Parent().FullName(), md.Name())

	return func(_ any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := dynamicpb.NewMessage(md.Input())
		if err := dec(req); err != nil {
			return nil, err
		}

		handler := func(ctx context.Context, req any) (any, error) {
			return s.predict(ctx, md, req.(*dynamicpb.Message))
		}
		if interceptor == nil {
			return handler(ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: s, FullMethod: fullMethod}
		return interceptor(ctx, req, info, handler)
	}
}

func (s *Server) predict(ctx context.Context, md protoreflect.MethodDescriptor, req *dynamicpb.Message) (proto.Message, error) {
	logger, _ := logger.GetZapLogger(ctx)

	task, ok := s.schema.Task(md.Name())
	if !ok {
		return nil, ErrUnknownMethod
	}

	modelID, err := getModelID(ctx)
	if err != nil {
		return nil, err
	}

	mod, ok := s.models.Get(modelID)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "model %s is not loaded", modelID)
	}
	if mod.Task() != task {
		return nil, status.Errorf(codes.InvalidArgument, "model %s serves %s, not %s", modelID, mod.Task(), task)
	}

	var in module.Input
	if err := datamodel.FromMessage(req, &in); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid %s: %v", md.Input().Name(), err)
	}

	out, err := mod.Run(ctx, in)
	if err != nil {
		logger.Error("prediction failed", zap.String("model_id", string(modelID)), zap.String("task", string(task)), zap.Error(err))
		if _, ok := status.FromError(err); ok {
			return nil, err
		}
		return nil, status.Errorf(codes.Internal, "%s prediction with %s failed: %v", task, modelID, err)
	}
	if out == nil {
		return nil, ErrEmptyResult
	}

	resp := dynamicpb.NewMessage(md.Output())
	if err := datamodel.ToMessage(out, resp); err != nil {
		return nil, status.Errorf(codes.Internal, "unable to encode %s: %v", md.Output().Name(), err)
	}
	return resp, nil
}
