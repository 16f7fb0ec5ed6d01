// Package binder decides which tasks the frontend can offer. A task is bound
// only when the peer exposes its predict method and request type and at
// least one model serves it.
package binder

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/caikit/caikit-huggingface-demo/pkg/constant"
	"github.com/caikit/caikit-huggingface-demo/pkg/datamodel"
	"github.com/caikit/caikit-huggingface-demo/pkg/logger"
)

// Descriptor is the part of a resolved service the binder relies on
type Descriptor interface {
	Method(name string) (protoreflect.MethodDescriptor, bool)
	MessageType(name string) (protoreflect.MessageDescriptor, bool)
	FullMethodName(md protoreflect.MethodDescriptor) string
}

// Registry lists the models available per task
type Registry interface {
	Models(task datamodel.TaskID) []datamodel.ModelID
}

// InvokeFunc builds a request from args and calls the bound method with
// modelID pinned. args is any value whose JSON form matches the request.
type InvokeFunc func(ctx context.Context, modelID datamodel.ModelID, args any) (*dynamicpb.Message, error)

// TaskBinding is one enabled task
type TaskBinding struct {
	Task   datamodel.TaskID
	Models []datamodel.ModelID
	Invoke InvokeFunc
}

// ProbeFunc is called once for each task that passed the static checks.
// An error disables the task.
type ProbeFunc func(ctx context.Context, b TaskBinding) error

// Options tune Bind. The zero value binds datamodel.Tasks without probing.
type Options struct {
	Tasks  []datamodel.TaskID
	Probe  ProbeFunc
	Logger *zap.Logger
}

// Bind evaluates every task in declaration order and returns the enabled
// ones in that same order. A task that fails never affects another one.
func Bind(ctx context.Context, desc Descriptor, reg Registry, conn grpc.ClientConnInterface, opts Options) []TaskBinding {
	log := opts.Logger
	if log == nil {
		log, _ = logger.GetZapLogger(ctx)
	}
	tasks := opts.Tasks
	if tasks == nil {
		tasks = datamodel.Tasks
	}

	bindings := []TaskBinding{}
	for _, task := range tasks {
		b, err := bindTask(desc, reg, conn, task)
		if err != nil {
			log.Info("task disabled", zap.String("task", string(task)), zap.String("reason", err.Error()))
			continue
		}

		if opts.Probe != nil {
			if err := opts.Probe(ctx, b); err != nil {
				log.Warn("disabling task after failed probe",
					zap.String("task", string(task)),
					zap.String("detail", status.Convert(err).Message()))
				continue
			}
		}

		log.Info("task enabled", zap.String("task", string(task)), zap.Int("models", len(b.Models)))
		bindings = append(bindings, b)
	}

	if len(bindings) == 0 {
		log.Warn("no tasks are available: is the inference runtime running, and are models configured under the local models directory?")
	}
	return bindings
}

func bindTask(desc Descriptor, reg Registry, conn grpc.ClientConnInterface, task datamodel.TaskID) (TaskBinding, error) {
	method, ok := desc.Method(task.MethodName())
	if !ok {
		return TaskBinding{}, errors.Errorf("method %s not found", task.MethodName())
	}

	request, ok := desc.MessageType(task.RequestTypeName())
	if !ok {
		return TaskBinding{}, errors.Errorf("request type %s not found", task.RequestTypeName())
	}

	models := reg.Models(task)
	if len(models) == 0 {
		return TaskBinding{}, errors.New("no models loaded")
	}

	fullMethod := desc.FullMethodName(method)
	response := method.Output()

	invoke := func(ctx context.Context, modelID datamodel.ModelID, args any) (*dynamicpb.Message, error) {
		req := dynamicpb.NewMessage(request)
		if args != nil {
			if err := datamodel.ToMessage(args, req); err != nil {
				return nil, errors.Wrapf(err, "invalid %s arguments", task)
			}
		}
		resp := dynamicpb.NewMessage(response)

		ctx = metadata.AppendToOutgoingContext(ctx, constant.ModelIDMetadataKey, string(modelID))
		if err := conn.Invoke(ctx, fullMethod, req, resp); err != nil {
			return nil, err
		}
		return resp, nil
	}

	return TaskBinding{Task: task, Models: models, Invoke: invoke}, nil
}
