// Package reflection discovers the inference service of a peer through the
// gRPC server reflection protocol, without compiled in stubs.
package reflection

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"

	reflectionpb "google.golang.org/grpc/reflection/grpc_reflection_v1"

	"github.com/caikit/caikit-huggingface-demo/pkg/logger"
)

var (
	// ErrNoInferenceService is returned when the peer exposes no service
	// under the inference namespace.
	ErrNoInferenceService = errors.New("no inference service found")
	// ErrAmbiguousInferenceService is returned when the peer exposes more
	// than one.
	ErrAmbiguousInferenceService = errors.New("more than one inference service found")
)

// ServiceDescriptor is the discovered shape of the peer's inference service
type ServiceDescriptor struct {
	Name protoreflect.FullName
	// Prefix is Name without its last element; request types live there
	Prefix string

	service protoreflect.ServiceDescriptor
	files   *protoregistry.Files
}

// Method returns the service method called name
func (d *ServiceDescriptor) Method(name string) (protoreflect.MethodDescriptor, bool) {
	md := d.service.Methods().ByName(protoreflect.Name(name))
	return md, md != nil
}

// MessageType resolves an unqualified message name under Prefix
func (d *ServiceDescriptor) MessageType(name string) (protoreflect.MessageDescriptor, bool) {
	desc, err := d.files.FindDescriptorByName(protoreflect.FullName(d.Prefix + "." + name))
	if err != nil {
		return nil, false
	}
	md, ok := desc.(protoreflect.MessageDescriptor)
	return md, ok
}

// FullMethodName is the path used to invoke md, e.g. "/pkg.Service/Method"
func (d *ServiceDescriptor) FullMethodName(md protoreflect.MethodDescriptor) string {
	return fmt.Sprintf("/%s/%s", d.Name, md.Name())
}

// selectInferenceService picks the only service under namespace that is
// not under trainingNamespace.
func selectInferenceService(names []string, namespace string, trainingNamespace string) (string, error) {
	var matches []string
	for _, n := range names {
		if !strings.HasPrefix(n, namespace) {
			continue
		}
		if trainingNamespace != "" && strings.HasPrefix(n, trainingNamespace) {
			continue
		}
		matches = append(matches, n)
	}

	switch len(matches) {
	case 0:
		return "", errors.Wrapf(ErrNoInferenceService, "namespace %q", namespace)
	case 1:
		return matches[0], nil
	default:
		sort.Strings(matches)
		return "", errors.Wrapf(ErrAmbiguousInferenceService, "namespace %q has %s", namespace, strings.Join(matches, ", "))
	}
}

// Resolve discovers the single inference service exposed over conn. The
// result fails closed: anything but exactly one candidate is an error.
func Resolve(ctx context.Context, conn grpc.ClientConnInterface, namespace string, trainingNamespace string) (*ServiceDescriptor, error) {
	logger, _ := logger.GetZapLogger(ctx)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := reflectionpb.NewServerReflectionClient(conn).ServerReflectionInfo(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open reflection stream")
	}
	defer func() {
		_ = stream.CloseSend()
	}()

	c := &reflectionClient{stream: stream}
	names, err := c.listServices()
	if err != nil {
		return nil, err
	}

	name, err := selectInferenceService(names, namespace, trainingNamespace)
	if err != nil {
		logger.Error("expected exactly one inference service", zap.Strings("services", names), zap.Error(err))
		return nil, err
	}

	files, err := c.filesFor(name)
	if err != nil {
		return nil, err
	}

	desc, err := files.FindDescriptorByName(protoreflect.FullName(name))
	if err != nil {
		return nil, errors.Wrapf(err, "peer does not describe %s", name)
	}
	service, ok := desc.(protoreflect.ServiceDescriptor)
	if !ok {
		return nil, errors.Errorf("%s is not a service", name)
	}

	prefix, _, _ := cutLast(name, ".")
	logger.Info("resolved inference service", zap.String("service", name), zap.Int("methods", service.Methods().Len()))

	return &ServiceDescriptor{
		Name:    service.FullName(),
		Prefix:  prefix,
		service: service,
		files:   files,
	}, nil
}

func cutLast(s string, sep string) (string, string, bool) {
	if i := strings.LastIndex(s, sep); i >= 0 {
		return s[:i], s[i+len(sep):], true
	}
	return "", s, false
}

type reflectionClient struct {
	stream reflectionpb.ServerReflection_ServerReflectionInfoClient
}

func (c *reflectionClient) roundTrip(req *reflectionpb.ServerReflectionRequest) (*reflectionpb.ServerReflectionResponse, error) {
	if err := c.stream.Send(req); err != nil {
		return nil, errors.Wrap(err, "reflection request failed")
	}
	resp, err := c.stream.Recv()
	if err != nil {
		return nil, errors.Wrap(err, "reflection request failed")
	}
	if e := resp.GetErrorResponse(); e != nil {
		return nil, errors.Errorf("reflection error %d: %s", e.GetErrorCode(), e.GetErrorMessage())
	}
	return resp, nil
}

func (c *reflectionClient) listServices() ([]string, error) {
	resp, err := c.roundTrip(&reflectionpb.ServerReflectionRequest{
		MessageRequest: &reflectionpb.ServerReflectionRequest_ListServices{},
	})
	if err != nil {
		return nil, err
	}

	var names []string
	for _, s := range resp.GetListServicesResponse().GetService() {
		names = append(names, s.GetName())
	}
	return names, nil
}

// filesFor fetches the file declaring symbol and every file it imports
func (c *reflectionClient) filesFor(symbol string) (*protoregistry.Files, error) {
	fetched := map[string]*descriptorpb.FileDescriptorProto{}

	add := func(resp *reflectionpb.ServerReflectionResponse) error {
		for _, b := range resp.GetFileDescriptorResponse().GetFileDescriptorProto() {
			fd := &descriptorpb.FileDescriptorProto{}
			if err := proto.Unmarshal(b, fd); err != nil {
				return errors.Wrap(err, "invalid file descriptor")
			}
			fetched[fd.GetName()] = fd
		}
		return nil
	}

	resp, err := c.roundTrip(&reflectionpb.ServerReflectionRequest{
		MessageRequest: &reflectionpb.ServerReflectionRequest_FileContainingSymbol{FileContainingSymbol: symbol},
	})
	if err != nil {
		return nil, err
	}
	if err := add(resp); err != nil {
		return nil, err
	}

	// the server may leave out files it assumes the client already has
	for missing := missingDeps(fetched); len(missing) > 0; missing = missingDeps(fetched) {
		for _, name := range missing {
			resp, err := c.roundTrip(&reflectionpb.ServerReflectionRequest{
				MessageRequest: &reflectionpb.ServerReflectionRequest_FileByFilename{FileByFilename: name},
			})
			if err != nil {
				return nil, err
			}
			if err := add(resp); err != nil {
				return nil, err
			}
			if _, ok := fetched[name]; !ok {
				return nil, errors.Errorf("peer did not return %s", name)
			}
		}
	}

	set := &descriptorpb.FileDescriptorSet{}
	for _, fd := range fetched {
		set.File = append(set.File, fd)
	}
	files, err := protodesc.NewFiles(set)
	if err != nil {
		return nil, errors.Wrap(err, "unable to link descriptors")
	}
	return files, nil
}

func missingDeps(fetched map[string]*descriptorpb.FileDescriptorProto) []string {
	var missing []string
	seen := map[string]bool{}
	for _, fd := range fetched {
		for _, dep := range fd.GetDependency() {
			if _, ok := fetched[dep]; !ok && !seen[dep] {
				seen[dep] = true
				missing = append(missing, dep)
			}
		}
	}
	sort.Strings(missing)
	return missing
}
