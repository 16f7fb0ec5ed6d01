package runtime

import (
	"strings"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/caikit/caikit-huggingface-demo/pkg/constant"
	"github.com/caikit/caikit-huggingface-demo/pkg/datamodel"
)

const dataModelFile = "caikit_data_model/hf_demo.proto"

// Schema holds the descriptors of the inference service
type Schema struct {
	Files   *protoregistry.Files
	Service protoreflect.ServiceDescriptor
	// Prefix is the proto package shared by the service and its requests
	Prefix string
	tasks  map[protoreflect.Name]datamodel.TaskID
}

// Task returns the task a predict method serves
func (s *Schema) Task(method protoreflect.Name) (datamodel.TaskID, bool) {
	t, ok := s.tasks[method]
	return t, ok
}

var resultMessages = map[datamodel.OutputKind]string{
	datamodel.ClassificationOutput: "ClassificationPrediction",
	datamodel.TextOutput:           "Text",
	datamodel.EmbeddingsOutput:     "EmbeddingsResult",
	datamodel.DetectionOutput:      "ObjectDetectionResult",
	datamodel.SegmentationOutput:   "ImageSegmentationResult",
}

var (
	typeString = descriptorpb.FieldDescriptorProto_TYPE_STRING.Enum()
	typeDouble = descriptorpb.FieldDescriptorProto_TYPE_DOUBLE.Enum()
	typeInt32  = descriptorpb.FieldDescriptorProto_TYPE_INT32.Enum()
	typeMsg    = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum()

	optional = descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum()
	repeated = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
)

func field(name string, number int32, typ *descriptorpb.FieldDescriptorProto_Type, label *descriptorpb.FieldDescriptorProto_Label, typeName string) *descriptorpb.FieldDescriptorProto {
	f := &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(number),
		Type:   typ,
		Label:  label,
	}
	if typeName != "" {
		f.TypeName = proto.String(typeName)
	}
	return f
}

func message(name string, fields ...*descriptorpb.FieldDescriptorProto) *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{Name: proto.String(name), Field: fields}
}

func dataModelProto() *descriptorpb.FileDescriptorProto {
	dm := func(name string) string { return "." + constant.DataModelPackage + "." + name }

	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String(dataModelFile),
		Package: proto.String(constant.DataModelPackage),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			message("ClassInfo",
				field("class_name", 1, typeString, optional, ""),
				field("confidence", 2, typeDouble, optional, "")),
			message("ClassificationPrediction",
				field("classes", 1, typeMsg, repeated, dm("ClassInfo"))),
			message("Text",
				field("text", 1, typeString, optional, "")),
			message("EmbeddingsPair",
				field("input", 1, typeInt32, optional, ""),
				field("output", 2, typeDouble, repeated, "")),
			message("EmbeddingsResult",
				field("output", 1, typeMsg, repeated, dm("EmbeddingsPair"))),
			message("BoundingBox",
				field("xmin", 1, typeInt32, optional, ""),
				field("ymin", 2, typeInt32, optional, ""),
				field("xmax", 3, typeInt32, optional, ""),
				field("ymax", 4, typeInt32, optional, "")),
			message("DetectedObject",
				field("label", 1, typeString, optional, ""),
				field("score", 2, typeDouble, optional, ""),
				field("box", 3, typeMsg, optional, dm("BoundingBox"))),
			message("ObjectDetectionResult",
				field("objects", 1, typeMsg, repeated, dm("DetectedObject"))),
			message("Mask",
				field("label", 1, typeString, optional, ""),
				field("score", 2, typeDouble, optional, ""),
				field("mask", 3, typeString, optional, "")),
			message("ImageSegmentationResult",
				field("objects", 1, typeMsg, repeated, dm("Mask"))),
		},
	}
}

func requestProto(task datamodel.TaskID) *descriptorpb.DescriptorProto {
	switch task.Input() {
	case datamodel.SentencesInput:
		return message(task.RequestTypeName(), field("sentences", 1, typeString, repeated, ""))
	case datamodel.ImageInput:
		return message(task.RequestTypeName(), field("encoded_bytes_or_url", 1, typeString, optional, ""))
	default:
		return message(task.RequestTypeName(), field("text_in", 1, typeString, optional, ""))
	}
}

// NewSchema builds the service <namespace><serviceName>.<serviceName>Service
// with one predict method per task.
func NewSchema(namespace string, serviceName string, tasks []datamodel.TaskID) (*Schema, error) {
	if serviceName == "" {
		return nil, errors.New("service name is empty")
	}
	prefix := strings.TrimSuffix(namespace, ".") + "." + serviceName

	rt := &descriptorpb.FileDescriptorProto{
		Name:       proto.String(strings.ReplaceAll(prefix, ".", "/") + ".proto"),
		Package:    proto.String(prefix),
		Syntax:     proto.String("proto3"),
		Dependency: []string{dataModelFile},
	}
	svc := &descriptorpb.ServiceDescriptorProto{Name: proto.String(serviceName + "Service")}

	byMethod := make(map[protoreflect.Name]datamodel.TaskID, len(tasks))
	for _, task := range tasks {
		if !task.IsValid() {
			return nil, errors.Errorf("unknown task %q", task)
		}
		if _, dup := byMethod[protoreflect.Name(task.MethodName())]; dup {
			continue
		}
		byMethod[protoreflect.Name(task.MethodName())] = task

		rt.MessageType = append(rt.MessageType, requestProto(task))
		svc.Method = append(svc.Method, &descriptorpb.MethodDescriptorProto{
			Name:       proto.String(task.MethodName()),
			InputType:  proto.String("." + prefix + "." + task.RequestTypeName()),
			OutputType: proto.String("." + constant.DataModelPackage + "." + resultMessages[task.Output()]),
		})
	}
	rt.Service = []*descriptorpb.ServiceDescriptorProto{svc}

	files, err := protodesc.NewFiles(&descriptorpb.FileDescriptorSet{
		File: []*descriptorpb.FileDescriptorProto{dataModelProto(), rt},
	})
	if err != nil {
		return nil, errors.Wrap(err, "invalid inference schema")
	}

	d, err := files.FindDescriptorByName(protoreflect.FullName(prefix + "." + svc.GetName()))
	if err != nil {
		return nil, err
	}

	return &Schema{
		Files:   files,
		Service: d.(protoreflect.ServiceDescriptor),
		Prefix:  prefix,
		tasks:   byMethod,
	}, nil
}

// resolver serves the schema files first and the linked in files after, so
// reflection also describes the health and reflection services.
type resolver struct {
	files *protoregistry.Files
}

func (r resolver) FindFileByPath(path string) (protoreflect.FileDescriptor, error) {
	if fd, err := r.files.FindFileByPath(path); err == nil {
		return fd, nil
	}
	return protoregistry.GlobalFiles.FindFileByPath(path)
}

func (r resolver) FindDescriptorByName(name protoreflect.FullName) (protoreflect.Descriptor, error) {
	if d, err := r.files.FindDescriptorByName(name); err == nil {
		return d, nil
	}
	return protoregistry.GlobalFiles.FindDescriptorByName(name)
}
