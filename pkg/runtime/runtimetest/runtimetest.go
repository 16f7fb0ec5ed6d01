// Package runtimetest serves an inference runtime over an in-memory
// listener for tests of its clients.
package runtimetest

import (
	"context"
	"net"
	"sync"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	grpc_ctxtags "github.com/grpc-ecosystem/go-grpc-middleware/tags"

	"github.com/caikit/caikit-huggingface-demo/pkg/datamodel"
	"github.com/caikit/caikit-huggingface-demo/pkg/middleware"
	"github.com/caikit/caikit-huggingface-demo/pkg/module"
	"github.com/caikit/caikit-huggingface-demo/pkg/runtime"
)

const (
	Namespace   = "caikit.runtime."
	ServiceName = "HuggingFaceDemo"
)

// Module answers every call with Result or Err and records its inputs
type Module struct {
	TaskID datamodel.TaskID
	Result any
	Err    error

	mu    sync.Mutex
	calls []module.Input
}

func (m *Module) Task() datamodel.TaskID {
	return m.TaskID
}

func (m *Module) Run(_ context.Context, in module.Input) (any, error) {
	m.mu.Lock()
	m.calls = append(m.calls, in)
	m.mu.Unlock()
	return m.Result, m.Err
}

func (m *Module) Save(string) error {
	return nil
}

// Calls returns the inputs Run has seen
func (m *Module) Calls() []module.Input {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]module.Input(nil), m.calls...)
}

// Runtime is a running in-memory runtime
type Runtime struct {
	Conn   *grpc.ClientConn
	Schema *runtime.Schema
	Models *runtime.ModelManager
	Server *grpc.Server
}

// Start serves the predict methods of tasks from models. Everything is torn
// down when the test ends.
func Start(t testing.TB, tasks []datamodel.TaskID, models map[datamodel.ModelID]module.Module) *Runtime {
	t.Helper()

	schema, err := runtime.NewSchema(Namespace, ServiceName, tasks)
	if err != nil {
		t.Fatal(err)
	}

	mm := runtime.NewModelManager(nil)
	for id, m := range models {
		if err := mm.Add(context.Background(), id, m); err != nil {
			t.Fatal(err)
		}
	}

	gs := grpc.NewServer(
		grpc.UnaryInterceptor(grpc_middleware.ChainUnaryServer(
			grpc_ctxtags.UnaryServerInterceptor(),
			middleware.UnaryModelIDInterceptor(string(schema.Service.FullName())),
			grpc_recovery.UnaryServerInterceptor(middleware.RecoveryInterceptorOpt()),
		)),
	)
	runtime.NewServer(schema, mm).Register(gs)

	listener := bufconn.Listen(1024 * 1024)
	go func() {
		_ = gs.Serve(listener)
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return listener.Dial()
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() {
		_ = conn.Close()
		gs.Stop()
	})

	return &Runtime{Conn: conn, Schema: schema, Models: mm, Server: gs}
}
