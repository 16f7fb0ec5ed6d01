package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_zap "github.com/grpc-ecosystem/go-grpc-middleware/logging/zap"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	grpc_ctxtags "github.com/grpc-ecosystem/go-grpc-middleware/tags"

	"github.com/caikit/caikit-huggingface-demo/config"
	"github.com/caikit/caikit-huggingface-demo/pkg/binder"
	"github.com/caikit/caikit-huggingface-demo/pkg/datamodel"
	"github.com/caikit/caikit-huggingface-demo/pkg/frontend"
	"github.com/caikit/caikit-huggingface-demo/pkg/logger"
	"github.com/caikit/caikit-huggingface-demo/pkg/middleware"
	"github.com/caikit/caikit-huggingface-demo/pkg/reflection"
	"github.com/caikit/caikit-huggingface-demo/pkg/registry"
	"github.com/caikit/caikit-huggingface-demo/pkg/runtime"
	"github.com/caikit/caikit-huggingface-demo/pkg/tabs"

	httpclient "github.com/caikit/caikit-huggingface-demo/pkg/client/http"
)

const shutdownTimeout = 5 * time.Second

type roles struct {
	backend  bool
	frontend bool
}

// parseRoles applies the selection rules: both run unless one of them is
// explicitly selected or disabled.
func parseRoles(backend bool, noBackend bool, frontend bool, noFrontend bool) (roles, error) {
	if backend && noBackend {
		return roles{}, errors.New("-backend and -no-backend are mutually exclusive")
	}
	if frontend && noFrontend {
		return roles{}, errors.New("-frontend and -no-frontend are mutually exclusive")
	}

	r := roles{
		backend:  !noBackend && (backend || !frontend),
		frontend: !noFrontend && (frontend || !backend),
	}
	if !r.backend && !r.frontend {
		return roles{}, errors.New("nothing to run")
	}
	return r, nil
}

func main() {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	configPath := config.ConfigFlag(fs)
	backend := fs.Bool("backend", false, "run the inference runtime")
	noBackend := fs.Bool("no-backend", false, "do not run the inference runtime")
	frontendFlag := fs.Bool("frontend", false, "run the tab frontend")
	noFrontend := fs.Bool("no-frontend", false, "do not run the tab frontend")
	_ = fs.Parse(os.Args[1:])

	if err := config.Init(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, _ := logger.GetZapLogger(ctx)
	defer func() {
		// can't handle the error due to https://github.com/uber-go/zap/issues/880
		_ = logger.Sync()
	}()
	grpc_zap.ReplaceGrpcLoggerV2(logger)

	r, err := parseRoles(*backend, *noBackend, *frontendFlag, *noFrontend)
	if err != nil {
		logger.Fatal(err.Error())
	}

	var rc *redis.Client
	if config.Config.Cache.Redis.Enabled {
		rc = redis.NewClient(&config.Config.Cache.Redis.RedisOptions)
		defer rc.Close()
	}

	g, ctx := errgroup.WithContext(ctx)

	var mm *runtime.ModelManager
	if r.backend {
		mm = runtime.NewModelManager(rc)
		gs, lis, err := newBackend(ctx, logger, mm)
		if err != nil {
			logger.Fatal(err.Error())
		}

		g.Go(func() error {
			logger.Info(fmt.Sprintf("inference runtime is listening on %s", lis.Addr()))
			return gs.Serve(lis)
		})
		g.Go(func() error {
			<-ctx.Done()
			logger.Info("Shutting down inference runtime...")
			gs.GracefulStop()
			return nil
		})
	}

	if r.frontend {
		var mgr registry.ModelManager
		switch {
		case mm != nil:
			mgr = mm
		case rc != nil:
			mgr = registry.NewRedisModelManager(rc)
		}

		srv, conn, err := newFrontend(ctx, logger, mgr)
		if err != nil {
			logger.Fatal(err.Error())
		}
		defer conn.Close()

		g.Go(func() error {
			logger.Info(fmt.Sprintf("frontend is listening on %s", srv.Addr))
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			logger.Info("Shutting down frontend...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("Fatal error: %v", err))
	}
}

func newBackend(ctx context.Context, logger *zap.Logger, mm *runtime.ModelManager) (*grpc.Server, net.Listener, error) {
	cfg := config.Config.Runtime

	hub := httpclient.NewHubClient(ctx, config.Config.Hub)
	if err := mm.LoadLocalModels(ctx, cfg.LocalModelsDir, hub); err != nil {
		return nil, nil, err
	}

	schema, err := runtime.NewSchema(cfg.InferenceNamespace, cfg.ServiceName, datamodel.Tasks)
	if err != nil {
		return nil, nil, err
	}

	// Shared options for the logger, with a custom gRPC code to log level function.
	opts := []grpc_zap.Option{
		grpc_zap.WithDecider(func(fullMethodName string, err error) bool {
			// will not log health checks and reflection calls if no error was raised
			if err == nil {
				if match, _ := regexp.MatchString("^/grpc\\.(health|reflection)\\.", fullMethodName); match {
					return false
				}
			}
			// by default everything will be logged
			return true
		}),
	}

	gs := grpc.NewServer(
		grpc.StreamInterceptor(grpc_middleware.ChainStreamServer(
			grpc_ctxtags.StreamServerInterceptor(),
			grpc_zap.StreamServerInterceptor(logger, opts...),
			grpc_recovery.StreamServerInterceptor(middleware.RecoveryInterceptorOpt()),
		)),
		grpc.UnaryInterceptor(grpc_middleware.ChainUnaryServer(
			grpc_ctxtags.UnaryServerInterceptor(),
			grpc_zap.UnaryServerInterceptor(logger, opts...),
			middleware.UnaryModelIDInterceptor(string(schema.Service.FullName())),
			grpc_recovery.UnaryServerInterceptor(middleware.RecoveryInterceptorOpt()),
		)),
	)
	runtime.NewServer(schema, mm).Register(gs)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return nil, nil, err
	}
	return gs, lis, nil
}

// newFrontend discovers the runtime capabilities once and renders the tabs.
// A nil mgr falls back to scanning the local models dir.
func newFrontend(ctx context.Context, logger *zap.Logger, mgr registry.ModelManager) (*http.Server, *grpc.ClientConn, error) {
	cfg := config.Config

	conn, err := grpc.NewClient(fmt.Sprintf("%s:%d", cfg.Runtime.Host, cfg.Runtime.Port),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, err
	}

	desc, err := reflection.Resolve(ctx, conn, cfg.Runtime.InferenceNamespace, cfg.Runtime.TrainingNamespace)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	logger.Info(fmt.Sprintf("using inference service %s", desc.Name))

	reg, err := registry.Snapshot(ctx, mgr, cfg.Runtime.LocalModelsDir)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}

	opts := binder.Options{Logger: logger}
	if cfg.Frontend.Warmup {
		opts.Probe = tabs.Probe
	}
	set := tabs.Render(binder.Bind(ctx, desc, reg, conn, opts))

	h, err := frontend.NewHandler(set, cfg.Frontend.CORSOrigins)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Frontend.Port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}, conn, nil
}
