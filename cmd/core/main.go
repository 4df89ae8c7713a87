package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	grpc_adapter "github.com/JoeShih716/go-wallet-ledger/internal/app/core/adapter/in/grpc"
	http_adapter "github.com/JoeShih716/go-wallet-ledger/internal/app/core/adapter/in/http"
	memory_adapter "github.com/JoeShih716/go-wallet-ledger/internal/app/core/adapter/out/memory"
	mysql_adapter "github.com/JoeShih716/go-wallet-ledger/internal/app/core/adapter/out/mysql"
	postgres_adapter "github.com/JoeShih716/go-wallet-ledger/internal/app/core/adapter/out/postgres"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-wallet-ledger/internal/config"
	"github.com/JoeShih716/go-wallet-ledger/pkg/logger"
	"github.com/JoeShih716/go-wallet-ledger/pkg/mysql"
	"github.com/JoeShih716/go-wallet-ledger/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	flag.Parse()

	// 1. 載入設定
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, _, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Error("ledger exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. 初始化儲存後端
	backend, closer, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closer.Close()

	// 3. 初始化 UseCase
	opts := []usecase.Option{usecase.WithLogger(log)}
	core := usecase.NewCoreUseCase(backend, opts...)
	accounts := usecase.NewAccountUseCase(backend, opts...)

	// 4. gRPC (Driving Adapter)
	grpcServer := grpc_adapter.NewServer(grpc_adapter.NewGrpcServer(core, accounts, log.Named("grpc")))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer) // 方便 grpcurl 測試

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.GRPCAddr, err)
	}

	// 5. HTTP (Driving Adapter)
	app := http_adapter.NewApp(http_adapter.NewHandler(core, accounts, log.Named("http")))

	errCh := make(chan error, 2)
	go func() {
		log.Info("starting grpc server", zap.String("addr", cfg.Server.GRPCAddr))
		errCh <- grpcServer.Serve(lis)
	}()
	go func() {
		log.Info("starting http server", zap.String("addr", cfg.Server.HTTPAddr))
		errCh <- app.Listen(cfg.Server.HTTPAddr)
	}()
	healthServer.SetServingStatus(grpc_adapter.ServiceName, healthpb.HealthCheckResponse_SERVING)

	// Graceful Shutdown
	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case serveErr = <-errCh:
		log.Error("server stopped unexpectedly", zap.Error(serveErr))
	}

	healthServer.Shutdown()
	if err := app.ShutdownWithTimeout(cfg.Server.ShutdownTimeout); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()
	log.Info("server exited")
	return serveErr
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// openBackend 依設定建立帳本儲存，回傳的 io.Closer 負責釋放連線或 WAL
func openBackend(ctx context.Context, cfg *config.Config, log *zap.Logger) (usecase.Backend, io.Closer, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		var w *memory_adapter.Journal
		if cfg.Storage.WALPath != "" {
			var err error
			if w, err = memory_adapter.OpenJournal(cfg.Storage.WALPath); err != nil {
				return nil, nil, fmt.Errorf("open wal: %w", err)
			}
		}
		store, err := memory_adapter.NewStore(w)
		if err != nil {
			if w != nil {
				_ = w.Close()
			}
			return nil, nil, fmt.Errorf("recover wal: %w", err)
		}
		log.Info("using memory store", zap.String("wal", cfg.Storage.WALPath))
		return store, closerFunc(func() error {
			if w == nil {
				return nil
			}
			return w.Close()
		}), nil

	case config.DriverMySQL:
		client, err := mysql.NewClient(cfg.MySQL, log)
		if err != nil {
			return nil, nil, err
		}
		store := mysql_adapter.NewStore(client)
		if err := store.Migrate(ctx); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("migrate mysql: %w", err)
		}
		log.Info("using mysql store")
		return store, client, nil

	case config.DriverPostgres:
		pool, err := postgres.Connect(ctx, cfg.Postgres, log)
		if err != nil {
			return nil, nil, err
		}
		store := postgres_adapter.NewStore(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		log.Info("using postgres store")
		return store, closerFunc(func() error {
			pool.Close()
			return nil
		}), nil
	}
	return nil, nil, errors.New("unknown storage driver " + string(cfg.Storage.Driver))
}
