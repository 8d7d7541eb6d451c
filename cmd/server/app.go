package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"task-manager/internal/api"
	"task-manager/internal/api/handlers"
	"task-manager/internal/service"
	"task-manager/internal/store/types"
	"task-manager/pkg/config"
	"task-manager/pkg/logger"
	"task-manager/pkg/server"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type App struct {
	cfg     *config.ServerConfig
	logger  *logger.Logger
	store   types.Store
	server  *server.Server
	cleanup *service.CleanupService
}

// NewApp 组装存储、服务与传输层
func NewApp(cfg *config.ServerConfig) (*App, error) {
	lg := provideLogger(cfg)

	store, err := provideStore(cfg)
	if err != nil {
		lg.Close()
		return nil, fmt.Errorf("creating store: %w", err)
	}

	// Services
	taskService := service.NewTaskService(store, lg.GetLogger("task-service"))
	statusService := service.NewStatusService(store, lg.GetLogger("status-service"))
	cleanupService := service.NewCleanupService(store, cfg.TaskManager, lg.GetLogger("cleanup"))

	// Router
	router := api.NewRouter(
		handlers.NewTaskHandler(taskService, lg),
		handlers.NewStatusHandler(statusService, lg),
		lg,
	)
	grpcService := api.NewGRPCService(taskService, lg)

	healthServer := health.NewServer()
	srv, err := server.New(server.Options{
		Listen:      cfg.Server,
		HTTPHandler: router,
		RegisterGRPC: func(s *grpc.Server) {
			grpcService.Register(s)
			healthpb.RegisterHealthServer(s, healthServer)
		},
		GRPCOptions: []grpc.ServerOption{
			grpc.ChainUnaryInterceptor(api.UnaryLoggingInterceptor(lg.GetLogger("grpc"))),
		},
	}, lg.GetLogger("server"))
	if err != nil {
		store.Close()
		lg.Close()
		return nil, fmt.Errorf("creating server: %w", err)
	}

	return &App{
		cfg:     cfg,
		logger:  lg,
		store:   store,
		server:  srv,
		cleanup: cleanupService,
	}, nil
}

// Run 启动服务并阻塞到收到退出信号
func (a *App) Run() error {
	log := a.logger.GetLogger("app")
	log.Info().
		Str("address", a.cfg.Server.Address()).
		Str("storage", a.cfg.Storage.Type).
		Msg("Starting server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 必须在接受请求之前完成，否则会取消新建的任务
	if err := a.cleanup.CancelStranded(ctx); err != nil {
		a.server.Stop(context.Background())
		return a.close(err)
	}

	cleanupDone := make(chan struct{})
	go func() {
		defer close(cleanupDone)
		a.cleanup.Run(ctx)
	}()

	if err := a.server.Start(); err != nil {
		stop()
		<-cleanupDone
		return a.close(err)
	}

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	err := a.server.Stop(shutdownCtx)
	<-cleanupDone
	return a.close(err)
}

func (a *App) close(err error) error {
	if cerr := a.store.Close(); cerr != nil {
		err = errors.Join(err, fmt.Errorf("closing store: %w", cerr))
	}
	if cerr := a.logger.Close(); cerr != nil {
		err = errors.Join(err, fmt.Errorf("closing logger: %w", cerr))
	}
	return err
}
